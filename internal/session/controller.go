// Package session drives one interview: question sequencing, recording and
// the per-answer artifacts handed to the summary pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/interviewprep/interviewprep/internal/capture"
	"github.com/interviewprep/interviewprep/internal/model"
)

// DefaultTimeLimit bounds a single recording.
const DefaultTimeLimit = 3 * time.Minute

// State is the controller's position in the interview.
type State int

const (
	Idle State = iota
	Ready
	Recording
	Reviewing
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Recording:
		return "recording"
	case Reviewing:
		return "reviewing"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNoQuestions              = errors.New("session has no questions")
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrAlreadyFinalized         = errors.New("answer already finalized")
	ErrDiscardNeedsConfirmation = errors.New("skipping discards the recorded answer; confirm to continue")
	ErrNoCapture                = errors.New("no capture handle")
	ErrClosed                   = errors.New("session closed")
)

// Option configures a Controller.
type Option func(*Controller)

// WithTimeLimit overrides DefaultTimeLimit.
func WithTimeLimit(d time.Duration) Option {
	return func(c *Controller) { c.timeLimit = d }
}

// WithClock replaces time.Now for elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSessionID sets the identifier used as the rollup idempotency key.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.id = id }
}

// OnComplete registers a callback that receives the finalized answers once
// the last question is finalized. It runs without the controller lock held.
func OnComplete(fn func(answers []model.Answer)) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// Controller is the interview state machine. Methods are serialized; the
// recording watchdog runs on its own goroutine and goes through the same
// lock.
type Controller struct {
	id          string
	cfg         model.InterviewConfig
	adapter     *capture.Adapter
	newRecorder capture.RecorderFactory
	timeLimit   time.Duration
	now         func() time.Time
	onComplete  func([]model.Answer)

	mu               sync.Mutex
	state            State
	index            int
	answers          []model.Answer
	handle           *capture.Handle
	recorders        []capture.Recorder
	watchdog         *time.Timer
	generation       int
	timeLimitReached bool
	status           string
	startedAt        time.Time
	completedAt      time.Time
	recordStart      time.Time
	recorded         time.Duration
	closed           bool
}

// New creates a controller for the questions in cfg. Use SelectQuestions to
// fill cfg.Questions from the bank first.
func New(cfg model.InterviewConfig, adapter *capture.Adapter, recorders capture.RecorderFactory, opts ...Option) (*Controller, error) {
	cfg = cfg.Clone()
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.Mode != model.ModeAudio {
		cfg.Mode = model.ModeVideo
	}
	if cfg.Profession == "" {
		cfg.Profession = model.DefaultProfession
	}

	c := &Controller{
		id:          uuid.NewString(),
		cfg:         cfg,
		adapter:     adapter,
		newRecorder: recorders,
		timeLimit:   DefaultTimeLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.answers = make([]model.Answer, len(cfg.Questions))
	for i, q := range cfg.Questions {
		c.answers[i] = model.Answer{Question: q, Outcome: model.OutcomePending}
	}
	c.startedAt = c.now()
	return c, nil
}

// StartQuestion prepares the current question. In video mode it acquires
// the camera if no live handle is held. A capture failure leaves the
// controller idle with a status message so the caller may retry.
func (c *Controller) StartQuestion(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != Idle && c.state != Ready {
		return fmt.Errorf("%w: start question while %s", ErrInvalidTransition, c.state)
	}

	c.status = ""
	c.timeLimitReached = false
	c.recorded = 0

	if c.cfg.Mode == model.ModeVideo && !c.handle.Live() {
		if err := c.acquireLocked(ctx, true); err != nil {
			c.state = Idle
			return err
		}
	}
	c.state = Ready
	return nil
}

// BeginRecording starts the recorders for the current question and arms
// the time-limit watchdog.
func (c *Controller) BeginRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.answers[c.index].Finalized() {
		return ErrAlreadyFinalized
	}
	if c.state != Ready {
		return fmt.Errorf("%w: begin recording while %s", ErrInvalidTransition, c.state)
	}

	if c.cfg.Mode == model.ModeAudio && !c.handle.Live() {
		if err := c.acquireLocked(ctx, false); err != nil {
			return err
		}
	}
	if !c.handle.Live() {
		c.status = capture.Message(capture.ErrUnavailable)
		return ErrNoCapture
	}

	streams := []capture.Stream{c.handle.Stream().AudioOnly()}
	if c.cfg.Mode == model.ModeVideo {
		streams = []capture.Stream{c.handle.Stream(), c.handle.Stream().AudioOnly()}
	}

	started := make([]capture.Recorder, 0, len(streams))
	for _, s := range streams {
		rec, err := c.newRecorder(s, c.index)
		if err == nil {
			err = rec.Start(ctx)
		}
		if err != nil {
			for _, r := range started {
				_, _ = r.Stop(ctx)
			}
			c.status = "Unable to start recording. Please try again."
			return fmt.Errorf("start recorder: %w", err)
		}
		started = append(started, rec)
	}

	c.recorders = started
	c.recordStart = c.now()
	c.timeLimitReached = false
	c.generation++
	gen := c.generation
	c.watchdog = time.AfterFunc(c.timeLimit, func() { c.timeUp(gen) })
	c.state = Recording
	return nil
}

func (c *Controller) timeUp(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording || c.generation != gen {
		return
	}
	c.timeLimitReached = true
	if err := c.stopLocked(context.Background()); err != nil {
		slog.Warn("stop at time limit failed", "session", c.id, "question", c.index, "error", err)
	}
}

// StopRecording stops both recorders and returns once each has delivered
// its artifact. The answer is then finalized. In audio mode the capture
// handle is released; video mode keeps it for the preview.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != Recording {
		return fmt.Errorf("%w: stop recording while %s", ErrInvalidTransition, c.state)
	}
	return c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) error {
	c.disarmLocked()

	recs := c.recorders
	c.recorders = nil
	blobs := make([]*model.Blob, len(recs))

	var g errgroup.Group
	for i, r := range recs {
		g.Go(func() error {
			b, err := r.Stop(ctx)
			blobs[i] = b
			return err
		})
	}
	err := g.Wait()
	c.recorded = c.now().Sub(c.recordStart)

	if c.cfg.Mode == model.ModeAudio {
		c.releaseLocked()
	}

	if err == nil && blobs[len(blobs)-1] == nil {
		err = errors.New("no audio captured")
	}
	if err != nil {
		c.state = Ready
		c.status = "Recording failed. Please try again."
		return fmt.Errorf("stop recorders: %w", err)
	}

	media := &model.MediaBlobs{Audio: blobs[len(blobs)-1]}
	if c.cfg.Mode == model.ModeVideo {
		media.Video = blobs[0]
	}
	c.answers[c.index].Media = media
	c.state = Reviewing
	return nil
}

// Skip finalizes the current question as skipped and advances. An answer
// that already has a recording is only replaced when discard is true.
func (c *Controller) Skip(discard bool) error {
	c.mu.Lock()

	if err := c.checkSkipLocked(discard); err != nil {
		c.mu.Unlock()
		return err
	}
	c.answers[c.index] = model.Answer{
		Question: c.answers[c.index].Question,
		Skipped:  true,
		Outcome:  model.OutcomeSkipped,
	}
	answers, done := c.advanceLocked()
	c.mu.Unlock()

	c.complete(answers, done)
	return nil
}

func (c *Controller) checkSkipLocked(discard bool) error {
	if c.closed {
		return ErrClosed
	}
	if c.state == Recording || c.state == Completed {
		return fmt.Errorf("%w: skip while %s", ErrInvalidTransition, c.state)
	}
	a := c.answers[c.index]
	if a.Skipped {
		return ErrAlreadyFinalized
	}
	if a.Media != nil && !discard {
		return ErrDiscardNeedsConfirmation
	}
	return nil
}

// Advance moves past a finalized answer. After the last question the
// session completes and the answers go to the completion callback.
func (c *Controller) Advance() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Reviewing {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: advance while %s", ErrInvalidTransition, state)
	}
	answers, done := c.advanceLocked()
	c.mu.Unlock()

	c.complete(answers, done)
	return nil
}

func (c *Controller) advanceLocked() ([]model.Answer, bool) {
	c.status = ""
	c.timeLimitReached = false
	c.recorded = 0
	if c.index < len(c.answers)-1 {
		c.index++
		c.state = Idle
		return nil, false
	}
	c.state = Completed
	c.completedAt = c.now()
	c.releaseLocked()
	return c.answersLocked(), true
}

func (c *Controller) complete(answers []model.Answer, done bool) {
	if done && c.onComplete != nil {
		c.onComplete(answers)
	}
}

// Close stops any recording in flight and releases the capture handle
// whatever the state. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.disarmLocked()
	for _, r := range c.recorders {
		if _, err := r.Stop(context.Background()); err != nil {
			slog.Debug("discard recorder on close", "error", err)
		}
	}
	c.recorders = nil
	if c.state == Recording {
		c.state = Ready
	}
	c.releaseLocked()
}

func (c *Controller) acquireLocked(ctx context.Context, video bool) error {
	h, err := c.adapter.Acquire(ctx, video)
	if err != nil {
		c.status = capture.Message(err)
		return err
	}
	c.handle = h
	return nil
}

func (c *Controller) releaseLocked() {
	if c.handle != nil {
		c.adapter.Release(c.handle)
		c.handle = nil
	}
}

func (c *Controller) disarmLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
	c.generation++
}

func (c *Controller) answersLocked() []model.Answer {
	out := make([]model.Answer, len(c.answers))
	copy(out, c.answers)
	return out
}

// SessionID is the idempotency key for the rollup.
func (c *Controller) SessionID() string { return c.id }

// Config returns a copy of the configuration the session runs with.
func (c *Controller) Config() model.InterviewConfig { return c.cfg.Clone() }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Index returns the zero-based position of the current question.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Question returns the current question.
func (c *Controller) Question() model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answers[c.index].Question
}

// Answers returns a copy of the answers so far.
func (c *Controller) Answers() []model.Answer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answersLocked()
}

// Status is the message to show for the last failed attempt, if any.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// TimeLimitReached reports whether the watchdog ended the last recording.
func (c *Controller) TimeLimitReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLimitReached
}

// Handle returns the capture handle for the preview, or nil.
func (c *Controller) Handle() *capture.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// QuestionElapsed is the length of the current or last recording.
func (c *Controller) QuestionElapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Recording {
		return c.now().Sub(c.recordStart)
	}
	return c.recorded
}

// QuestionRemaining is the time left before the watchdog fires.
func (c *Controller) QuestionRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return c.timeLimit
	}
	return max(c.timeLimit-c.now().Sub(c.recordStart), 0)
}

// SessionElapsed counts from controller creation until completion.
func (c *Controller) SessionElapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Completed {
		return c.completedAt.Sub(c.startedAt)
	}
	return c.now().Sub(c.startedAt)
}

// Progress returns how many questions are finalized out of the total.
func (c *Controller) Progress() (done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.answers {
		if a.Finalized() {
			done++
		}
	}
	return done, len(c.answers)
}
