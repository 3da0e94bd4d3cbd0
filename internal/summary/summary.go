// Package summary turns finalized answers into transcripts, scores and a
// persistable session record.
package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/interviewprep/interviewprep/internal/llm"
	"github.com/interviewprep/interviewprep/internal/model"
)

// ErrLimitReached aborts a processing pass when the usage gate denies a
// transcription.
var ErrLimitReached = errors.New("usage limit reached")

// ErrorTranscript marks an answer whose transcription or scoring failed.
const ErrorTranscript = "Error"

// Transcriber converts an audio artifact to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Scorer assesses one transcript.
type Scorer interface {
	Score(ctx context.Context, question, transcript, profession string) (model.ScoreResult, error)
}

// Processor transcribes and scores answers one at a time.
type Processor struct {
	Transcriber Transcriber
	Scorer      Scorer
	// Progress, if set, is called before answer i of n is processed.
	Progress func(i, n int)
}

// Process returns a copy of answers with transcripts, feedback and outcomes
// filled in. Answers are handled strictly in order. A failure on one answer
// is recorded on it and processing continues; ErrLimitReached and context
// cancellation abort the pass and discard its results.
func (p *Processor) Process(ctx context.Context, answers []model.Answer, profession string) ([]model.Answer, error) {
	out := slices.Clone(answers)
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := &out[i]
		if a.Skipped || a.Media == nil || a.Media.Audio == nil {
			a.Skipped = true
			a.Transcript, a.Feedback = nil, nil
			a.Outcome = model.OutcomeSkipped
			continue
		}
		if p.Progress != nil {
			p.Progress(i, len(out))
		}

		err := p.processOne(ctx, a, profession)
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		switch {
		case errors.Is(err, ErrLimitReached):
			return nil, err
		case err != nil:
			slog.Warn("answer processing failed", "index", i, "error", err)
			failed := ErrorTranscript
			a.Transcript = &failed
			a.Feedback = nil
			a.Outcome = model.OutcomeFailed
		}
	}
	return out, nil
}

func (p *Processor) processOne(ctx context.Context, a *model.Answer, profession string) error {
	text, err := p.Transcriber.Transcribe(ctx, bytes.NewReader(a.Media.Audio.Data), filename(a.Media.Audio))
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	if !llm.IsMeaningfulTranscript(text) {
		empty := ""
		result := llm.NoResponseResult()
		a.Transcript = &empty
		a.Feedback = &result
		a.Outcome = model.OutcomeNoResponse
		return nil
	}

	result, err := p.Scorer.Score(ctx, a.Question.Text, text, profession)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	a.Transcript = &text
	a.Feedback = &result
	a.Outcome = model.OutcomeScored
	return nil
}

func filename(b *model.Blob) string {
	switch b.MIMEType {
	case "audio/mpeg":
		return "audio.mp3"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/mp4", "audio/x-m4a":
		return "audio.m4a"
	case "audio/ogg":
		return "audio.ogg"
	}
	return "audio.webm"
}

// Summary aggregates a processed session.
type Summary struct {
	// OverallAvg is nil when no answer produced a usable score.
	OverallAvg *int
	PerAnswer  []*int
	Counts     model.Counts
}

// Summarize averages the scores of answers that were not skipped and
// produced a real ScoreResult. Skipped, failed and placeholder results are
// left out of the denominator.
func Summarize(answers []model.Answer) Summary {
	s := Summary{
		PerAnswer: make([]*int, len(answers)),
		Counts:    Count(answers),
	}
	total, n := 0, 0
	for i, a := range answers {
		if !a.Scored() {
			continue
		}
		v := a.Feedback.OverallScore
		s.PerAnswer[i] = &v
		total += v
		n++
	}
	if n > 0 {
		avg := int(math.Round(float64(total) / float64(n)))
		s.OverallAvg = &avg
	}
	return s
}

// Count tallies answered and skipped questions.
func Count(answers []model.Answer) model.Counts {
	c := model.Counts{TotalQuestions: len(answers)}
	for _, a := range answers {
		if a.Skipped {
			c.Skipped++
		} else {
			c.Answered++
		}
	}
	return c
}

// BuildRecord produces the media-free record saved for a session. Skipped
// items are listed after answered ones, each group in question order.
func BuildRecord(title, profession string, totalTime time.Duration, answers []model.Answer, now time.Time) model.SessionRecord {
	if title == "" {
		title = "Session " + now.Format("Jan 2, 2006 3:04 PM")
	}
	if profession == "" {
		profession = model.DefaultProfession
	}

	ordered := slices.Clone(answers)
	slices.SortStableFunc(ordered, func(a, b model.Answer) int {
		switch {
		case a.Skipped == b.Skipped:
			return 0
		case a.Skipped:
			return 1
		}
		return -1
	})

	items := make([]model.SessionItem, len(ordered))
	for i, a := range ordered {
		items[i] = model.SessionItem{
			Question:   a.Question.Text,
			Tip:        a.Question.Tip,
			Skipped:    a.Skipped,
			Transcript: a.Transcript,
			Feedback:   a.Feedback,
		}
	}

	return model.SessionRecord{
		Title:            title,
		Profession:       profession,
		CreatedAt:        now,
		OverallAvg:       Summarize(answers).OverallAvg,
		TotalSessionTime: int(totalTime.Round(time.Second) / time.Second),
		Counts:           Count(answers),
		Items:            items,
	}
}

// AnswersFromRecord rebuilds answers from saved items so a stored record
// can be re-summarized.
func AnswersFromRecord(rec model.SessionRecord) []model.Answer {
	out := make([]model.Answer, len(rec.Items))
	for i, it := range rec.Items {
		out[i] = model.Answer{
			Question:   model.Question{Text: it.Question, Tip: it.Tip},
			Skipped:    it.Skipped,
			Transcript: it.Transcript,
			Feedback:   it.Feedback,
		}
	}
	return out
}
