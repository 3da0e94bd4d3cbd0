package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/interviewprep/interviewprep/internal/llm"
	"github.com/interviewprep/interviewprep/internal/model"
)

type scriptedTranscriber struct {
	texts  map[string]string
	errs   map[string]error
	calls  []string
	cancel context.CancelFunc
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, audio io.Reader, _ string) (string, error) {
	data, _ := io.ReadAll(audio)
	key := string(data)
	s.calls = append(s.calls, key)
	if key == "cancel" && s.cancel != nil {
		s.cancel()
	}
	if err := s.errs[key]; err != nil {
		return "", err
	}
	return s.texts[key], nil
}

type scriptedScorer struct {
	results     map[string]model.ScoreResult
	professions []string
}

func (s *scriptedScorer) Score(_ context.Context, _ string, transcript, profession string) (model.ScoreResult, error) {
	s.professions = append(s.professions, profession)
	r, ok := s.results[transcript]
	if !ok {
		return model.ScoreResult{}, errors.New("scoring unavailable")
	}
	return r, nil
}

func recorded(text, key string) model.Answer {
	return model.Answer{
		Question: model.Question{Text: text, Tip: "tip for " + text},
		Media:    &model.MediaBlobs{Audio: &model.Blob{MIMEType: "audio/webm", Data: []byte(key)}},
		Outcome:  model.OutcomePending,
	}
}

func skipped(text string) model.Answer {
	return model.Answer{Question: model.Question{Text: text}, Skipped: true, Outcome: model.OutcomeSkipped}
}

func scored(v int) model.ScoreResult {
	return model.ScoreResult{OverallScore: v, RubricVersion: "v1", Suggestions: []string{}}
}

func TestProcessAndSummarize(t *testing.T) {
	answers := []model.Answer{
		recorded("Q1", "a1"),
		skipped("Q2"),
		recorded("Q3", "a3"),
		skipped("Q4"),
		recorded("Q5", "a5"),
	}
	tr := &scriptedTranscriber{texts: map[string]string{
		"a1": "I volunteered at a clinic.",
		"a3": "I led a team project.",
		"a5": "Patients come first.",
	}}
	sc := &scriptedScorer{results: map[string]model.ScoreResult{
		"I volunteered at a clinic.": scored(80),
		"I led a team project.":      llm.FallbackResult(),
		"Patients come first.":       scored(91),
	}}

	var progress []int
	p := &Processor{Transcriber: tr, Scorer: sc, Progress: func(i, n int) {
		if n != 5 {
			t.Errorf("progress total = %d, want 5", n)
		}
		progress = append(progress, i)
	}}

	out, err := p.Process(context.Background(), answers, "Medical")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Join(tr.calls, ",") != "a1,a3,a5" {
		t.Errorf("transcribed %v, want in order a1,a3,a5", tr.calls)
	}
	if fmt.Sprint(progress) != "[0 2 4]" {
		t.Errorf("progress = %v", progress)
	}
	for _, prof := range sc.professions {
		if prof != "Medical" {
			t.Errorf("scorer got profession %q", prof)
		}
	}

	s := Summarize(out)
	if s.OverallAvg == nil || *s.OverallAvg != 86 {
		t.Fatalf("OverallAvg = %v, want 86 (mean of 80 and 91)", s.OverallAvg)
	}
	if s.Counts != (model.Counts{TotalQuestions: 5, Answered: 3, Skipped: 2}) {
		t.Errorf("Counts = %+v", s.Counts)
	}
	if s.PerAnswer[2] != nil || s.PerAnswer[1] != nil || *s.PerAnswer[0] != 80 {
		t.Errorf("PerAnswer = %v", s.PerAnswer)
	}
}

func TestProcessContainsFailures(t *testing.T) {
	answers := []model.Answer{recorded("Q1", "boom"), recorded("Q2", "ok"), recorded("Q3", "noscore")}
	tr := &scriptedTranscriber{
		texts: map[string]string{"ok": "A real answer.", "noscore": "Another answer."},
		errs:  map[string]error{"boom": errors.New("upstream 500")},
	}
	sc := &scriptedScorer{results: map[string]model.ScoreResult{"A real answer.": scored(70)}}

	out, err := (&Processor{Transcriber: tr, Scorer: sc}).Process(context.Background(), answers, "Dental")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if *out[0].Transcript != ErrorTranscript || out[0].Outcome != model.OutcomeFailed {
		t.Errorf("failed transcription = %+v", out[0])
	}
	if out[1].Outcome != model.OutcomeScored {
		t.Errorf("sibling should still be scored: %+v", out[1])
	}
	if out[2].Outcome != model.OutcomeFailed || out[2].Feedback != nil {
		t.Errorf("failed scoring = %+v", out[2])
	}
	if avg := Summarize(out).OverallAvg; avg == nil || *avg != 70 {
		t.Errorf("OverallAvg = %v, want 70", avg)
	}
}

func TestProcessNoMeaningfulResponse(t *testing.T) {
	tr := &scriptedTranscriber{texts: map[string]string{"a": "Thank you for watching."}}
	sc := &scriptedScorer{}

	out, err := (&Processor{Transcriber: tr, Scorer: sc}).Process(context.Background(), []model.Answer{recorded("Q", "a")}, "Dental")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(sc.professions) != 0 {
		t.Error("scorer must not be called for filler transcripts")
	}
	if out[0].Transcript == nil || *out[0].Transcript != "" || out[0].Outcome != model.OutcomeNoResponse {
		t.Errorf("answer = %+v", out[0])
	}
	if Summarize(out).OverallAvg != nil {
		t.Error("no-response answers must not be averaged")
	}
}

func TestProcessLimitAborts(t *testing.T) {
	tr := &scriptedTranscriber{
		texts: map[string]string{"b": "fine"},
		errs:  map[string]error{"a": fmt.Errorf("transcribe: %w", ErrLimitReached)},
	}
	out, err := (&Processor{Transcriber: tr, Scorer: &scriptedScorer{}}).Process(context.Background(), []model.Answer{recorded("Q1", "a"), recorded("Q2", "b")}, "Dental")
	if !errors.Is(err, ErrLimitReached) || out != nil {
		t.Fatalf("Process() = %v, %v; want nil, ErrLimitReached", out, err)
	}
	if len(tr.calls) != 1 {
		t.Errorf("processing continued after the limit: %v", tr.calls)
	}
}

func TestProcessCancelledDiscardsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &scriptedTranscriber{texts: map[string]string{"cancel": "An answer.", "b": "Another."}, cancel: cancel}
	sc := &scriptedScorer{results: map[string]model.ScoreResult{"An answer.": scored(50), "Another.": scored(60)}}

	out, err := (&Processor{Transcriber: tr, Scorer: sc}).Process(ctx, []model.Answer{recorded("Q1", "cancel"), recorded("Q2", "b")}, "Dental")
	if !errors.Is(err, context.Canceled) || out != nil {
		t.Fatalf("Process() = %v, %v; want nil, context.Canceled", out, err)
	}
	if len(tr.calls) != 1 {
		t.Errorf("processing continued after cancellation: %v", tr.calls)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize([]model.Answer{skipped("Q1")})
	if s.OverallAvg != nil {
		t.Errorf("OverallAvg = %v, want nil", *s.OverallAvg)
	}
}

func TestBuildRecord(t *testing.T) {
	now := time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)
	text := "answer"
	fb := scored(88)
	a1 := recorded("Q1", "x")
	a1.Transcript, a1.Feedback, a1.Outcome = &text, &fb, model.OutcomeScored
	a3 := recorded("Q3", "y")
	a3.Transcript, a3.Feedback = &text, &fb

	rec := BuildRecord("", "", 95*time.Second+400*time.Millisecond, []model.Answer{skipped("Q0"), a1, skipped("Q2"), a3}, now)

	if rec.Title != "Session May 4, 2026 3:30 PM" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Profession != model.DefaultProfession {
		t.Errorf("Profession = %q", rec.Profession)
	}
	if rec.TotalSessionTime != 95 {
		t.Errorf("TotalSessionTime = %d", rec.TotalSessionTime)
	}
	var order []string
	for _, it := range rec.Items {
		order = append(order, it.Question)
	}
	if strings.Join(order, ",") != "Q1,Q3,Q0,Q2" {
		t.Errorf("item order = %v, want skipped last", order)
	}
	if rec.Items[0].Tip != "tip for Q1" {
		t.Errorf("tip not carried: %+v", rec.Items[0])
	}
	if rec.OverallAvg == nil || *rec.OverallAvg != 88 {
		t.Errorf("OverallAvg = %v", rec.OverallAvg)
	}
	if rec.Counts != (model.Counts{TotalQuestions: 4, Answered: 2, Skipped: 2}) {
		t.Errorf("Counts = %+v", rec.Counts)
	}

	back := AnswersFromRecord(rec)
	if got := Summarize(back).OverallAvg; got == nil || *got != 88 {
		t.Errorf("re-summarized average = %v", got)
	}
}
