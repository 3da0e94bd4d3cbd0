package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/interviewprep/interviewprep/internal/apiclient"
	"github.com/interviewprep/interviewprep/internal/auth"
	"github.com/interviewprep/interviewprep/internal/handler"
	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/session"
	"github.com/interviewprep/interviewprep/internal/store"
)

type cannedAI struct{}

func (cannedAI) Transcribe(_ context.Context, audio io.Reader, _ string) (string, error) {
	_, err := io.Copy(io.Discard, audio)
	return "I want to care for patients in my own community.", err
}

func (cannedAI) Score(_ context.Context, _, _, _ string) (model.ScoreResult, error) {
	return model.ScoreResult{OverallScore: 80, RubricVersion: "v1", Suggestions: []string{}}, nil
}

type noCheckout struct{}

func (noCheckout) Create(context.Context, string, string) (string, error) { return "", nil }

func newPracticeServer(t *testing.T) (*apiclient.Client, *store.Store) {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	signer := auth.NewHMACVerifier("0123456789abcdef", "", nil)
	h, err := handler.New(s, signer, cannedAI{}, noCheckout{}, handler.Config{UsageCeiling: 20, WebhookSecret: "whsec_test"})
	if err != nil {
		t.Fatalf("handler.New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tok, err := signer.Sign(model.Identity{UID: "u1", Email: "u1@example.com"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return apiclient.New(srv.URL, tok, apiclient.WithHTTPClient(srv.Client())), s
}

func TestSubmitCountsInterviewOnce(t *testing.T) {
	client, s := newPracticeServer(t)
	ctx := context.Background()

	answers := t.TempDir()
	if err := os.WriteFile(filepath.Join(answers, "01.webm"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := model.InterviewConfig{
		Profession: "Dental",
		Mode:       model.ModeAudio,
		Questions: []model.Question{
			{ID: "q1", Text: "Why dentistry?"},
			{ID: "q2", Text: "Tell us about a conflict."},
		},
	}
	done, err := interview(ctx, cfg, answers, session.DefaultTimeLimit, session.WithSessionID("run-1"))
	if err != nil {
		t.Fatalf("interview: %v", err)
	}
	if done.SessionID != "run-1" || len(done.Answers) != 2 || !done.Answers[1].Skipped {
		t.Fatalf("interview = %+v", done)
	}

	out := t.TempDir()
	tests := []struct {
		name string
		save bool
	}{
		{"unsaved", false},
		{"saved", true},
		{"saved again", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := submit(ctx, client, done, submitOptions{
				Title:  "Practice",
				Output: filepath.Join(out, "session.json"),
				Save:   tt.save,
			})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if rec.ID != "run-1" || rec.OverallAvg == nil || *rec.OverallAvg != 80 {
				t.Errorf("record = %+v", rec)
			}
			account, err := client.Account(ctx)
			if err != nil {
				t.Fatalf("Account: %v", err)
			}
			if account.SessionsCompleted != 1 {
				t.Errorf("SessionsCompleted = %d, want 1", account.SessionsCompleted)
			}
		})
	}

	list, err := s.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 || list[0].ID != "run-1" {
		t.Errorf("sessions = %+v", list)
	}

	data, err := os.ReadFile(filepath.Join(out, "session.json"))
	if err != nil {
		t.Fatal(err)
	}
	var written model.SessionRecord
	if err := json.Unmarshal(data, &written); err != nil || written.ID != "run-1" {
		t.Errorf("output = %+v, %v", written, err)
	}
}

func TestSubmitWritesArchive(t *testing.T) {
	client, _ := newPracticeServer(t)
	ctx := context.Background()

	answers := t.TempDir()
	if err := os.WriteFile(filepath.Join(answers, "01.webm"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := model.InterviewConfig{Profession: "Medical", Mode: model.ModeAudio, Questions: []model.Question{{ID: "q1", Text: "Why us?"}}}
	done, err := interview(ctx, cfg, answers, session.DefaultTimeLimit)
	if err != nil {
		t.Fatalf("interview: %v", err)
	}

	dir := t.TempDir()
	archive := filepath.Join(dir, "interview.zip")
	if _, err := submit(ctx, client, done, submitOptions{Output: filepath.Join(dir, "session.json"), Archive: archive}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"Q1 - Why us?/audio.webm", "Q1 - Why us?/transcript.txt", "Q1 - Why us?/feedback.json"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}
