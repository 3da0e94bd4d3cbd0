package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/interviewprep/interviewprep/internal/apiclient"
	"github.com/interviewprep/interviewprep/internal/capture"
	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/session"
	"github.com/interviewprep/interviewprep/internal/summary"
)

func practiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run an interview from pre-recorded answer files",
		Long: `Runs a full interview against a server. Answers are read from a
directory of files named by question number (01.webm, 02.mp3, ...). A
missing file skips that question. The session average is folded into the
account once per interview; the full record is saved unless --save=false.`,
		RunE: runPractice,
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "API base URL")
	f.String("token", "", "Bearer ID token (or set INTERVIEWPREP_TOKEN)")
	f.String("answers", "", "Directory of answer files (required)")
	f.String("profession", "Dental", "Profession to practice for")
	f.String("mode", string(model.ModeAudio), "Capture mode (audio, video)")
	f.Int("count", 5, "Number of questions")
	f.Bool("big3", true, "Start with the profession's Big 3 questions")
	f.String("title", "", "Session title (default: date and time)")
	f.Duration("time-limit", session.DefaultTimeLimit, "Recording limit per question")
	f.StringP("output", "o", "-", "Where to write the session record (- for stdout)")
	f.String("archive", "", "Write recordings, transcripts and feedback to this zip file")
	f.Bool("save", true, "Save the session record to the account")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("answers")

	return cmd
}

func runPractice(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	token := v.GetString("token")
	if token == "" {
		return errors.New("token is required")
	}
	client := apiclient.New(v.GetString("server"), token)

	account, err := client.Account(ctx)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	slog.Info("signed in", "uid", account.UID, "entitlement", account.Entitlement, "usage", account.UsageCount)
	if !account.Active {
		return fmt.Errorf("account cannot practice: %s", account.Message)
	}

	cfg := model.InterviewConfig{
		Profession:    v.GetString("profession"),
		Mode:          model.Mode(strings.ToLower(v.GetString("mode"))),
		Big3:          v.GetBool("big3"),
		QuestionCount: v.GetInt("count"),
	}
	cfg.Questions, err = client.Questions(ctx, cfg.Profession, cfg.Big3, cfg.QuestionCount)
	if err != nil {
		return fmt.Errorf("select questions: %w", err)
	}

	done, err := interview(ctx, cfg, v.GetString("answers"), v.GetDuration("time-limit"))
	if err != nil {
		return err
	}

	_, err = submit(ctx, client, done, submitOptions{
		Title:   v.GetString("title"),
		Output:  v.GetString("output"),
		Archive: v.GetString("archive"),
		Save:    v.GetBool("save"),
	})
	return err
}

// finishedInterview is the controller's output for one session.
type finishedInterview struct {
	SessionID  string
	Profession string
	Answers    []model.Answer
	Elapsed    time.Duration
}

type submitOptions struct {
	Title   string
	Output  string
	Archive string
	Save    bool
}

// submit processes a finished interview and reports it to the account.
// The rollup is keyed on the session ID and happens whether or not the
// record is saved, so submitting the same interview again counts once.
func submit(ctx context.Context, client *apiclient.Client, done finishedInterview, opts submitOptions) (model.SessionRecord, error) {
	proc := summary.Processor{
		Transcriber: client,
		Scorer:      client,
		Progress: func(i, n int) {
			slog.Info("processing answer", "question", i+1, "of", n)
		},
	}
	processed, err := proc.Process(ctx, done.Answers, done.Profession)
	if errors.Is(err, summary.ErrLimitReached) {
		return model.SessionRecord{}, errors.New("usage limit reached; upgrade to keep practicing")
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("process answers: %w", err)
	}

	rec := summary.BuildRecord(opts.Title, done.Profession, done.Elapsed, processed, time.Now())
	rec.ID = done.SessionID
	if err := writeJSONOutput(opts.Output, rec); err != nil {
		return rec, err
	}
	if opts.Archive != "" {
		if err := writeArchive(opts.Archive, processed); err != nil {
			return rec, err
		}
		slog.Info("wrote archive", "path", opts.Archive)
	}

	if rec.OverallAvg != nil {
		rollup, err := client.Rollup(ctx, done.SessionID, rec.OverallAvg)
		if err != nil {
			return rec, fmt.Errorf("update averages: %w", err)
		}
		attrs := []any{"session_id", done.SessionID, "applied", rollup.Applied, "sessions_completed", rollup.SessionsCompleted}
		if rollup.RollingAverageScore != nil {
			attrs = append(attrs, "rolling_average", *rollup.RollingAverageScore)
		}
		if rollup.Improvement != nil {
			attrs = append(attrs, "improvement", *rollup.Improvement)
		}
		slog.Info("updated averages", attrs...)
	}
	if !opts.Save {
		return rec, nil
	}

	saved, err := client.SaveSession(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("save session: %w", err)
	}
	attrs := []any{"id", saved.ID}
	if saved.OverallAvg != nil {
		attrs = append(attrs, "overall_avg", *saved.OverallAvg)
	}
	slog.Info("saved session", attrs...)
	return saved, nil
}

func writeArchive(path string, answers []model.Answer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := summary.WriteArchive(f, answers); err != nil {
		f.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	return f.Close()
}

// interview walks every question through the controller, recording the
// questions that have an answer file and skipping the rest.
func interview(ctx context.Context, cfg model.InterviewConfig, dir string, limit time.Duration, opts ...session.Option) (finishedInterview, error) {
	var final []model.Answer
	opts = append(opts,
		session.WithTimeLimit(limit),
		session.OnComplete(func(a []model.Answer) { final = a }),
	)
	ctrl, err := session.New(cfg, capture.NewAdapter(capture.FileDevice{Dir: dir}), capture.FileRecorders(), opts...)
	if err != nil {
		return finishedInterview{}, fmt.Errorf("start session: %w", err)
	}
	defer ctrl.Close()

	for ctrl.State() != session.Completed {
		if err := ctx.Err(); err != nil {
			return finishedInterview{}, err
		}
		i, q := ctrl.Index(), ctrl.Question()
		slog.Info("question", "number", i+1, "text", q.Text)

		if capture.AnswerFile(dir, i) == "" {
			slog.Info("no answer file, skipping", "number", i+1)
			if err := ctrl.Skip(false); err != nil {
				return finishedInterview{}, fmt.Errorf("skip question %d: %w", i+1, err)
			}
			continue
		}
		if err := record(ctx, ctrl); err != nil {
			slog.Warn("recording failed, skipping", "number", i+1, "error", err, "status", ctrl.Status())
			if err := ctrl.Skip(true); err != nil {
				return finishedInterview{}, fmt.Errorf("skip question %d: %w", i+1, err)
			}
			continue
		}
		if err := ctrl.Advance(); err != nil {
			return finishedInterview{}, fmt.Errorf("advance past question %d: %w", i+1, err)
		}
	}
	return finishedInterview{
		SessionID:  ctrl.SessionID(),
		Profession: cfg.Profession,
		Answers:    final,
		Elapsed:    ctrl.SessionElapsed(),
	}, nil
}

func record(ctx context.Context, ctrl *session.Controller) error {
	if err := ctrl.StartQuestion(ctx); err != nil {
		return err
	}
	if err := ctrl.BeginRecording(ctx); err != nil {
		return err
	}
	return ctrl.StopRecording(ctx)
}
