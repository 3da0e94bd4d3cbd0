package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/interviewprep/interviewprep/internal/entitlement"
	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/metrics"
	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/session"
	"github.com/interviewprep/interviewprep/internal/store"
)

type accountResponse struct {
	UID                 string     `json:"uid"`
	Email               string     `json:"email"`
	Entitlement         string     `json:"entitlement"`
	Active              bool       `json:"active"`
	Message             string     `json:"message"`
	TrialExpiresAt      *time.Time `json:"trialExpiresAt"`
	PaidUntil           *time.Time `json:"paidUntil"`
	UsageCount          int        `json:"usageCount"`
	UsageCeiling        int        `json:"usageCeiling"`
	SessionsCompleted   int        `json:"sessionsCompleted"`
	RollingAverageScore *float64   `json:"rollingAverageScore"`
	LastAverageScore    *float64   `json:"lastAverageScore"`
	Admin               bool       `json:"admin"`
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	u := accountFromContext(r.Context())
	now := h.config.Now()
	state := entitlement.Derive(u, now)

	resp := accountResponse{
		UID:                 u.UID,
		Email:               u.Email,
		Entitlement:         string(state),
		Active:              state.Active(),
		TrialExpiresAt:      u.TrialExpiresAt,
		PaidUntil:           entitlement.PaidUntil(u),
		UsageCount:          u.UsageCount,
		UsageCeiling:        h.config.UsageCeiling,
		SessionsCompleted:   u.SessionsCompleted,
		RollingAverageScore: u.RollingAverageScore,
		LastAverageScore:    u.LastAverageScore,
		Admin:               model.IdentityFromContext(r.Context()).Admin,
	}

	ctx := r.Context()
	switch state {
	case entitlement.TrialActive:
		hours := int(math.Ceil(entitlement.TrialRemaining(u, now).Hours()))
		resp.Message = appI18n.Tp(ctx, "TrialHoursLeft", hours)
	case entitlement.TrialExpired:
		resp.Message = appI18n.T(ctx, "TrialEnded")
	case entitlement.PaidActive:
		resp.Message = appI18n.Td(ctx, "PaidUntil", map[string]any{"Date": resp.PaidUntil.Format(time.DateOnly)})
	case entitlement.PaidExpired:
		var date string
		if resp.PaidUntil != nil {
			date = resp.PaidUntil.Format(time.DateOnly)
		}
		resp.Message = appI18n.Td(ctx, "PaidExpired", map[string]any{"Date": date})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) denyLimit(w http.ResponseWriter, r *http.Request, reason entitlement.Reason) {
	metrics.Denials.WithLabelValues(string(reason)).Inc()
	metrics.Transcriptions.WithLabelValues("denied").Inc()
	msgID := "NoEntitlement"
	if reason == entitlement.ReasonUsageLimit {
		msgID = "LimitReached"
	}
	writeJSON(w, http.StatusForbidden, errorBody{
		Error:        appI18n.T(r.Context(), msgID),
		LimitReached: true,
		Reason:       string(reason),
	})
}

// handleTranscribe gates, transcribes and then counts one audio upload.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := accountFromContext(ctx)

	if d := entitlement.CanTranscribe(u, h.config.Now(), h.config.UsageCeiling); !d.Allowed {
		slog.Info("transcription denied", "uid", u.UID, "reason", d.Reason)
		h.denyLimit(w, r, d.Reason)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": "file"}))
		return
	}
	defer file.Close()

	text, err := h.ai.Transcribe(ctx, file, header.Filename)
	if err != nil {
		slog.Error("transcription failed", "uid", u.UID, "error", err)
		metrics.Transcriptions.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "TranscriptionFailed"))
		return
	}

	count, err := h.store.IncrementUsage(ctx, u.UID, h.config.UsageCeiling)
	switch {
	case errors.Is(err, store.ErrUsageLimit):
		// A concurrent request used the last slot.
		h.denyLimit(w, r, entitlement.ReasonUsageLimit)
		return
	case err != nil:
		slog.Error("failed to record usage", "uid", u.UID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}

	metrics.Transcriptions.WithLabelValues("ok").Inc()
	slog.Debug("transcribed answer", "uid", u.UID, "usage", count)
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "usageCount": count})
}

type feedbackRequest struct {
	Question   string `json:"question"`
	Transcript string `json:"transcript"`
	Profession string `json:"profession"`
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"question", req.Question},
		{"transcript", req.Transcript},
		{"profession", req.Profession},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": strings.Join(missing, ", ")}))
		return
	}

	ctx = model.ContextWithProfession(ctx, req.Profession)
	result, err := h.ai.Score(ctx, req.Question, req.Transcript, model.ProfessionFromContext(ctx))
	if err != nil {
		slog.Error("feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "FeedbackFailed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": result})
}

// handleQuestions selects an interview's questions for a profession.
func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	cfg := model.DefaultInterviewConfig()
	if p := strings.TrimSpace(q.Get("profession")); p != "" {
		cfg.Profession = p
	}
	if v := q.Get("big3"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
			return
		}
		cfg.Big3 = b
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
			return
		}
		cfg.QuestionCount = n
	}

	bank, err := h.store.ListQuestions(ctx, cfg.Profession)
	if err != nil {
		slog.Error("failed to list questions", "profession", cfg.Profession, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}
	selected := session.SelectQuestions(bank, cfg, nil)
	if selected == nil {
		selected = []model.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profession": cfg.Profession, "questions": selected})
}
