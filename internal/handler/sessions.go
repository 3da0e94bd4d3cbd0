package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/metrics"
	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/store"
	"github.com/interviewprep/interviewprep/internal/summary"
)

// maxSessionIDLen bounds caller-chosen session IDs.
const maxSessionIDLen = 64

type saveSessionRequest struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Profession       string              `json:"profession"`
	TotalSessionTime int                 `json:"totalSessionTime"`
	Items            []model.SessionItem `json:"items"`
}

// handleSaveSession stores a session summary. Counts and the overall
// average are recomputed from the items rather than trusted. A request
// that names an ID already saved by the caller returns the stored record
// unchanged.
func (h *Handler) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := accountFromContext(ctx)

	var req saveSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}
	if len(req.Items) == 0 || req.TotalSessionTime < 0 {
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": "items"}))
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if len(req.ID) > maxSessionIDLen || strings.Contains(req.ID, "/") {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.Question) == "" {
			writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": "items.question"}))
			return
		}
	}

	answers := summary.AnswersFromRecord(model.SessionRecord{Items: req.Items})
	rec := summary.BuildRecord(strings.TrimSpace(req.Title), strings.TrimSpace(req.Profession),
		time.Duration(req.TotalSessionTime)*time.Second, answers, h.config.Now())

	rec.ID = req.ID

	id, err := h.store.SaveSession(ctx, u.UID, rec)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, appI18n.T(ctx, "SessionConflict"))
		return
	}
	if err != nil {
		slog.Error("failed to save session", "uid", u.UID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}
	stored, err := h.store.GetSession(ctx, u.UID, id)
	if err != nil {
		slog.Error("failed to load saved session", "uid", u.UID, "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}

	attrs := []any{"uid", u.UID, "session_id", id}
	if stored.OverallAvg != nil {
		attrs = append(attrs, "overall_avg", *stored.OverallAvg)
	}
	slog.Info("saved session", attrs...)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := accountFromContext(ctx)
	sessions, err := h.store.ListSessions(ctx, u.UID)
	if err != nil {
		slog.Error("failed to list sessions", "uid", u.UID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}
	if sessions == nil {
		sessions = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := accountFromContext(ctx)
	rec, err := h.store.GetSession(ctx, u.UID, chi.URLParam(r, "sessionID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, appI18n.T(ctx, "NotFound"))
		return
	}
	if err != nil {
		slog.Error("failed to get session", "uid", u.UID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type rollupRequest struct {
	OverallAvg *float64 `json:"overallAvg"`
}

// handleRollup folds a session's average into the caller's rolling
// average. Repeating the call for the same session has no effect.
func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := accountFromContext(ctx)
	sessionID := chi.URLParam(r, "sessionID")

	var req rollupRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
			return
		}
	}

	avg := req.OverallAvg
	if avg == nil {
		rec, err := h.store.GetSession(ctx, u.UID, sessionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to get session for rollup", "uid", u.UID, "error", err)
			writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
			return
		}
		if rec != nil && rec.OverallAvg != nil {
			v := float64(*rec.OverallAvg)
			avg = &v
		}
	}
	if avg == nil || *avg < 0 || *avg > 100 {
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": "overallAvg"}))
		return
	}

	rollup, err := h.store.ApplyRollup(ctx, u.UID, sessionID, *avg)
	if err != nil {
		slog.Error("failed to apply rollup", "uid", u.UID, "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}
	result := "applied"
	if !rollup.Applied {
		result = "skipped"
	}
	metrics.RollupsApplied.WithLabelValues(result).Inc()
	writeJSON(w, http.StatusOK, rollup)
}
