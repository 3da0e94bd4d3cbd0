package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/questions"
	"github.com/interviewprep/interviewprep/internal/store"
)

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}
	if users == nil {
		users = []model.UserAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleAdminListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.ListQuestions(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		slog.Error("failed to list questions", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}
	if qs == nil {
		qs = []model.Question{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

func (h *Handler) handleAdminCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"))
		return
	}
	q.ID = ""
	id, err := h.store.InsertQuestion(r.Context(), q)
	if h.questionError(w, r, err) {
		return
	}
	q.ID = id
	slog.Info("created question", "id", id, "by", model.IdentityFromContext(r.Context()).UID)
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleAdminUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"))
		return
	}
	q.ID = chi.URLParam(r, "questionID")
	if h.questionError(w, r, h.store.UpdateQuestion(r.Context(), q)) {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleAdminDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if h.questionError(w, r, h.store.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID"))) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminImportQuestions accepts a JSON or YAML seed file upload.
func (h *Handler) handleAdminImportQuestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": "file"}))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}

	res, err := questions.Import(ctx, h.store, header.Filename, data, true)
	if err != nil {
		slog.Warn("question import failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("uploaded questions via admin", "filename", header.Filename, "count", res.Imported)
	writeJSON(w, http.StatusOK, res)
}

// questionError writes the response for a failed question write and
// reports whether it did.
func (h *Handler) questionError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, model.ErrInvalidQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "NotFound"))
	default:
		slog.Error("question write failed", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
	}
	return true
}
