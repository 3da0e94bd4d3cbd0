// Package handler serves the InterviewPrep JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/interviewprep/interviewprep/internal/auth"
	"github.com/interviewprep/interviewprep/internal/entitlement"
	"github.com/interviewprep/interviewprep/internal/store"
	"github.com/interviewprep/interviewprep/internal/summary"
)

// AI is the speech and scoring backend.
type AI interface {
	summary.Transcriber
	summary.Scorer
}

// CheckoutCreator starts a hosted payment for uid and returns its URL.
type CheckoutCreator interface {
	Create(ctx context.Context, uid, origin string) (string, error)
}

// Config holds request-handling policy.
type Config struct {
	// UsageCeiling caps lifetime transcriptions per user; 0 disables it.
	UsageCeiling int
	TrialLength  time.Duration
	// SubscriptionLength is added to the payment time on checkout completion.
	SubscriptionLength time.Duration
	WebhookSecret      string
	MaxUploadBytes     int64
	Now                func() time.Time
}

func (c *Config) defaults() {
	if c.TrialLength <= 0 {
		c.TrialLength = entitlement.DefaultTrialLength
	}
	if c.SubscriptionLength <= 0 {
		c.SubscriptionLength = entitlement.PaidPeriod
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 25 << 20
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    store.Repository
	verifier auth.Verifier
	ai       AI
	checkout CheckoutCreator
	config   Config
}

// New creates a new Handler.
func New(repo store.Repository, v auth.Verifier, ai AI, checkout CheckoutCreator, cfg Config) (*Handler, error) {
	if repo == nil || v == nil || ai == nil || checkout == nil {
		return nil, errors.New("handler: store, verifier, AI and checkout are required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("handler: webhook secret is required")
	}
	cfg.defaults()
	return &Handler{store: repo, verifier: v, ai: ai, checkout: checkout, config: cfg}, nil
}

// Routes registers all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
	r.Post("/api/webhooks/stripe", h.handleStripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/account", h.handleAccount)
		r.Post("/api/transcribe", h.handleTranscribe)
		r.Post("/api/feedback", h.handleFeedback)
		r.Post("/api/create-checkout-session", h.handleCreateCheckout)
		r.Get("/api/questions", h.handleQuestions)

		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", h.handleListSessions)
			r.Post("/", h.handleSaveSession)
			r.Get("/{sessionID}", h.handleGetSession)
			r.Post("/{sessionID}/rollup", h.handleRollup)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/users", h.handleAdminUsers)
			r.Get("/questions", h.handleAdminListQuestions)
			r.Post("/questions", h.handleAdminCreateQuestion)
			r.Post("/questions/import", h.handleAdminImportQuestions)
			r.Put("/questions/{questionID}", h.handleAdminUpdateQuestion)
			r.Delete("/questions/{questionID}", h.handleAdminDeleteQuestion)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error        string `json:"error"`
	LimitReached bool   `json:"limitReached,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
