package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v82"

	"github.com/interviewprep/interviewprep/internal/billing"
	appI18n "github.com/interviewprep/interviewprep/internal/i18n"
	"github.com/interviewprep/interviewprep/internal/metrics"
	"github.com/interviewprep/interviewprep/internal/model"
)

// maxWebhookBytes bounds webhook payloads.
const maxWebhookBytes = 65536

type checkoutRequest struct {
	UID string `json:"uid"`
}

func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := model.IdentityFromContext(ctx)

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}
	if req.UID == "" {
		writeError(w, http.StatusBadRequest, appI18n.Td(ctx, "MissingFields", map[string]any{"Fields": "uid"}))
		return
	}
	if req.UID != id.UID {
		slog.Warn("checkout uid does not match token", "uid", id.UID)
		writeError(w, http.StatusForbidden, appI18n.T(ctx, "UIDMismatch"))
		return
	}

	url, err := h.checkout.Create(ctx, id.UID, r.Header.Get("Origin"))
	if err != nil {
		slog.Error("failed to create checkout session", "uid", id.UID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "CheckoutFailed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleStripeWebhook marks the buyer paid on checkout completion. Every
// other verified event is acknowledged and ignored.
func (h *Handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "BadRequest"))
		return
	}

	event, err := billing.VerifyEvent(payload, r.Header.Get("Stripe-Signature"), h.config.WebhookSecret)
	if err != nil {
		slog.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, "InvalidSignature"))
		return
	}

	eventType := string(event.Type)
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	uid, err := billing.CompletedCheckoutUID(event)
	if err != nil {
		slog.Warn("completed checkout without uid", "event_id", event.ID, "error", err)
		metrics.WebhookEvents.WithLabelValues(eventType, "missing_uid").Inc()
		msgID := "BadRequest"
		if errors.Is(err, billing.ErrMissingUID) {
			msgID = "MissingUID"
		}
		writeError(w, http.StatusBadRequest, appI18n.T(ctx, msgID))
		return
	}

	paidAt := h.config.Now()
	if err := h.store.MarkPaid(ctx, uid, paidAt, paidAt.Add(h.config.SubscriptionLength)); err != nil {
		slog.Error("failed to record payment", "uid", uid, "event_id", event.ID, "error", err)
		metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "InternalError"))
		return
	}
	metrics.WebhookEvents.WithLabelValues(eventType, "applied").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
