// Package billing creates Stripe Checkout sessions and verifies Stripe
// webhook events.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// UIDMetadataKey carries the buyer's uid on the checkout session.
const UIDMetadataKey = "firebaseUid"

var (
	// ErrMissingUID is returned when a completed checkout has no uid metadata.
	ErrMissingUID = errors.New("checkout session has no uid metadata")
	// ErrBadSignature is returned by VerifyEvent for unverifiable payloads.
	ErrBadSignature = errors.New("invalid webhook signature")
)

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Checkout creates one-time payment sessions for a configured price.
type Checkout struct {
	sessions sessionAPI
	priceID  string
	appURL   string
}

// NewCheckout returns a Checkout using the Stripe secret key. appURL is the
// base of the success and cancel redirects.
func NewCheckout(secretKey, priceID, appURL string) *Checkout {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Checkout{sessions: sc.CheckoutSessions, priceID: priceID, appURL: appURL}
}

// Create starts a checkout for uid and returns the hosted payment URL.
// Redirects always go to the app URL; an origin that does not match it is
// ignored.
func (c *Checkout) Create(ctx context.Context, uid, origin string) (string, error) {
	base := strings.TrimRight(c.appURL, "/")
	if origin != "" && !sameOrigin(origin, base) {
		slog.Warn("ignoring checkout origin that does not match app url", "origin", origin)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(c.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(base + "/?checkout=success"),
		CancelURL:         stripe.String(base + "/?checkout=cancel"),
		ClientReferenceID: stripe.String(uid),
		Metadata:          map[string]string{UIDMetadataKey: uid},
	}
	params.Context = ctx

	s, err := c.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.URL, nil
}

func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// VerifyEvent checks the Stripe-Signature header against secret and
// decodes the event.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return event, nil
}

// CompletedCheckoutUID returns the uid of a checkout.session.completed event.
func CompletedCheckoutUID(event stripe.Event) (string, error) {
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return "", fmt.Errorf("unexpected event type %s", event.Type)
	}
	if event.Data == nil {
		return "", ErrMissingUID
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}
	uid := strings.TrimSpace(s.Metadata[UIDMetadataKey])
	if uid == "" {
		return "", ErrMissingUID
	}
	return uid, nil
}
