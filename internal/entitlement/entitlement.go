// Package entitlement derives a user's access rights from stored timestamps.
package entitlement

import (
	"time"

	"github.com/interviewprep/interviewprep/internal/model"
)

// State is the access right exposed to clients.
type State string

const (
	TrialActive  State = "trial_active"
	TrialExpired State = "trial_expired"
	PaidActive   State = "paid_active"
	PaidExpired  State = "paid_expired"
)

// PaidPeriod is how long one payment grants access.
const PaidPeriod = 365 * 24 * time.Hour

// DefaultTrialLength is the trial granted when an account is first seen.
const DefaultTrialLength = 24 * time.Hour

// DefaultUsageCeiling caps lifetime transcriptions per user.
const DefaultUsageCeiling = 100

// Reason explains a denied Decision.
type Reason string

const (
	ReasonUsageLimit    Reason = "usage_limit"
	ReasonNoEntitlement Reason = "no_entitlement"
	ReasonUnknownUser   Reason = "unknown_user"
)

// Decision is the result of CanTranscribe.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// PaidUntil returns the end of the paid window, or nil if the user never paid.
func PaidUntil(u *model.UserAccount) *time.Time {
	if u == nil || !u.HasPaid {
		return nil
	}
	if u.SubscriptionEndsAt != nil {
		return u.SubscriptionEndsAt
	}
	if u.PaidAt != nil {
		end := u.PaidAt.Add(PaidPeriod)
		return &end
	}
	return nil
}

// Derive computes the state for now. It is recomputed on every read.
func Derive(u *model.UserAccount, now time.Time) State {
	if u == nil {
		return TrialExpired
	}
	if u.HasPaid {
		if end := PaidUntil(u); end != nil && !now.After(*end) {
			return PaidActive
		}
		return PaidExpired
	}
	if u.TrialExpiresAt != nil && now.Before(*u.TrialExpiresAt) {
		return TrialActive
	}
	return TrialExpired
}

// Active reports whether the state grants access.
func (s State) Active() bool {
	return s == TrialActive || s == PaidActive
}

// CanTranscribe gates a transcription call. The usage ceiling applies
// regardless of payment state.
func CanTranscribe(u *model.UserAccount, now time.Time, ceiling int) Decision {
	if u == nil {
		return Decision{Reason: ReasonUnknownUser}
	}
	if ceiling > 0 && u.UsageCount >= ceiling {
		return Decision{Reason: ReasonUsageLimit}
	}
	if !Derive(u, now).Active() {
		return Decision{Reason: ReasonNoEntitlement}
	}
	return Decision{Allowed: true}
}

// TrialRemaining returns how much of the trial is left, or zero.
func TrialRemaining(u *model.UserAccount, now time.Time) time.Duration {
	if u == nil || u.TrialExpiresAt == nil {
		return 0
	}
	if d := u.TrialExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
