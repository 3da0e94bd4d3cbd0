package entitlement

import (
	"testing"
	"time"

	"github.com/interviewprep/interviewprep/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestDerive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		user *model.UserAccount
		want State
	}{
		{"nil user", nil, TrialExpired},
		{"trial ahead", &model.UserAccount{TrialExpiresAt: ptr(now.Add(2 * time.Hour))}, TrialActive},
		{"trial at boundary", &model.UserAccount{TrialExpiresAt: ptr(now)}, TrialExpired},
		{"trial passed", &model.UserAccount{TrialExpiresAt: ptr(now.Add(-time.Minute))}, TrialExpired},
		{"no trial recorded", &model.UserAccount{}, TrialExpired},
		{"paid window open", &model.UserAccount{
			HasPaid:            true,
			SubscriptionEndsAt: ptr(now.Add(24 * time.Hour)),
		}, PaidActive},
		{"paid window closes at now", &model.UserAccount{
			HasPaid:            true,
			SubscriptionEndsAt: ptr(now),
		}, PaidActive},
		{"paid window closed", &model.UserAccount{
			HasPaid:            true,
			SubscriptionEndsAt: ptr(now.Add(-time.Second)),
			TrialExpiresAt:     ptr(now.Add(time.Hour)),
		}, PaidExpired},
		{"paidAt fallback open", &model.UserAccount{
			HasPaid: true,
			PaidAt:  ptr(now.Add(-364 * 24 * time.Hour)),
		}, PaidActive},
		{"paidAt fallback closed", &model.UserAccount{
			HasPaid: true,
			PaidAt:  ptr(now.Add(-366 * 24 * time.Hour)),
		}, PaidExpired},
		{"paid without timestamps", &model.UserAccount{HasPaid: true}, PaidExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Derive(tt.user, now); got != tt.want {
				t.Errorf("Derive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrialFlipsWithoutWrite(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &model.UserAccount{TrialExpiresAt: ptr(start.Add(2 * time.Hour))}

	if got := Derive(u, start); got != TrialActive {
		t.Fatalf("before expiry: got %q, want %q", got, TrialActive)
	}
	later := start.Add(2*time.Hour + time.Second)
	if got := Derive(u, later); got != TrialExpired {
		t.Fatalf("after expiry: got %q, want %q", got, TrialExpired)
	}
	if d := CanTranscribe(u, later, DefaultUsageCeiling); d.Allowed {
		t.Error("expired trial must not be allowed to transcribe")
	}
}

func TestCanTranscribe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active := ptr(now.Add(time.Hour))

	tests := []struct {
		name    string
		user    *model.UserAccount
		ceiling int
		want    Decision
	}{
		{"unknown user", nil, 10, Decision{Reason: ReasonUnknownUser}},
		{"trial under ceiling", &model.UserAccount{TrialExpiresAt: active, UsageCount: 9}, 10, Decision{Allowed: true}},
		{"ceiling reached", &model.UserAccount{TrialExpiresAt: active, UsageCount: 10}, 10, Decision{Reason: ReasonUsageLimit}},
		{"ceiling applies to paid users", &model.UserAccount{
			HasPaid: true, SubscriptionEndsAt: ptr(now.Add(time.Hour)), UsageCount: 10,
		}, 10, Decision{Reason: ReasonUsageLimit}},
		{"expired trial", &model.UserAccount{TrialExpiresAt: ptr(now.Add(-time.Hour))}, 10, Decision{Reason: ReasonNoEntitlement}},
		{"zero ceiling disables cap", &model.UserAccount{TrialExpiresAt: active, UsageCount: 1000}, 0, Decision{Allowed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTranscribe(tt.user, now, tt.ceiling); got != tt.want {
				t.Errorf("CanTranscribe() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrialRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &model.UserAccount{TrialExpiresAt: ptr(now.Add(90 * time.Minute))}
	if got := TrialRemaining(u, now); got != 90*time.Minute {
		t.Errorf("TrialRemaining() = %v, want 90m", got)
	}
	if got := TrialRemaining(u, now.Add(3*time.Hour)); got != 0 {
		t.Errorf("TrialRemaining() after expiry = %v, want 0", got)
	}
}
