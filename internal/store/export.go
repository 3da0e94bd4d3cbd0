package store

import (
	"context"
	"fmt"
	"time"

	"github.com/interviewprep/interviewprep/internal/entitlement"
	"github.com/interviewprep/interviewprep/internal/model"
)

// Export collects a user's account summary and saved sessions from any
// Repository. It returns ErrNotFound for an unknown uid.
func Export(ctx context.Context, repo Repository, uid string, now time.Time) (*model.SessionExport, error) {
	u, err := repo.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	sessions, err := repo.ListSessions(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.SessionRecord{}
	}
	return &model.SessionExport{
		UID:        u.UID,
		Email:      u.Email,
		ExportedAt: now,
		Account: model.ExportedAccount{
			Entitlement:         string(entitlement.Derive(u, now)),
			UsageCount:          u.UsageCount,
			SessionsCompleted:   u.SessionsCompleted,
			RollingAverageScore: u.RollingAverageScore,
		},
		Sessions: sessions,
	}, nil
}
