package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/interviewprep/interviewprep/internal/model"
)

const userColumns = `uid, email, email_verified, trial_expires_at, has_paid, paid_at,
	subscription_ends_at, usage_count, sessions_completed, rolling_average_score,
	last_average_score, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.UserAccount, error) {
	var (
		u                    model.UserAccount
		trial, paid, ends    sql.NullTime
		rolling, lastAverage sql.NullFloat64
	)
	err := row.Scan(&u.UID, &u.Email, &u.EmailVerified, &trial, &u.HasPaid, &paid,
		&ends, &u.UsageCount, &u.SessionsCompleted, &rolling, &lastAverage, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.TrialExpiresAt = nullTime(trial)
	u.PaidAt = nullTime(paid)
	u.SubscriptionEndsAt = nullTime(ends)
	u.RollingAverageScore = nullFloat(rolling)
	u.LastAverageScore = nullFloat(lastAverage)
	return &u, nil
}

// EnsureUser creates the account on first sight with a trial ending
// trialLength after now, and refreshes the email fields otherwise.
func (s *Store) EnsureUser(ctx context.Context, id model.Identity, trialLength time.Duration, now time.Time) (*model.UserAccount, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, email_verified, trial_expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(uid) DO NOTHING`,
		id.UID, id.Email, id.EmailVerified, now.Add(trialLength), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("created user", "uid", id.UID, "trial_ends", now.Add(trialLength))
	} else if id.Email != "" {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE users SET email = ?, email_verified = ? WHERE uid = ?`,
			id.Email, id.EmailVerified, id.UID,
		); err != nil {
			return nil, fmt.Errorf("update user email: %w", err)
		}
	}
	u, err := s.GetUser(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// GetUser returns the account, or nil if the uid is unknown.
func (s *Store) GetUser(ctx context.Context, uid string) (*model.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = ?`, uid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.ProcessedSessionIDs, err = s.processedSessions(ctx, uid)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) processedSessions(ctx context.Context, uid string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM processed_sessions WHERE uid = ? ORDER BY processed_at, session_id`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUsers returns all accounts without their processed-session lists.
func (s *Store) ListUsers(ctx context.Context) ([]model.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.UserAccount
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// IncrementUsage adds one to the usage counter unless it has reached
// ceiling (0 disables the ceiling). It returns the new count.
func (s *Store) IncrementUsage(ctx context.Context, uid string, ceiling int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET usage_count = usage_count + 1
		 WHERE uid = ? AND (? <= 0 OR usage_count < ?)
		 RETURNING usage_count`,
		uid, ceiling, ceiling,
	).Scan(&count)
	if err == sql.ErrNoRows {
		u, gerr := s.GetUser(ctx, uid)
		if gerr != nil {
			return 0, gerr
		}
		if u == nil {
			return 0, ErrNotFound
		}
		return u.UsageCount, ErrUsageLimit
	}
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

// MarkPaid records a completed payment, creating the account if the
// payment arrives before the user was first seen.
func (s *Store) MarkPaid(ctx context.Context, uid string, paidAt, endsAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uid, has_paid, paid_at, subscription_ends_at, created_at)
		 VALUES (?, 1, ?, ?, ?)
		 ON CONFLICT(uid) DO UPDATE SET
		   has_paid = 1, paid_at = excluded.paid_at, subscription_ends_at = excluded.subscription_ends_at`,
		uid, paidAt, endsAt, paidAt,
	)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	slog.Info("marked user paid", "uid", uid, "ends", endsAt)
	return nil
}

// ApplyRollup folds one session average into the user's rolling average.
// A session ID that was already applied leaves the account unchanged.
func (s *Store) ApplyRollup(ctx context.Context, uid, sessionID string, avg float64) (model.Rollup, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Rollup{}, err
	}
	defer tx.Rollback()

	var (
		count                int
		rolling, lastAverage sql.NullFloat64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT sessions_completed, rolling_average_score, last_average_score FROM users WHERE uid = ?`, uid,
	).Scan(&count, &rolling, &lastAverage)
	if err == sql.ErrNoRows {
		return model.Rollup{}, ErrNotFound
	}
	if err != nil {
		return model.Rollup{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO processed_sessions (uid, session_id, processed_at) VALUES (?, ?, ?)
		 ON CONFLICT(uid, session_id) DO NOTHING`,
		uid, sessionID, time.Now(),
	)
	if err != nil {
		return model.Rollup{}, fmt.Errorf("record processed session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Rollup{SessionsCompleted: count, RollingAverageScore: nullFloat(rolling)}, nil
	}

	next := RollingAverage(nullFloat(rolling), count, avg)
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET sessions_completed = ?, rolling_average_score = ?, last_average_score = ? WHERE uid = ?`,
		count+1, next, avg, uid,
	); err != nil {
		return model.Rollup{}, fmt.Errorf("update rollup: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Rollup{}, err
	}

	r := model.Rollup{Applied: true, SessionsCompleted: count + 1, RollingAverageScore: &next}
	if prev := nullFloat(lastAverage); prev != nil {
		d := avg - *prev
		r.Improvement = &d
	}
	return r, nil
}
