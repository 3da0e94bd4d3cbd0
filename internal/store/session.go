package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/interviewprep/interviewprep/internal/model"
)

const sessionColumns = `id, uid, title, profession, created_at, overall_avg,
	total_session_time, total_questions, answered, skipped, items`

func scanSession(row rowScanner) (*model.SessionRecord, error) {
	var (
		rec   model.SessionRecord
		avg   sql.NullInt64
		items string
	)
	err := row.Scan(&rec.ID, &rec.UID, &rec.Title, &rec.Profession, &rec.CreatedAt, &avg,
		&rec.TotalSessionTime, &rec.Counts.TotalQuestions, &rec.Counts.Answered, &rec.Counts.Skipped, &items)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		v := int(avg.Int64)
		rec.OverallAvg = &v
	}
	if err := json.Unmarshal([]byte(items), &rec.Items); err != nil {
		return nil, fmt.Errorf("decode items of session %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// SaveSession stores rec under uid and returns its ID. A new ID is
// generated when rec.ID is empty. Records are written once: saving an ID the
// user already has leaves the stored record unchanged, and an ID owned by
// another user returns ErrConflict.
func (s *Store) SaveSession(ctx context.Context, uid string, rec model.SessionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Items == nil {
		rec.Items = []model.SessionItem{}
	}
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	var avg any
	if rec.OverallAvg != nil {
		avg = *rec.OverallAvg
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, uid, rec.Title, rec.Profession, rec.CreatedAt, avg,
		rec.TotalSessionTime, rec.Counts.TotalQuestions, rec.Counts.Answered, rec.Counts.Skipped, string(items),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return rec.ID, nil
	}

	var owner string
	if err := s.db.QueryRowContext(ctx, `SELECT uid FROM sessions WHERE id = ?`, rec.ID).Scan(&owner); err != nil {
		return "", fmt.Errorf("check session owner: %w", err)
	}
	if owner != uid {
		return "", ErrConflict
	}
	return rec.ID, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, uid string) ([]model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE uid = ? ORDER BY created_at DESC, id`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetSession returns one of the user's sessions, or ErrNotFound. Sessions
// owned by another user are not visible.
func (s *Store) GetSession(ctx context.Context, uid, id string) (*model.SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE uid = ? AND id = ?`, uid, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}
