package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/interviewprep/interviewprep/internal/model"
)

const questionColumns = `id, text, tags, subtag, is_big3, big3_order, tip`

func scanQuestion(row rowScanner) (*model.Question, error) {
	var (
		q     model.Question
		tags  string
		order sql.NullInt64
	)
	if err := row.Scan(&q.ID, &q.Text, &tags, &q.Subtag, &q.Big3, &order, &q.Tip); err != nil {
		return nil, err
	}
	if order.Valid {
		v := int(order.Int64)
		q.Big3Order = &v
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of question %s: %w", q.ID, err)
	}
	return &q, nil
}

func questionArgs(q model.Question) ([]any, error) {
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return nil, err
	}
	var order any
	if q.Big3Order != nil {
		order = *q.Big3Order
	}
	return []any{q.Text, string(tags), q.Subtag, q.Big3, order, q.Tip}, nil
}

// InsertQuestion validates and stores q, returning its ID.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	args, err := questionArgs(q)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		append([]any{q.ID}, args...)...,
	)
	if err != nil {
		return "", fmt.Errorf("insert question: %w", err)
	}
	return q.ID, nil
}

// UpdateQuestion replaces the stored question with the same ID.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	args, err := questionArgs(q)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET text = ?, tags = ?, subtag = ?, is_big3 = ?, big3_order = ?, tip = ? WHERE id = ?`,
		append(args, q.ID)...,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return q, err
}

// ListQuestions returns all questions, or only those carrying tag
// (case-insensitive) when tag is non-empty. Big 3 questions come first
// in their order.
func (s *Store) ListQuestions(ctx context.Context, tag string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		 ORDER BY is_big3 DESC, big3_order, text, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		if tag != "" && !q.HasTag(strings.TrimSpace(tag)) {
			continue
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}
