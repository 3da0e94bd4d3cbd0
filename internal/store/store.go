package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/interviewprep/interviewprep/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUsageLimit is returned when a usage increment would pass the ceiling.
	ErrUsageLimit = errors.New("usage limit reached")
	// ErrConflict is returned when a caller-chosen ID belongs to another user.
	ErrConflict = errors.New("id already in use")
)

// Repository is the persisted state: users/{uid}, users/{uid}/sessions/{id}
// and questions/{id}. Implemented by Store (SQLite) and mongostore.Store.
type Repository interface {
	Close() error

	EnsureUser(ctx context.Context, id model.Identity, trialLength time.Duration, now time.Time) (*model.UserAccount, error)
	GetUser(ctx context.Context, uid string) (*model.UserAccount, error)
	ListUsers(ctx context.Context) ([]model.UserAccount, error)
	IncrementUsage(ctx context.Context, uid string, ceiling int) (int, error)
	MarkPaid(ctx context.Context, uid string, paidAt, endsAt time.Time) error
	ApplyRollup(ctx context.Context, uid, sessionID string, avg float64) (model.Rollup, error)

	SaveSession(ctx context.Context, uid string, rec model.SessionRecord) (string, error)
	ListSessions(ctx context.Context, uid string) ([]model.SessionRecord, error)
	GetSession(ctx context.Context, uid, id string) (*model.SessionRecord, error)

	InsertQuestion(ctx context.Context, q model.Question) (string, error)
	UpdateQuestion(ctx context.Context, q model.Question) error
	DeleteQuestion(ctx context.Context, id string) error
	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	ListQuestions(ctx context.Context, tag string) ([]model.Question, error)
	QuestionCount(ctx context.Context) (int, error)

	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// Store is the SQLite Repository.
type Store struct {
	db *sql.DB
}

var _ Repository = (*Store)(nil)

// New opens (and migrates) the SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		uid TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		email_verified INTEGER NOT NULL DEFAULT 0,
		trial_expires_at DATETIME,
		has_paid INTEGER NOT NULL DEFAULT 0,
		paid_at DATETIME,
		subscription_ends_at DATETIME,
		usage_count INTEGER NOT NULL DEFAULT 0,
		sessions_completed INTEGER NOT NULL DEFAULT 0,
		rolling_average_score REAL,
		last_average_score REAL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processed_sessions (
		uid TEXT NOT NULL,
		session_id TEXT NOT NULL,
		processed_at DATETIME NOT NULL,
		PRIMARY KEY (uid, session_id),
		FOREIGN KEY (uid) REFERENCES users(uid)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		title TEXT NOT NULL,
		profession TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		overall_avg INTEGER,
		total_session_time INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		answered INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		items TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS sessions_uid_created ON sessions(uid, created_at);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		subtag TEXT NOT NULL,
		is_big3 INTEGER NOT NULL DEFAULT 0,
		big3_order INTEGER,
		tip TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RollingAverage folds avg into a running mean over count sessions.
func RollingAverage(prev *float64, count int, avg float64) float64 {
	if prev == nil || count <= 0 {
		return avg
	}
	return (*prev*float64(count) + avg) / float64(count+1)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
