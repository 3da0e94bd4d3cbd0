package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/store"
)

// newTestStore connects to INTERVIEWPREP_TEST_MONGO_URI and uses a
// throwaway database. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("INTERVIEWPREP_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("INTERVIEWPREP_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbName := "interviewprep_test_" + uuid.NewString()[:8]
	s, err := New(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		s.Close()
	})
	return s
}

func TestUsageAndRollup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u, err := s.EnsureUser(ctx, model.Identity{UID: "u1", Email: "a@example.com"}, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if u.TrialExpiresAt == nil || !u.TrialExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Errorf("TrialExpiresAt = %v", u.TrialExpiresAt)
	}

	for i := 1; i <= 2; i++ {
		if n, err := s.IncrementUsage(ctx, "u1", 2); err != nil || n != i {
			t.Fatalf("IncrementUsage #%d = %d, %v", i, n, err)
		}
	}
	if _, err := s.IncrementUsage(ctx, "u1", 2); !errors.Is(err, store.ErrUsageLimit) {
		t.Errorf("IncrementUsage past ceiling err = %v", err)
	}

	if r, err := s.ApplyRollup(ctx, "u1", "s1", 60); err != nil || !r.Applied {
		t.Fatalf("ApplyRollup s1 = %+v, %v", r, err)
	}
	r, err := s.ApplyRollup(ctx, "u1", "s2", 80)
	if err != nil || *r.RollingAverageScore != 70 || *r.Improvement != 20 {
		t.Fatalf("ApplyRollup s2 = %+v, %v", r, err)
	}
	if r, _ := s.ApplyRollup(ctx, "u1", "s2", 0); r.Applied || r.SessionsCompleted != 2 {
		t.Errorf("replayed rollup = %+v", r)
	}
}

func TestSessionsAndQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveSession(ctx, "u1", model.SessionRecord{Title: "T", Profession: "Dental", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if _, err := s.GetSession(ctx, "u2", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user GetSession err = %v", err)
	}
	if rec, err := s.GetSession(ctx, "u1", id); err != nil || rec.Title != "T" {
		t.Errorf("GetSession = %+v, %v", rec, err)
	}
	if again, err := s.SaveSession(ctx, "u1", model.SessionRecord{ID: id, Title: "Changed", CreatedAt: time.Now()}); err != nil || again != id {
		t.Errorf("repeated SaveSession = %q, %v", again, err)
	}
	if rec, _ := s.GetSession(ctx, "u1", id); rec == nil || rec.Title != "T" {
		t.Errorf("repeated save overwrote record: %+v", rec)
	}
	if _, err := s.SaveSession(ctx, "u2", model.SessionRecord{ID: id, CreatedAt: time.Now()}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("cross-user SaveSession err = %v, want ErrConflict", err)
	}

	if _, err := s.InsertQuestion(ctx, model.Question{Text: "Q", Tags: []string{"Physical Therapy"}, Subtag: model.SubtagEthical}); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	qs, err := s.ListQuestions(ctx, "physical therapy")
	if err != nil || len(qs) != 1 {
		t.Errorf("ListQuestions = %v, %v", qs, err)
	}
}
