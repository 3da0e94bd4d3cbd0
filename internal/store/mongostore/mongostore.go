// Package mongostore is the MongoDB implementation of store.Repository.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/interviewprep/interviewprep/internal/model"
	"github.com/interviewprep/interviewprep/internal/store"
)

// maxRollupAttempts bounds the compare-and-set retries of ApplyRollup.
const maxRollupAttempts = 5

type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	sessions  *mongo.Collection
	questions *mongo.Collection
	imports   *mongo.Collection
}

var _ store.Repository = (*Store)(nil)

// New connects to uri, pings the server and ensures indexes on database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	s := &Store{
		client:    client,
		users:     db.Collection("users"),
		sessions:  db.Collection("sessions"),
		questions: db.Collection("questions"),
		imports:   db.Collection("imported_files"),
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uid", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.questions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	})
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureUser(ctx context.Context, id model.Identity, trialLength time.Duration, now time.Time) (*model.UserAccount, error) {
	onInsert := bson.M{
		"trialExpiresAt":      now.Add(trialLength),
		"hasPaid":             false,
		"usageCount":          0,
		"sessionsCompleted":   0,
		"processedSessionIds": []string{},
		"createdAt":           now,
	}
	update := bson.M{"$setOnInsert": onInsert}
	if id.Email != "" {
		update["$set"] = bson.M{"email": id.Email, "emailVerified": id.EmailVerified}
	} else {
		onInsert["email"] = ""
		onInsert["emailVerified"] = false
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var u model.UserAccount
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id.UID}, update, opts).Decode(&u); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, uid string) (*model.UserAccount, error) {
	var u model.UserAccount
	err := s.users.FindOne(ctx, bson.M{"_id": uid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.UserAccount, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []model.UserAccount
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// IncrementUsage performs a conditional $inc so concurrent callers cannot
// pass the ceiling.
func (s *Store) IncrementUsage(ctx context.Context, uid string, ceiling int) (int, error) {
	filter := bson.M{"_id": uid}
	if ceiling > 0 {
		filter["usageCount"] = bson.M{"$lt": ceiling}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u model.UserAccount
	err := s.users.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"usageCount": 1}}, opts).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		cur, gerr := s.GetUser(ctx, uid)
		if gerr != nil {
			return 0, gerr
		}
		if cur == nil {
			return 0, store.ErrNotFound
		}
		return cur.UsageCount, store.ErrUsageLimit
	}
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return u.UsageCount, nil
}

func (s *Store) MarkPaid(ctx context.Context, uid string, paidAt, endsAt time.Time) error {
	update := bson.M{
		"$set": bson.M{"hasPaid": true, "paidAt": paidAt, "subscriptionEndsAt": endsAt},
		"$setOnInsert": bson.M{
			"email":               "",
			"usageCount":          0,
			"sessionsCompleted":   0,
			"processedSessionIds": []string{},
			"createdAt":           paidAt,
		},
	}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": uid}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	slog.Info("marked user paid", "uid", uid, "ends", endsAt)
	return nil
}

// ApplyRollup updates the averages with a compare-and-set on
// sessionsCompleted, retrying when another writer got there first.
func (s *Store) ApplyRollup(ctx context.Context, uid, sessionID string, avg float64) (model.Rollup, error) {
	for range maxRollupAttempts {
		u, err := s.GetUser(ctx, uid)
		if err != nil {
			return model.Rollup{}, err
		}
		if u == nil {
			return model.Rollup{}, store.ErrNotFound
		}
		if slices.Contains(u.ProcessedSessionIDs, sessionID) {
			return model.Rollup{SessionsCompleted: u.SessionsCompleted, RollingAverageScore: u.RollingAverageScore}, nil
		}

		next := store.RollingAverage(u.RollingAverageScore, u.SessionsCompleted, avg)
		filter := bson.M{
			"_id":                 uid,
			"sessionsCompleted":   u.SessionsCompleted,
			"processedSessionIds": bson.M{"$ne": sessionID},
		}
		update := bson.M{
			"$set": bson.M{
				"sessionsCompleted":   u.SessionsCompleted + 1,
				"rollingAverageScore": next,
				"lastAverageScore":    avg,
			},
			"$addToSet": bson.M{"processedSessionIds": sessionID},
		}
		res, err := s.users.UpdateOne(ctx, filter, update)
		if err != nil {
			return model.Rollup{}, fmt.Errorf("apply rollup: %w", err)
		}
		if res.MatchedCount == 0 {
			continue
		}

		r := model.Rollup{Applied: true, SessionsCompleted: u.SessionsCompleted + 1, RollingAverageScore: &next}
		if u.LastAverageScore != nil {
			d := avg - *u.LastAverageScore
			r.Improvement = &d
		}
		return r, nil
	}
	return model.Rollup{}, fmt.Errorf("apply rollup for %s: too much contention", uid)
}

func (s *Store) SaveSession(ctx context.Context, uid string, rec model.SessionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Items == nil {
		rec.Items = []model.SessionItem{}
	}
	rec.UID = uid
	_, err := s.sessions.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		var existing struct {
			UID string `bson:"uid"`
		}
		if err := s.sessions.FindOne(ctx, bson.M{"_id": rec.ID}).Decode(&existing); err != nil {
			return "", fmt.Errorf("check session owner: %w", err)
		}
		if existing.UID != uid {
			return "", store.ErrConflict
		}
		return rec.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) ListSessions(ctx context.Context, uid string) ([]model.SessionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.sessions.Find(ctx, bson.M{"uid": uid}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []model.SessionRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return out, nil
}

func (s *Store) GetSession(ctx context.Context, uid, id string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	err := s.sessions.FindOne(ctx, bson.M{"_id": id, "uid": uid}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if _, err := s.questions.InsertOne(ctx, q); err != nil {
		return "", fmt.Errorf("insert question: %w", err)
	}
	return q.ID, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	res, err := s.questions.ReplaceOne(ctx, bson.M{"_id": q.ID}, q)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.questions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	var q model.Question
	err := s.questions.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) ListQuestions(ctx context.Context, tag string) ([]model.Question, error) {
	filter := bson.M{}
	if tag != "" {
		filter["tags"] = bson.M{"$regex": "^" + regexp.QuoteMeta(tag) + "$", "$options": "i"}
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "isBig3", Value: -1},
		{Key: "big3Order", Value: 1},
		{Key: "text", Value: 1},
	})
	cursor, err := s.questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []model.Question
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return out, nil
}

func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	n, err := s.questions.CountDocuments(ctx, bson.M{})
	return int(n), err
}

type importedFile struct {
	Path       string    `bson:"_id"`
	Hash       string    `bson:"hash"`
	ImportedAt time.Time `bson:"importedAt"`
}

func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	var f importedFile
	err := s.imports.FindOne(ctx, bson.M{"_id": path}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	return f.Hash, err
}

func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	_, err := s.imports.ReplaceOne(ctx, bson.M{"_id": path},
		importedFile{Path: path, Hash: hash, ImportedAt: time.Now()},
		options.Replace().SetUpsert(true))
	return err
}
