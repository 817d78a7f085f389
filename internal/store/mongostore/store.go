// Package mongostore is the MongoDB backend of store.Store. Unique indexes stand
// in for the SQL constraints and record counters live in their own
// collection, incremented with $inc.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serviciomed/serviciomed/internal/config"
	"github.com/serviciomed/serviciomed/internal/database"
	"github.com/serviciomed/serviciomed/internal/store"
)

const (
	usersCollection     = "users"
	sequencesCollection = "record_sequences"
	surveysCollection   = "survey_responses"
	examsCollection     = "exam_submissions"
	uploadsCollection   = "uploaded_documents"
)

// Store implements store.Store on a Mongo database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects to the configured database and ensures the indexes exist.
func Open(ctx context.Context, cfg config.MongoDBConfig) (*Store, error) {
	db, err := database.Connect(ctx, cfg, database.DefaultRetry)
	if err != nil {
		return nil, err
	}
	client := db.Client()
	s := New(db)
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. Close does not disconnect it.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// EnsureIndexes creates the unique indexes the repositories rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "recordNumber", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "name", Value: 1}, {Key: "program", Value: 1}}, Options: unique},
		},
		surveysCollection: {
			{Keys: bson.D{{Key: "recordNumber", Value: 1}}},
		},
		examsCollection: {
			{Keys: bson.D{{Key: "recordNumber", Value: 1}, {Key: "document", Value: 1}}, Options: unique},
		},
		uploadsCollection: {
			{Keys: bson.D{{Key: "storedName", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "recordNumber", Value: 1}}},
		},
	}
	for name, idx := range specs {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// Database exposes the handle so other Mongo-backed components can share
// the connection.
func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Users() store.UserRepository {
	return &userRepository{col: s.db.Collection(usersCollection)}
}

func (s *Store) Sequences() store.SequenceRepository {
	return &sequenceRepository{col: s.db.Collection(sequencesCollection)}
}

func (s *Store) Surveys() store.SurveyRepository {
	return &surveyRepository{col: s.db.Collection(surveysCollection)}
}

func (s *Store) Exams() store.ExamRepository {
	return &examRepository{col: s.db.Collection(examsCollection)}
}

func (s *Store) Uploads() store.UploadRepository {
	return &uploadRepository{col: s.db.Collection(uploadsCollection)}
}

// WithinTx runs fn directly. Standalone deployments have no multi-document
// transactions; unique indexes still reject duplicates, so a failed insert
// after an increment leaves a gap in the sequence.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, s)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func wrap(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
