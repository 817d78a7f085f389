// Package store defines the persistence interface of the intake service.
// Each backend (postgres, sqlite, mongo) implements Store once; the backend
// is chosen at startup from configuration.
package store

import (
	"context"
	"errors"

	"github.com/serviciomed/serviciomed/internal/models"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("conflict")
)

// UserRepository persists registered users.
type UserRepository interface {
	// Create inserts u and sets its ID. Returns ErrConflict when the record
	// number or the (name, program) pair already exists.
	Create(ctx context.Context, u *models.User) error
	FindByName(ctx context.Context, name string) ([]*models.User, error)
	FindByNameAndProgram(ctx context.Context, name, program string) (*models.User, error)
	FindByRecordNumber(ctx context.Context, recordNumber string) (*models.User, error)
	// LatestRecordNumber returns the highest record number allocated under
	// prefix, or ErrNotFound when there is none.
	LatestRecordNumber(ctx context.Context, prefix string) (string, error)
}

// SeedFunc reports the last sequence already in use for a prefix. It is
// consulted only when the prefix has no counter yet.
type SeedFunc func(ctx context.Context) (int, error)

// SequenceRepository holds one monotonically increasing counter per prefix.
type SequenceRepository interface {
	// Next atomically increments the counter for prefix and returns the new
	// value. A missing counter is created at seed()+1.
	Next(ctx context.Context, prefix string, seed SeedFunc) (int, error)
	// Raise lifts the counter for prefix to at least floor. A missing counter
	// is left for Next to seed.
	Raise(ctx context.Context, prefix string, floor int) error
}

type SurveyRepository interface {
	Create(ctx context.Context, s *models.SurveyResponse) error
	ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.SurveyResponse, error)
}

type ExamRepository interface {
	Create(ctx context.Context, e *models.ExamSubmission) error
	FindByDocument(ctx context.Context, recordNumber, document string) (*models.ExamSubmission, error)
	ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.ExamSubmission, error)
}

type UploadRepository interface {
	Create(ctx context.Context, d *models.UploadedDocument) error
	// FindByID returns ErrNotFound for ids that are malformed for the backend.
	FindByID(ctx context.Context, id string) (*models.UploadedDocument, error)
	FindByStoredName(ctx context.Context, storedName string) (*models.UploadedDocument, error)
	ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.UploadedDocument, error)
}

// Store is the unit-of-work entry point. Repositories obtained from the Store
// passed to WithinTx's callback share that unit of work.
type Store interface {
	Users() UserRepository
	Sequences() SequenceRepository
	Surveys() SurveyRepository
	Exams() ExamRepository
	Uploads() UploadRepository

	// WithinTx runs fn atomically where the backend supports it. Nested calls
	// reuse the outer unit of work.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}
