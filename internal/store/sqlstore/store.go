package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/serviciomed/serviciomed/internal/dbx"
	"github.com/serviciomed/serviciomed/internal/store"
	"github.com/serviciomed/serviciomed/internal/store/migrations"
)

// Store is a store.Store bound either to the pool or to an open transaction.
type Store struct {
	db   *sql.DB
	q    dbx.DBTX
	d    Dialect
	inTx bool
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool. The caller keeps ownership of db until Close.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, q: db, d: d}
}

// DB exposes the pool for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.db, s.d.Name)
}

func (s *Store) Users() store.UserRepository         { return &userRepository{q: s.q, d: s.d} }
func (s *Store) Sequences() store.SequenceRepository { return &sequenceRepository{q: s.q, d: s.d} }
func (s *Store) Surveys() store.SurveyRepository     { return &surveyRepository{q: s.q, d: s.d} }
func (s *Store) Exams() store.ExamRepository         { return &examRepository{q: s.q, d: s.d} }
func (s *Store) Uploads() store.UploadRepository     { return &uploadRepository{q: s.q, d: s.d} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, s.d.TxOptions, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Store{db: s.db, q: tx, d: s.d, inTx: true})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.inTx {
		return errors.New("close called inside a transaction")
	}
	return s.db.Close()
}

// wrap converts driver errors into store sentinels.
func (d Dialect) wrap(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case d.IsUniqueViolation != nil && d.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
