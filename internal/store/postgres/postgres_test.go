package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/store"
	"github.com/serviciomed/serviciomed/internal/store/sqlstore"
)

func newStoreWithMock(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlstore.New(db, Dialect), mock
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestUserCreate_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)
	created := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	q := `(?s)^INSERT\s+INTO\s+users\s*\(name,\s*password_hash,\s*program,\s*record_number,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id$`
	mock.ExpectQuery(q).
		WithArgs("Ana", "hash", "Ingeniería en Sistemas Computacionales", "ISC01", created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	u := &models.User{Name: "Ana", PasswordHash: "hash", Program: "Ingeniería en Sistemas Computacionales", RecordNumber: "ISC01", CreatedAt: created}
	require.NoError(t, s.Users().Create(context.Background(), u))
	assert.Equal(t, "42", u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate_UniqueViolation(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_name_program_key"})

	err := s.Users().Create(context.Background(), &models.User{Name: "Ana", RecordNumber: "ISC02"})
	assert.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	err := s.Users().Create(context.Background(), &models.User{Name: "Ana"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrConflict)
	assert.Contains(t, err.Error(), "insert user: db down")
}

func TestFindByRecordNumber_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^SELECT id, name, password_hash, program, record_number, created_at FROM users WHERE record_number = \$1$`
	mock.ExpectQuery(q).WithArgs("ISC09").WillReturnError(sql.ErrNoRows)

	_, err := s.Users().FindByRecordNumber(context.Background(), "ISC09")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindByName_ScansRows(t *testing.T) {
	s, mock := newStoreWithMock(t)
	created := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "name", "password_hash", "program", "record_number", "created_at"}).
		AddRow(int64(1), "Ana", "h1", "Ingeniería Industrial", "II01", created).
		AddRow(int64(2), "Ana", "h2", "Ingeniería Química", "IQ01", created)
	mock.ExpectQuery(`FROM users WHERE name = \$1 ORDER BY id`).WithArgs("Ana").WillReturnRows(rows)

	list, err := s.Users().FindByName(context.Background(), "Ana")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[1].ID)
	assert.Equal(t, "IQ01", list[1].RecordNumber)
	assert.True(t, list[0].CreatedAt.Equal(created))
}

func TestLatestRecordNumber_SkipsLongerPrefixes(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)SELECT record_number FROM users\s+WHERE record_number LIKE \$1\s+ORDER BY LENGTH\(record_number\) DESC, record_number DESC`
	rows := sqlmock.NewRows([]string{"record_number"}).
		AddRow("IADYEV03").
		AddRow("IA12")
	mock.ExpectQuery(q).WithArgs("IA%").WillReturnRows(rows)

	got, err := s.Users().LatestRecordNumber(context.Background(), "IA")
	require.NoError(t, err)
	assert.Equal(t, "IA12", got)
}

func TestSequenceNext_ExistingCounter(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^UPDATE record_sequences SET last_value = last_value \+ 1\s+WHERE prefix = \$1\s+RETURNING last_value$`
	mock.ExpectQuery(q).WithArgs("ISC").WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(5))

	n, err := s.Sequences().Next(context.Background(), "ISC", func(context.Context) (int, error) {
		t.Fatal("seed must not run when the counter exists")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceNext_SeedsMissingCounter(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`UPDATE record_sequences`).WithArgs("ISC").WillReturnError(sql.ErrNoRows)
	upsert := `(?s)INSERT INTO record_sequences \(prefix, last_value\)\s+VALUES \(\$1, \$2\)\s+ON CONFLICT \(prefix\) DO UPDATE SET last_value = record_sequences\.last_value \+ 1\s+RETURNING last_value`
	mock.ExpectQuery(upsert).WithArgs("ISC", 13).WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(13))

	n, err := s.Sequences().Next(context.Background(), "ISC", func(context.Context) (int, error) { return 12, nil })
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequenceRaise(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^UPDATE record_sequences SET last_value = \$1\s+WHERE prefix = \$2 AND last_value < \$3$`
	mock.ExpectExec(q).WithArgs(7, "ISC", 7).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Sequences().Raise(context.Background(), "ISC", 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_CommitAndRollback(t *testing.T) {
	s, mock := newStoreWithMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO survey_responses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		return tx.Surveys().Create(ctx, &models.SurveyResponse{RecordNumber: "ISC01", Answer: "ok"})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = s.WithinTx(ctx, func(context.Context, store.Store) error { return boom })
	assert.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadFindByID(t *testing.T) {
	s, mock := newStoreWithMock(t)
	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "record_number", "stored_name", "original_name", "url", "submitted_at"}).
		AddRow(int64(7), "ISC01", "ISC01_x_receta.pdf", "receta.pdf", "", now)
	mock.ExpectQuery(`FROM uploaded_documents WHERE id = \$1`).WithArgs(int64(7)).WillReturnRows(rows)

	doc, err := s.Uploads().FindByID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "ISC01_x_receta.pdf", doc.StoredName)

	// Malformed ids never reach the database.
	_, err = s.Uploads().FindByID(context.Background(), "../etc")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
