package sqlstore

import (
	"context"
	"strconv"
	"strings"

	"github.com/serviciomed/serviciomed/internal/dbx"
	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/store"
)

type userRepository struct {
	q dbx.DBTX
	d Dialect
}

const userColumns = `id, name, password_hash, program, record_number, created_at`

func (r *userRepository) Create(ctx context.Context, u *models.User) error {
	query := `INSERT INTO users (name, password_hash, program, record_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.q.QueryRowContext(ctx, r.d.rebind(query),
		u.Name, u.PasswordHash, u.Program, u.RecordNumber, dbTime(u.CreatedAt)).Scan(&id)
	if err != nil {
		return r.d.wrap("insert user", err)
	}
	u.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *userRepository) FindByName(ctx context.Context, name string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name = $1 ORDER BY id`

	rows, err := r.q.QueryContext(ctx, r.d.rebind(query), name)
	if err != nil {
		return nil, r.d.wrap("select users", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, r.d.wrap("scan user", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, r.d.wrap("select users", err)
	}
	return result, nil
}

func (r *userRepository) FindByNameAndProgram(ctx context.Context, name, program string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE name = $1 AND program = $2`

	u, err := scanUser(r.q.QueryRowContext(ctx, r.d.rebind(query), name, program))
	if err != nil {
		return nil, r.d.wrap("select user", err)
	}
	return u, nil
}

func (r *userRepository) FindByRecordNumber(ctx context.Context, recordNumber string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE record_number = $1`

	u, err := scanUser(r.q.QueryRowContext(ctx, r.d.rebind(query), recordNumber))
	if err != nil {
		return nil, r.d.wrap("select user", err)
	}
	return u, nil
}

// LatestRecordNumber orders by length first so ISC100 sorts after ISC99.
// Rows whose suffix is not numeric belong to a longer prefix and are skipped.
func (r *userRepository) LatestRecordNumber(ctx context.Context, prefix string) (string, error) {
	query := `SELECT record_number FROM users
		WHERE record_number LIKE $1
		ORDER BY LENGTH(record_number) DESC, record_number DESC`

	rows, err := r.q.QueryContext(ctx, r.d.rebind(query), prefix+"%")
	if err != nil {
		return "", r.d.wrap("select record numbers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rn string
		if err := rows.Scan(&rn); err != nil {
			return "", r.d.wrap("scan record number", err)
		}
		if hasNumericSuffix(prefix, rn) {
			return rn, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", r.d.wrap("select record numbers", err)
	}
	return "", store.ErrNotFound
}

func hasNumericSuffix(prefix, rn string) bool {
	if !strings.HasPrefix(rn, prefix) || len(rn) == len(prefix) {
		return false
	}
	for _, c := range rn[len(prefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u  models.User
		id int64
	)
	if err := row.Scan(&id, &u.Name, &u.PasswordHash, &u.Program, &u.RecordNumber, timestamp{&u.CreatedAt}); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	return &u, nil
}
