// Package sqlite opens the SQLite backend of store.Store (modernc.org/sqlite,
// no cgo). It is the default for development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/serviciomed/serviciomed/internal/store/sqlstore"
)

// connParams enforces foreign keys, waits on locks instead of failing, and
// takes the write lock when a transaction begins.
const connParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// Dialect is the SQLite flavour of the SQL store.
var Dialect = sqlstore.Dialect{
	Name: "sqlite3",
	UpsertSequence: `INSERT INTO record_sequences (prefix, last_value)
		VALUES ($1, $2)
		ON CONFLICT (prefix) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value`,
	IsUniqueViolation: IsUniqueViolation,
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure.
func IsUniqueViolation(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// DSN turns a file path (or an existing file: URI) into a driver DSN carrying
// the connection pragmas.
func DSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + connParams
}

// Open opens the database at path. A single connection is used so writers
// never contend inside the process.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return sqlstore.New(db, Dialect), nil
}
