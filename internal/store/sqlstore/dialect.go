// Package sqlstore implements store.Store over database/sql. The postgres and
// sqlite backends differ only in their Dialect.
package sqlstore

import (
	"database/sql"
	"regexp"
	"strconv"
)

// Dialect captures the per-driver differences of the SQL backends.
type Dialect struct {
	// Name is the goose dialect name ("postgres", "sqlite3").
	Name string
	// Positional reports whether the driver understands $n placeholders.
	// Otherwise they are rewritten to ?.
	Positional bool
	// UpsertSequence creates a counter row at $2 or increments the existing one,
	// returning the new value.
	UpsertSequence string
	// IsUniqueViolation reports whether err is a unique/primary key violation.
	IsUniqueViolation func(err error) bool
	TxOptions         *sql.TxOptions
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders for drivers that only take ?. Queries keep
// their placeholders in argument order.
func (d Dialect) rebind(query string) string {
	if d.Positional {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
