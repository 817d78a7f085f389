// Package records allocates record numbers ("expedientes"): a program prefix
// followed by a per-prefix counter, zero padded to two digits.
package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/store"
)

// Width is the minimum number of digits after the prefix. Larger sequences
// widen the number (ISC100).
const Width = 2

// Format renders prefix and seq as a record number.
func Format(prefix string, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, Width, seq)
}

// ParseSequence extracts the counter from recordNumber. It fails when the
// record does not belong to prefix or the suffix is not a positive integer.
func ParseSequence(prefix, recordNumber string) (int, error) {
	suffix, ok := strings.CutPrefix(recordNumber, prefix)
	if !ok || suffix == "" {
		return 0, fmt.Errorf("record %q does not carry prefix %q", recordNumber, prefix)
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("record %q has a non numeric suffix", recordNumber)
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("record %q: %w", recordNumber, err)
	}
	return n, nil
}

// Allocator hands out record numbers. It must be called with the Store of
// the unit of work that inserts the user, so a rolled back registration
// also rolls back its increment.
type Allocator struct {
	catalog *programs.Catalog
}

func NewAllocator(c *programs.Catalog) *Allocator {
	return &Allocator{catalog: c}
}

// Catalog returns the program catalog used for prefixes.
func (a *Allocator) Catalog() *programs.Catalog { return a.catalog }

// Allocate returns the next record number for program.
func (a *Allocator) Allocate(ctx context.Context, tx store.Store, program string) (string, error) {
	prefix := a.catalog.Prefix(program)
	seq, err := tx.Sequences().Next(ctx, prefix, func(ctx context.Context) (int, error) {
		return LastSequence(ctx, tx.Users(), prefix)
	})
	if err != nil {
		return "", fmt.Errorf("allocate %s: %w", prefix, err)
	}
	return Format(prefix, seq), nil
}

// Reconcile raises the counter of program's prefix to the latest record
// number stored in s. Rows inserted without going through the counter
// would otherwise be handed out again.
func (a *Allocator) Reconcile(ctx context.Context, s store.Store, program string) error {
	prefix := a.catalog.Prefix(program)
	last, err := LastSequence(ctx, s.Users(), prefix)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", prefix, err)
	}
	if err := s.Sequences().Raise(ctx, prefix, last); err != nil {
		return fmt.Errorf("reconcile %s: %w", prefix, err)
	}
	return nil
}

// LastSequence returns the counter of the latest record number already
// stored for prefix, or 0 when there is none.
func LastSequence(ctx context.Context, users store.UserRepository, prefix string) (int, error) {
	latest, err := users.LatestRecordNumber(ctx, prefix)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ParseSequence(prefix, latest)
}
