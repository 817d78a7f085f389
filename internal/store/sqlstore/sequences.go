package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/serviciomed/serviciomed/internal/dbx"
	"github.com/serviciomed/serviciomed/internal/store"
)

type sequenceRepository struct {
	q dbx.DBTX
	d Dialect
}

// Next increments the counter in place. When the prefix has no row yet the
// seed is read and the row is upserted, so two first allocations racing on
// the same prefix still end up with distinct values.
func (r *sequenceRepository) Next(ctx context.Context, prefix string, seed store.SeedFunc) (int, error) {
	query := `UPDATE record_sequences SET last_value = last_value + 1
		WHERE prefix = $1
		RETURNING last_value`

	var next int
	err := r.q.QueryRowContext(ctx, r.d.rebind(query), prefix).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment sequence %s: %w", prefix, err)
	}

	last, err := seed(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed sequence %s: %w", prefix, err)
	}
	if err := r.q.QueryRowContext(ctx, r.d.rebind(r.d.UpsertSequence), prefix, last+1).Scan(&next); err != nil {
		return 0, fmt.Errorf("create sequence %s: %w", prefix, err)
	}
	return next, nil
}

func (r *sequenceRepository) Raise(ctx context.Context, prefix string, floor int) error {
	query := `UPDATE record_sequences SET last_value = $1
		WHERE prefix = $2 AND last_value < $3`
	if _, err := r.q.ExecContext(ctx, r.d.rebind(query), floor, prefix, floor); err != nil {
		return fmt.Errorf("raise sequence %s: %w", prefix, err)
	}
	return nil
}
