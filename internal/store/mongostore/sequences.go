package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serviciomed/serviciomed/internal/store"
)

type sequenceRepository struct {
	col *mongo.Collection
}

type sequenceDoc struct {
	Prefix    string `bson:"_id"`
	LastValue int    `bson:"lastValue"`
}

func (r *sequenceRepository) Next(ctx context.Context, prefix string, seed store.SeedFunc) (int, error) {
	next, err := r.increment(ctx, prefix)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("increment sequence %s: %w", prefix, err)
	}

	last, err := seed(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed sequence %s: %w", prefix, err)
	}
	_, err = r.col.InsertOne(ctx, sequenceDoc{Prefix: prefix, LastValue: last + 1})
	switch {
	case err == nil:
		return last + 1, nil
	case mongo.IsDuplicateKeyError(err):
		// Another allocation created the counter first.
		next, err = r.increment(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("increment sequence %s: %w", prefix, err)
		}
		return next, nil
	default:
		return 0, fmt.Errorf("create sequence %s: %w", prefix, err)
	}
}

func (r *sequenceRepository) Raise(ctx context.Context, prefix string, floor int) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": prefix},
		bson.M{"$max": bson.M{"lastValue": floor}},
	)
	if err != nil {
		return fmt.Errorf("raise sequence %s: %w", prefix, err)
	}
	return nil
}

func (r *sequenceRepository) increment(ctx context.Context, prefix string) (int, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc sequenceDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": prefix},
		bson.M{"$inc": bson.M{"lastValue": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.LastValue, nil
}
