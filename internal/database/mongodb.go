// Package database connects to the MongoDB deployment shared by the record
// store and the session repository.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serviciomed/serviciomed/internal/config"
	"github.com/serviciomed/serviciomed/pkg/logger"
)

const appName = "serviciomed"

// Retry controls how many times Connect pings a deployment that is still
// coming up, doubling the wait after each failure.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry suits a container started next to the database.
var DefaultRetry = Retry{Attempts: 5, Backoff: time.Second}

// Connect dials cfg.URI and returns the handle of cfg.Database once the
// deployment answers a ping. Release it with db.Client().Disconnect.
// A malformed URI fails at once; unreachable servers are retried.
func Connect(ctx context.Context, cfg config.MongoDBConfig, retry Retry) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb: URI not set")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongodb: database name not set")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	backoff := retry.Backoff
	for attempt := 1; ; attempt++ {
		err = ping(ctx, client, timeout)
		if err == nil {
			return client.Database(cfg.Database), nil
		}
		if attempt == retry.Attempts {
			break
		}
		logger.Warnf("mongodb ping %d/%d failed: %v", attempt, retry.Attempts, err)
		select {
		case <-ctx.Done():
			disconnect(client)
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	disconnect(client)
	return nil, fmt.Errorf("mongo ping after %d attempts: %w", retry.Attempts, err)
}

func ping(ctx context.Context, client *mongo.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx, nil)
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Disconnect(ctx)
}
