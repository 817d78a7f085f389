// Package storage is the blob store for generated exams and uploaded files.
// Objects are addressed by "<record number>/<file name>".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get for missing objects.
	ErrNotFound = errors.New("object not found")
	// ErrPresignUnsupported is returned by backends that cannot hand out
	// temporary URLs; callers stream the object instead.
	ErrPresignUnsupported = errors.New("presigned urls not supported")
	// ErrInvalidKey rejects keys that could escape the namespace.
	ErrInvalidKey = errors.New("invalid object key")
)

// Store is implemented by the local, MinIO and S3 backends.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// ObjectURL returns a stable public URL, or "" when objects are private.
	ObjectURL(key string) string
}

// Key builds the object key of name under recordNumber.
func Key(recordNumber, name string) string {
	return recordNumber + "/" + name
}

// cleanKey validates a relative slash-separated key.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return path.Clean(key), nil
}

func joinURL(base, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + key
}

// Config selects and configures a backend.
type Config struct {
	// Backend is one of "local", "minio" or "s3".
	Backend   string
	LocalDir  string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PathStyle forces path-style addressing (MinIO behind the S3 API).
	PathStyle bool
	// PublicURL, when set, is the base URL objects are publicly served from.
	PublicURL string
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocalDir(cfg.LocalDir)
	case "minio":
		return NewMinIOStorage(ctx, cfg)
	case "s3":
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
