package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL applies when a session is created without an expiry.
const DefaultTTL = 12 * time.Hour

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(r Repository) *Service { return &Service{repo: r, now: time.Now} }

// CreateSession stores a new session and returns its id. Ids are 256 random
// bits, hex encoded.
func (s *Service) CreateSession(ctx context.Context, username, recordNumber string, ttl time.Duration) (string, error) {
	if recordNumber == "" {
		return "", errors.New("session without record number")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)
	now := s.now().UTC()
	sess := &Session{
		ID:           id,
		Username:     username,
		RecordNumber: recordNumber,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return id, nil
}

// Validate returns the session if id is known and not expired, nil otherwise.
func (s *Service) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now().UTC()) {
		// cleanup expired session
		_ = s.repo.Delete(ctx, id)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.repo.Delete(ctx, id)
}

// Ping checks the backing repository when it supports it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
