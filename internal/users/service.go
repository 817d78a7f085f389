// Package users registers and authenticates students.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/serviciomed/serviciomed/internal/auth"
	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/records"
	"github.com/serviciomed/serviciomed/internal/store"
)

var (
	// ErrAlreadyRegistered means the (name, program) pair exists.
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrInvalidInput means a required registration field is empty.
	ErrInvalidInput = errors.New("invalid registration input")
)

// maxAllocAttempts bounds retries when a record number collides with a
// concurrent registration.
const maxAllocAttempts = 3

// RegisterInput is the registration form.
type RegisterInput struct {
	Name     string
	Password string
	Program  string
}

// Service encapsulates user-related business logic
type Service struct {
	store store.Store
	alloc *records.Allocator
	now   func() time.Time
}

func NewService(s store.Store, a *records.Allocator) *Service {
	return &Service{store: s, alloc: a, now: time.Now}
}

// Register creates a user with a freshly allocated record number. The
// allocation and the insert share one unit of work.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	program := strings.TrimSpace(in.Program)
	if name == "" || in.Password == "" || program == "" {
		return nil, ErrInvalidInput
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxAllocAttempts; attempt++ {
		u := &models.User{
			Name:         name,
			PasswordHash: hash,
			Program:      program,
			CreatedAt:    s.now().UTC(),
		}
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
			_, err := tx.Users().FindByNameAndProgram(ctx, name, program)
			switch {
			case err == nil:
				return ErrAlreadyRegistered
			case !errors.Is(err, store.ErrNotFound):
				return err
			}

			rn, err := s.alloc.Allocate(ctx, tx, program)
			if err != nil {
				return err
			}
			u.RecordNumber = rn
			return tx.Users().Create(ctx, u)
		})
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		// Either the pair was registered concurrently or the record number
		// was taken; only the latter is worth another attempt. The failed
		// increment was rolled back with the insert, so the counter is
		// moved past the taken number first.
		if _, ferr := s.store.Users().FindByNameAndProgram(ctx, name, program); ferr == nil {
			return nil, ErrAlreadyRegistered
		}
		if rerr := s.alloc.Reconcile(ctx, s.store, program); rerr != nil {
			return nil, rerr
		}
	}
	return nil, fmt.Errorf("register %q: %d attempts: %w", name, maxAllocAttempts, store.ErrConflict)
}

// Authenticate returns the user whose name matches and whose stored hash
// accepts password. Names may repeat across programs, so every candidate
// is checked.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}
	candidates, err := s.store.Users().FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, u := range candidates {
		if auth.CheckPassword(u.PasswordHash, password) {
			return u, nil
		}
	}
	return nil, auth.ErrInvalidCredentials
}

// GetByRecordNumber returns the user owning recordNumber.
func (s *Service) GetByRecordNumber(ctx context.Context, recordNumber string) (*models.User, error) {
	return s.store.Users().FindByRecordNumber(ctx, recordNumber)
}
