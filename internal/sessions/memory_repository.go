package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in process memory. It is used when no
// Redis or Mongo is configured (development, tests); sessions do not
// survive a restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: map[string]Session{}}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	r.purgeLocked(time.Now().UTC())
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemoryRepository) purgeLocked(now time.Time) {
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
		}
	}
}
