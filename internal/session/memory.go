package session

import (
	"context"
	"sync"
	"time"

	"hwgrader/internal/models"
)

// MemoryStore is an in-process Store. Expired entries are dropped lazily on
// read and by Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.EvaluationSession
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.EvaluationSession),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, s *models.EvaluationSession) error {
	copySession := *s
	m.mu.Lock()
	m.sessions[s.ID] = &copySession
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.EvaluationSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	copySession := *s
	return &copySession, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Sweep removes every expired session and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
