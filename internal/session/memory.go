package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"llmhub/internal/domain"
)

// MemoryStore keeps sessions in process. Used in debug mode and as the
// fallback when Redis is unreachable at startup.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: map[string]*domain.Session{}, ttl: ttl, now: time.Now}
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Sweeper = (*MemoryStore)(nil)
)

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Create(_ context.Context, s *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ExpiresAt == nil {
		s.SetTTL(m.ttl)
	}
	m.sessions[s.ID] = s.Clone()
	return s.Clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.IsExpired(m.now()) {
		s.Status = domain.SessionExpired
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, s *domain.Session) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return nil, ErrNotFound
	}
	s.UpdatedAt = m.now().UTC()
	m.sessions[s.ID] = s.Clone()
	return s.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]*domain.Session, error) {
	m.mu.Lock()
	all := make([]*domain.Session, 0, len(m.sessions))
	now := m.now()
	for _, s := range m.sessions {
		cp := s.Clone()
		if cp.IsExpired(now) {
			cp.Status = domain.SessionExpired
		}
		all = append(all, cp)
	}
	m.mu.Unlock()

	sortNewestFirst(all)
	return page(all, limit, offset), nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}

func (m *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if s.IsExpired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) HealthCheck(context.Context) domain.ComponentHealth {
	return domain.Healthy(0)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = map[string]*domain.Session{}
	return nil
}

func sortNewestFirst(items []*domain.Session) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
