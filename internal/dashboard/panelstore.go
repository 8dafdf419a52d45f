package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PanelStore keeps chat panels between page loads, keyed by browser id.
type PanelStore interface {
	// Load returns an empty panel when none is stored.
	Load(ctx context.Context, id string) (*ChatPanel, error)
	Save(ctx context.Context, id string, p *ChatPanel) error
	Delete(ctx context.Context, id string) error
}

type memoryPanel struct {
	panel   ChatPanel
	expires time.Time
}

type MemoryPanelStore struct {
	mu     sync.Mutex
	panels map[string]memoryPanel
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryPanelStore(ttl time.Duration) *MemoryPanelStore {
	return &MemoryPanelStore{panels: map[string]memoryPanel{}, ttl: ttl, now: time.Now}
}

func (m *MemoryPanelStore) Load(_ context.Context, id string) (*ChatPanel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.panels[id]
	if !ok || (!entry.expires.IsZero() && m.now().After(entry.expires)) {
		delete(m.panels, id)
		return &ChatPanel{}, nil
	}
	p := entry.panel
	p.Turns = append([]Turn(nil), entry.panel.Turns...)
	return &p, nil
}

func (m *MemoryPanelStore) Save(_ context.Context, id string, p *ChatPanel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.Turns = append([]Turn(nil), p.Turns...)
	entry := memoryPanel{panel: cp}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.panels[id] = entry
	return nil
}

func (m *MemoryPanelStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.panels, id)
	return nil
}

const panelKeyPrefix = "llm_hub:dashboard:panel:"

// RedisPanelStore lets several dashboard replicas share chat panels.
type RedisPanelStore struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewRedisPanelStore(rdb redis.Cmdable, ttl time.Duration) *RedisPanelStore {
	return &RedisPanelStore{redis: rdb, ttl: ttl}
}

func (r *RedisPanelStore) key(id string) string {
	return panelKeyPrefix + id
}

func (r *RedisPanelStore) Load(ctx context.Context, id string) (*ChatPanel, error) {
	raw, err := r.redis.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		return &ChatPanel{}, nil
	}
	if err != nil {
		return nil, err
	}
	var p ChatPanel
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisPanelStore) Save(ctx context.Context, id string, p *ChatPanel) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, r.key(id), string(b), r.ttl).Err()
}

func (r *RedisPanelStore) Delete(ctx context.Context, id string) error {
	return r.redis.Del(ctx, r.key(id)).Err()
}
