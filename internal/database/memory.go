package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/custupload/internal/core"
)

// MemoryStore is an in-process customer store with the same unique key and
// version semantics as the Postgres repository. Used with DB_DRIVER=memory
// and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string]core.Customer
	order []string // natural keys in insertion order
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string]core.Customer),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) FindByNaturalKey(_ context.Context, key string) (core.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byKey[key]
	if !ok {
		return core.Customer{}, core.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) Create(_ context.Context, c *core.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[c.NaturalKey]; ok {
		return core.ErrDuplicateKey
	}

	now := m.now()
	c.ID = uuid.New()
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	m.byKey[c.NaturalKey] = *c
	m.order = append(m.order, c.NaturalKey)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, c *core.Customer, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byKey[c.NaturalKey]
	if !ok || cur.Version != expectedVersion {
		return core.ErrStaleVersion
	}

	cur.Profile = c.Profile
	cur.Version = expectedVersion + 1
	cur.UpdatedAt = m.now()
	m.byKey[c.NaturalKey] = cur
	*c = cur
	return nil
}

func (m *MemoryStore) ListCustomers(_ context.Context, limit, offset int) ([]core.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= len(m.order) {
		return []core.Customer{}, nil
	}
	end := offset + limit
	if end > len(m.order) {
		end = len(m.order)
	}
	out := make([]core.Customer, 0, end-offset)
	for _, key := range m.order[offset:end] {
		out = append(out, m.byKey[key])
	}
	return out, nil
}

func (m *MemoryStore) CountCustomers(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.order)), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }
