package records

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
)

// MemoryStore is an in-memory record store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []registration.Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends rec.
func (m *MemoryStore) Insert(_ context.Context, rec registration.Record) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// List returns registrations newest first.
func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]registration.Record, error) {
	m.mu.RLock()
	out := make([]registration.Record, 0, len(m.records))
	for _, rec := range m.records {
		if filter.Kind == "" || rec.Kind == filter.Kind {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len reports how many records are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

var (
	_ registration.RecordStore = (*MemoryStore)(nil)
	_ Lister                   = (*MemoryStore)(nil)
)
