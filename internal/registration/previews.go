package registration

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrPreviewNotFound is returned for unknown or released preview references.
var ErrPreviewNotFound = errors.New("registration: preview not found")

type previewEntry struct {
	data        []byte
	contentType string
}

// MemoryPreviews keeps previews in process memory until released.
type MemoryPreviews struct {
	mu      sync.RWMutex
	entries map[string]previewEntry
}

// NewMemoryPreviews creates an empty in-memory preview store.
func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{entries: make(map[string]previewEntry)}
}

// Create stores a copy of data and returns its reference.
func (m *MemoryPreviews) Create(_ context.Context, data []byte, contentType string) (string, error) {
	ref := uuid.NewString()
	m.mu.Lock()
	m.entries[ref] = previewEntry{data: append([]byte(nil), data...), contentType: contentType}
	m.mu.Unlock()
	return ref, nil
}

// Get returns the preview bytes and content type for ref.
func (m *MemoryPreviews) Get(_ context.Context, ref string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[ref]
	if !ok {
		return nil, "", ErrPreviewNotFound
	}
	return entry.data, entry.contentType, nil
}

// Release forgets ref.
func (m *MemoryPreviews) Release(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[ref]; !ok {
		return ErrPreviewNotFound
	}
	delete(m.entries, ref)
	return nil
}

// Len reports how many previews are currently held.
func (m *MemoryPreviews) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
