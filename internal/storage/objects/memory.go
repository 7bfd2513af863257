package objects

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
)

// ErrObjectNotFound is returned by MemoryStore.Get for unknown keys.
var ErrObjectNotFound = errors.New("objects: object not found")

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps uploads in process memory. It backs local development,
// where the API serves them itself under PublicBaseURL.
type MemoryStore struct {
	mu            sync.RWMutex
	objects       map[string]memoryObject
	publicBaseURL string
}

// NewMemoryStore creates an empty store resolving keys under publicBaseURL.
func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string]memoryObject),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Put stores a copy of data.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("objects: empty key")
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	m.mu.Unlock()
	return nil
}

// Get returns the stored bytes and content type.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return obj.data, obj.contentType, nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// PublicURL joins the base URL and key.
func (m *MemoryStore) PublicURL(key string) string {
	return m.publicBaseURL + "/" + key
}

// Len reports how many objects are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var (
	_ registration.ObjectStore   = (*MemoryStore)(nil)
	_ registration.ObjectDeleter = (*MemoryStore)(nil)
)
