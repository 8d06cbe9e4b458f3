package identity

import (
	"sync"

	"golang.org/x/xerrors"
)

// ErrUnknownKey is returned when a key has never been bound to an internal
// id.
var ErrUnknownKey = xerrors.New("unknown document key")

// Manager maps external document keys to internal document ids. Internal ids
// are assigned monotonically: a newly bound id is always strictly greater
// than every id handed out before it, for the lifetime of an index
// generation.
type Manager interface {
	// Resolve returns the internal id currently bound to key.
	Resolve(key string) (uint64, bool)
	// Bind assigns a fresh internal id to an unbound key. Binding an
	// already-bound key returns the existing id.
	Bind(key string) (uint64, error)
	// Rebind assigns a fresh internal id to key, returning both the
	// previous and the new binding. Rebinding an unknown key fails with
	// ErrUnknownKey.
	Rebind(key string) (oldID, newID uint64, err error)
}

// InMemoryManager is a Manager held entirely in memory. It is safe for
// concurrent use.
type InMemoryManager struct {
	mu     sync.RWMutex
	byKey  map[string]uint64
	nextID uint64
}

// NewInMemoryManager creates an empty identity manager. Ids start from 1.
func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{byKey: make(map[string]uint64)}
}

// Resolve implements Manager.
func (m *InMemoryManager) Resolve(key string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	return id, ok
}

// Bind implements Manager.
func (m *InMemoryManager) Bind(key string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[key]; ok {
		return id, nil
	}
	m.nextID++
	m.byKey[key] = m.nextID
	return m.nextID, nil
}

// Rebind implements Manager.
func (m *InMemoryManager) Rebind(key string) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldID, ok := m.byKey[key]
	if !ok {
		return 0, 0, xerrors.Errorf("rebind %q: %w", key, ErrUnknownKey)
	}
	m.nextID++
	m.byKey[key] = m.nextID
	return oldID, m.nextID, nil
}
