package state

import (
	"sync"
	"time"
)

// Backend stores one payload per (scopeKey, kind). Writes replace the
// payload and reset startedAt; deletion is the only way a slot empties.
type Backend interface {
	GetState(scopeKey, kind string) (payload []byte, startedAt time.Time, ok bool, err error)
	SetState(scopeKey, kind string, payload []byte) error
	DeleteState(scopeKey, kind string) error
}

// Keyed adds the atomic check-then-write the raw backend cannot give:
// handlers that must refuse a second concurrent start for the same slot go
// through SetIfAbsent instead of a separate Get and Set.
type Keyed struct {
	mu      sync.Mutex
	backend Backend
}

func NewKeyed(backend Backend) *Keyed {
	return &Keyed{backend: backend}
}

func (k *Keyed) Get(scopeKey, kind string) ([]byte, time.Time, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.backend.GetState(scopeKey, kind)
}

func (k *Keyed) Set(scopeKey, kind string, payload []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.backend.SetState(scopeKey, kind, payload)
}

func (k *Keyed) Delete(scopeKey, kind string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.backend.DeleteState(scopeKey, kind)
}

// SetIfAbsent stores payload only when the slot is empty. It reports whether
// the write happened; a false return means another round is already live.
func (k *Keyed) SetIfAbsent(scopeKey, kind string, payload []byte) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, _, ok, err := k.backend.GetState(scopeKey, kind)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := k.backend.SetState(scopeKey, kind, payload); err != nil {
		return false, err
	}
	return true, nil
}

type memoryEntry struct {
	payload   []byte
	startedAt time.Time
}

// MemoryBackend keeps slots in a process-local map. Used by tests and by
// deployments that do not need state to survive a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFunc func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

func memoryKey(scopeKey, kind string) string { return scopeKey + "\x00" + kind }

func (m *MemoryBackend) GetState(scopeKey, kind string) ([]byte, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memoryKey(scopeKey, kind)]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return e.payload, e.startedAt, true, nil
}

func (m *MemoryBackend) SetState(scopeKey, kind string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey(scopeKey, kind)] = memoryEntry{payload: payload, startedAt: m.nowFunc()}
	return nil
}

func (m *MemoryBackend) DeleteState(scopeKey, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoryKey(scopeKey, kind))
	return nil
}
