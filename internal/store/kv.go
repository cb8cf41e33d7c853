// Package store persists the engine's opaque blobs ("locks", "settings")
// behind a small key-value port, and serializes writes per key.
package store

import (
	"context"
	"regexp"
	"sync"

	"github.com/lockguard/lockguard/pkg/errclass"
)

// KV is the durable key-value port. Load reports ok=false for a missing key.
type KV interface {
	Load(ctx context.Context, key string) (data []byte, ok bool, err error)
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

var keyRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func validateKey(key string) error {
	if !keyRegex.MatchString(key) || key == "." || key == ".." {
		return errclass.ErrStoreUnavailable.WithMessagef("invalid store key %q", key)
	}
	return nil
}

// Memory is an in-process KV. Failures can be injected for tests.
type Memory struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   map[string]int
	failErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte), saves: make(map[string]int)}
}

// Load implements KV.
func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), d...), true, nil
}

// Save implements KV.
func (m *Memory) Save(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.data[key] = append([]byte(nil), data...)
	m.saves[key]++
	return nil
}

// Remove implements KV.
func (m *Memory) Remove(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	delete(m.data, key)
	return nil
}

// Close implements KV.
func (m *Memory) Close() error { return nil }

// Put seeds a blob without counting it as a save.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
}

// Saves returns how many successful saves key has received.
func (m *Memory) Saves(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[key]
}

// FailWith makes every later Save and Remove return err. nil clears it.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

var _ KV = (*Memory)(nil)
