package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInjected is returned by MemoryStorage when a failure has been injected.
var ErrInjected = errors.New("injected storage failure")

// MemoryStorage is an in-memory key-value store with hooks for exercising
// the persistence gate: call counting, injected failures, and gates that
// hold a read or write open until the test releases it.
//
// Thread-safety: All methods are safe for concurrent use.
type MemoryStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	getGate chan struct{}
	setGate chan struct{}

	gets atomic.Int64
	sets atomic.Int64
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

// Get returns a copy of the value under key.
func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.gets.Add(1)

	m.mu.Lock()
	gate, err := m.getGate, m.getErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key.
func (m *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	m.sets.Add(1)

	m.mu.Lock()
	gate, err := m.setGate, m.setErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Put seeds a value without counting as a Set.
func (m *MemoryStorage) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// Value returns the stored value for key.
func (m *MemoryStorage) Value(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// FailGets makes every Get return err (nil clears it).
func (m *MemoryStorage) FailGets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// FailSets makes every Set return err (nil clears it).
func (m *MemoryStorage) FailSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// HoldGets blocks every Get until the returned release func is called.
func (m *MemoryStorage) HoldGets() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.getGate = gate
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.getGate = nil
		m.mu.Unlock()
		close(gate)
	}
}

// HoldSets blocks every Set until the returned release func is called.
// A blocked Set returns early if its context is cancelled.
func (m *MemoryStorage) HoldSets() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.setGate = gate
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.setGate = nil
		m.mu.Unlock()
		close(gate)
	}
}

// GetCalls returns how many times Get was called.
func (m *MemoryStorage) GetCalls() int64 { return m.gets.Load() }

// SetCalls returns how many times Set was called.
func (m *MemoryStorage) SetCalls() int64 { return m.sets.Load() }
