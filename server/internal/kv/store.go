package kv

import (
	"errors"
	"slices"
	"sync"
)

var ErrNotFound = errors.New("no entry found for the given key")

// In-Memory Thread-Safe ordered Key-Value Storage.
// Insertion order and the table are updated under the same lock.
type Store[V any] struct {
	order []string
	table map[string]V
	mu    sync.RWMutex
}

func NewStore[V any]() *Store[V] {
	return &Store[V]{
		table: make(map[string]V),
	}
}

// Get a value given its key
func (m *Store[V]) Get(key string) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.table[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}

	return entry, nil
}

// Set stores the value. New keys are appended, existing ones keep their place.
func (m *Store[V]) Set(key string, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.table[key]; !ok {
		m.order = append(m.order, key)
	}
	m.table[key] = v
}

// Delete removes the entry and returns it.
func (m *Store[V]) Delete(key string) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.table[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}

	delete(m.table, key)
	m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == key })

	return entry, nil
}

// Keys in insertion order
func (m *Store[V]) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.order)
}

// Returns all values in insertion order
func (m *Store[V]) All() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]V, 0, len(m.order))
	for _, k := range m.order {
		values = append(values, m.table[k])
	}

	return values
}

func (m *Store[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.order)
}
