// Package credentials stores provider secrets and keeps a short-lived cache
// in front of the backing store so a burst of provider calls reads it once.
package credentials

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("credential not found")

// Store is the durable secret store. Implementations return ErrNotFound
// (possibly wrapped) when name has no value.
type Store interface {
	Get(name string) ([]byte, error)
	Set(name string, value []byte) error
	Delete(name string) error
}

// MemoryStore is a process-local Store, used in tests and as a fallback when
// no OS keychain is available.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	reads  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	v, ok := s.values[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return ErrNotFound
	}
	delete(s.values, name)
	return nil
}

// Reads reports how many Get calls reached the store.
func (s *MemoryStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
