package contacts

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts []Contact
	userName string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Contacts(context.Context) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.contacts), nil
}

func (m *MemoryStore) SaveContacts(_ context.Context, list []Contact) error {
	m.mu.Lock()
	m.contacts = slices.Clone(list)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UserName(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userName, nil
}

func (m *MemoryStore) SaveUserName(_ context.Context, name string) error {
	m.mu.Lock()
	m.userName = name
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
