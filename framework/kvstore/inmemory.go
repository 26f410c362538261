package kvstore

import (
	"context"
	"sync"

	"github.com/akriventsev/bookshelf/framework/core"
)

// InMemoryStore хранилище в памяти для тестов и разработки
type InMemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	putErr error
	getErr error
}

// NewInMemoryStore создает новый InMemoryStore
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string][]byte),
	}
}

// Get возвращает копию значения
func (s *InMemoryStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getErr != nil {
		return nil, false, core.Wrap(s.getErr, core.ErrTransport, "failed to get value")
	}
	value, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Put сохраняет копию значения
func (s *InMemoryStore) Put(ctx context.Context, key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		return core.Wrap(s.putErr, core.ErrTransport, "failed to put value")
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[string(key)] = stored
	return nil
}

// Delete удаляет ключ; отсутствие ключа не ошибка
func (s *InMemoryStore) Delete(ctx context.Context, key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, string(key))
	s.mu.Unlock()
	return nil
}

// Len возвращает количество ключей
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// FailPuts включает ошибку для всех последующих Put; nil выключает
func (s *InMemoryStore) FailPuts(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

// FailGets включает ошибку для всех последующих Get; nil выключает
func (s *InMemoryStore) FailGets(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

// Close реализует Store
func (s *InMemoryStore) Close() error {
	return nil
}
