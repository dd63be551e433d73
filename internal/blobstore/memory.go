package blobstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps objects in process memory. Used for local runs without
// a bucket and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, payload []byte) error {
	if err := ValidateKey(key); err != nil {
		return &StorageError{Kind: ErrInvalidKey, Op: "put", Key: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return WrapError("put", key, err)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, WrapError("get", key, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, &StorageError{Kind: ErrNotFound, Op: "get", Key: key, Err: fmt.Errorf("no object")}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
