package testutil

import (
	"context"
	"errors"

	"dtk-go/internal/dtk"
	"dtk-go/internal/store"
)

// NewTestStore creates a new in-memory KVStore for testing.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

// ErrStoreDown is returned by FailingStore writes.
var ErrStoreDown = errors.New("store unavailable")

// FailingStore wraps a KVStore and fails writes while FailSets is true.
// When GetErr is set, reads return it instead.
type FailingStore struct {
	dtk.KVStore
	FailSets bool
	GetErr   error
}

func (s *FailingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	return s.KVStore.Get(ctx, key)
}

func (s *FailingStore) Set(ctx context.Context, key string, blob []byte) error {
	if s.FailSets {
		return ErrStoreDown
	}
	return s.KVStore.Set(ctx, key, blob)
}
