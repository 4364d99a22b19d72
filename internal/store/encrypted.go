package store

import (
	"context"
	"errors"
	"fmt"

	"dtk-go/internal/dtk"
)

// EncryptedStore seals blobs with a dtk.Cipher before handing them to the
// wrapped store. A blob sealed for another key, or never sealed at all, is
// reported as dtk.ErrKeyMismatch and left alone. Any other open failure is
// dtk.ErrCorruptBlob.
type EncryptedStore struct {
	inner  Store
	cipher dtk.Cipher
}

// NewEncryptedStore wraps inner with cipher.
func NewEncryptedStore(inner Store, cipher dtk.Cipher) *EncryptedStore {
	return &EncryptedStore{inner: inner, cipher: cipher}
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	blob, err := s.cipher.Open(sealed)
	if errors.Is(err, dtk.ErrKeyMismatch) {
		return nil, fmt.Errorf("decrypting %s: %w", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting %s: %v", dtk.ErrCorruptBlob, key, err)
	}
	return blob, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key string, blob []byte) error {
	sealed, err := s.cipher.Seal(blob)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedStore) ValidateSetup(ctx context.Context) error {
	return s.inner.ValidateSetup(ctx)
}

func (s *EncryptedStore) Close() error {
	return s.inner.Close()
}

var _ Store = (*EncryptedStore)(nil)
