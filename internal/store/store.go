package store

import (
	"context"
	"fmt"
	"regexp"

	"dtk-go/internal/dtk"
)

// Store is a dtk.KVStore that holds resources until closed.
type Store interface {
	dtk.KVStore

	// ValidateSetup verifies that the backing storage is reachable and
	// usable.
	ValidateSetup(ctx context.Context) error

	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// ValidateKey rejects keys that cannot be used as a file name or object name
// without escaping. Token collection keys are always valid.
func ValidateKey(key string) error {
	if len(key) > 200 || !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", dtk.ErrInvalidKey, key)
	}
	return nil
}
