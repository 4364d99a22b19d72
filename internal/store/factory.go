package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dtk-go/internal/config"
	"dtk-go/internal/database"
)

// NewStoreFromConfig creates a Store implementation based on the store config
// type and validates its setup. The returned store is not encrypted; callers
// wrap it with EncryptedStore when encryption is configured.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	s, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateSetup(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("validating %s store: %w", cfg.Type, err)
	}
	return s, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite store requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return database.NewSQLiteStore(filepath.Join(cfg.DataDir, "dtk.db"))
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis store requires redis_url to be set")
		}
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Region: cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

var _ Store = (*database.SQLiteStore)(nil)
