package store

import (
	"context"
	"path/filepath"
	"testing"

	"dtk-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StoreConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.StoreConfig{Type: "filesystem", FSRoot: filepath.Join(dir, "fs")}},
		{name: "filesystem without root", cfg: config.StoreConfig{Type: "filesystem"}, wantErr: true},
		{name: "sqlite", cfg: config.StoreConfig{Type: "sqlite", DataDir: filepath.Join(dir, "db")}},
		{name: "sqlite without data dir", cfg: config.StoreConfig{Type: "sqlite"}, wantErr: true},
		{name: "redis without url", cfg: config.StoreConfig{Type: "redis"}, wantErr: true},
		{name: "redis bad url", cfg: config.StoreConfig{Type: "redis", RedisURL: "http://nope"}, wantErr: true},
		{name: "s3 without bucket", cfg: config.StoreConfig{Type: "s3"}, wantErr: true},
		{name: "unknown", cfg: config.StoreConfig{Type: "dynamo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer got.Close()
			kvContract(t, got)
		})
	}
}
