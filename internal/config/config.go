package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dtk.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Wallet     WalletConfig     `toml:"wallet"`
	Chain      ChainConfig      `toml:"chain"`
	Store      StoreConfig      `toml:"store"`
	Encryption EncryptionConfig `toml:"encryption"`
	Balance    BalanceConfig    `toml:"balance"`
}

// WalletConfig locates the signing keypair. The file uses the solana-keygen
// JSON format (a 64-byte array).
type WalletConfig struct {
	KeypairPath string `toml:"keypair_path"`
}

// ChainConfig represents configuration for the ledger backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ChainConfig struct {
	Type    string `toml:"type"`    // "rpc" or "local"
	Cluster string `toml:"cluster"` // "devnet", "testnet" or "mainnet-beta"

	// RPC-specific fields (only used when Type == "rpc")
	RPCURL                string `toml:"rpc_url,omitempty"`
	ConfirmTimeoutSeconds int    `toml:"confirm_timeout_seconds,omitempty"`
}

// ConfirmTimeout returns how long to wait for a mint to confirm. Defaults to 60s.
func (c ChainConfig) ConfirmTimeout() time.Duration {
	if c.ConfirmTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// StoreConfig represents configuration for the token store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "sqlite", "redis" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// SQLite-specific fields (only used when Type == "sqlite")
	DataDir string `toml:"data_dir,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisURL    string `toml:"redis_url,omitempty"`
	RedisPrefix string `toml:"redis_prefix,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt stored blobs.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age", "none" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// BalanceConfig controls the wallet balance refresh.
type BalanceConfig struct {
	RefreshSeconds int    `toml:"refresh_seconds"`
	MetricsAddr    string `toml:"metrics_addr,omitempty"`
}

// Interval returns the refresh period. Defaults to 10s.
func (b BalanceConfig) Interval() time.Duration {
	if b.RefreshSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.RefreshSeconds) * time.Second
}

// NewConfig creates a new Config rooted at baseDir with devnet, filesystem
// store and no encryption as defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Wallet: WalletConfig{
			KeypairPath: filepath.Join(baseDir, "keys", "wallet.json"),
		},
		Chain: ChainConfig{
			Type:                  "rpc",
			Cluster:               "devnet",
			RPCURL:                "https://api.devnet.solana.com",
			ConfirmTimeoutSeconds: 60,
		},
		Store: StoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "tokens"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dtk.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dtk.key"),
		},
		Balance: BalanceConfig{RefreshSeconds: 10},
	}
}

// Validate reports the first inconsistency in cfg.
func (c *Config) Validate() error {
	switch c.Chain.Type {
	case "rpc":
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain type rpc requires rpc_url to be set")
		}
	case "local":
	default:
		return fmt.Errorf("unknown chain type: %q", c.Chain.Type)
	}

	switch c.Store.Type {
	case "memory", "filesystem", "sqlite", "redis", "s3":
	default:
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}

	switch c.Encryption.Type {
	case "", "none", "test", "age":
	default:
		return fmt.Errorf("unknown encryption type: %q", c.Encryption.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
