package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - DTK_CONFIG_PATH: config file location (default: ~/.config/dtk.toml)
//   - DTK_HOME: base directory for dtk data (default: ~/.local/share/dtk)
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("DTK_CONFIG_PATH", ".config", "dtk.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome("DTK_HOME", ".local", "share", "dtk")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env when set, otherwise the path elems
// joined under the user's home directory.
func envOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
