package app

import (
	"errors"
	"fmt"
	"os"

	"dtk-go/internal/chain"
	"dtk-go/internal/config"
	"dtk-go/internal/encryption"
)

// Bootstrap writes a new config file and creates whatever keys it refers
// to: the wallet keypair (unless one already exists) and, for age
// encryption, the encryption key pair sealed with a passphrase from
// newPassphrase. It returns a human readable line per created item.
func Bootstrap(configPath string, cfg *config.Config, newPassphrase func() (string, error)) ([]string, error) {
	if err := config.Init(configPath, cfg); err != nil {
		return nil, err
	}
	created := []string{"config: " + configPath}

	if _, err := os.Stat(cfg.Wallet.KeypairPath); errors.Is(err, os.ErrNotExist) {
		key, err := chain.GenerateKeypairFile(cfg.Wallet.KeypairPath)
		if err != nil {
			return created, fmt.Errorf("creating wallet: %w", err)
		}
		created = append(created, fmt.Sprintf("wallet: %s (%s)", cfg.Wallet.KeypairPath, key.PublicKey()))
	}

	if cfg.Encryption.Type == "age" {
		keyring := encryption.NewAgeKeyring(cfg.Encryption)
		if !keyring.IsConfigured() {
			pass, err := newPassphrase()
			if err != nil {
				return created, fmt.Errorf("reading passphrase: %w", err)
			}
			if err := keyring.Setup(pass); err != nil {
				return created, fmt.Errorf("creating encryption keys: %w", err)
			}
			created = append(created, "encryption keys: "+cfg.Encryption.PublicKeyPath)
		}
	}
	return created, nil
}
