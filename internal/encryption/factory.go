package encryption

import (
	"fmt"

	"dtk-go/internal/config"
	"dtk-go/internal/dtk"
)

// PassphraseFunc supplies the passphrase that unlocks the private key.
type PassphraseFunc func() (string, error)

// NewCipherFromConfig creates a Cipher based on the configuration type.
// It returns a nil Cipher for type "none" (or empty): blobs are stored as
// plaintext.
func NewCipherFromConfig(cfg config.EncryptionConfig, passphrase PassphraseFunc) (dtk.Cipher, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "test":
		return TestCipher{}, nil
	case "age":
		keyring := NewAgeKeyring(cfg)
		if !keyring.IsConfigured() {
			return nil, fmt.Errorf("age keys not found at %s; run 'dtk config init' first", cfg.PublicKeyPath)
		}
		pass, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		c, err := keyring.Unlock(pass)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
