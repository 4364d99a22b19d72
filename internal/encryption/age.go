package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"dtk-go/internal/config"
	"dtk-go/internal/dtk"
)

// AgeKeyring manages the X25519 key pair used to encrypt token blobs at rest.
// The public key is stored in plaintext; the private key is encrypted with the
// user's passphrase using age's scrypt-based passphrase encryption.
type AgeKeyring struct {
	publicKeyPath  string
	privateKeyPath string
}

// NewAgeKeyring creates a keyring from configuration. Nothing is read until
// Setup or Unlock.
func NewAgeKeyring(cfg config.EncryptionConfig) *AgeKeyring {
	return &AgeKeyring{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates a new key pair and writes both halves to disk, the private
// half sealed with passphrase.
func (k *AgeKeyring) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	for _, p := range []string{k.publicKeyPath, k.privateKeyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	if err := os.WriteFile(k.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	if err := os.WriteFile(k.privateKeyPath, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// IsConfigured returns true if both key files exist.
func (k *AgeKeyring) IsConfigured() bool {
	if _, err := os.Stat(k.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(k.privateKeyPath); err != nil {
		return false
	}
	return true
}

// Unlock decrypts the private key with passphrase and returns a cipher that
// can both seal and open blobs.
func (k *AgeKeyring) Unlock(passphrase string) (*AgeCipher, error) {
	recipient, err := k.loadRecipient()
	if err != nil {
		return nil, fmt.Errorf("loading public key: %w", err)
	}

	privData, err := os.ReadFile(k.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(privData), scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}

	identities, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in private key")
	}

	return &AgeCipher{recipient: recipient, identity: identities[0]}, nil
}

func (k *AgeKeyring) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(k.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}
	return recipients[0], nil
}

var ageMagic = []byte("age-encryption.org/")

// AgeCipher seals blobs to the keyring's public key and opens them with the
// unlocked identity.
type AgeCipher struct {
	recipient age.Recipient
	identity  age.Identity
}

var _ dtk.Cipher = (*AgeCipher)(nil)

func (c *AgeCipher) Seal(plaintext []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := age.Encrypt(&out, c.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return out.Bytes(), nil
}

// Open returns dtk.ErrKeyMismatch when the input is not an age file or was
// sealed to a different recipient.
func (c *AgeCipher) Open(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, ageMagic) {
		return nil, fmt.Errorf("%w: missing age header", dtk.ErrKeyMismatch)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), c.identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, fmt.Errorf("%w: %v", dtk.ErrKeyMismatch, err)
		}
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	return plaintext, nil
}
