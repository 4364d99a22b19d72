package testutil

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// TestKey derives a deterministic public key from a label. Distinct labels
// give distinct keys.
func TestKey(label string) solana.PublicKey {
	h := sha256.Sum256([]byte(label))
	return solana.PublicKeyFromBytes(h[:])
}
