package encryption

import (
	"bytes"
	"fmt"

	"dtk-go/internal/dtk"
)

// testHeader marks blobs sealed by TestCipher.
var testHeader = []byte("DTKENC\x00\x00")

// TestCipher is a deterministic, reversible Cipher for tests. It prepends a
// fixed 8-byte header so sealed output never equals plaintext.
type TestCipher struct{}

var _ dtk.Cipher = TestCipher{}

func (TestCipher) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(plaintext))
	out = append(out, testHeader...)
	return append(out, plaintext...), nil
}

func (TestCipher) Open(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, testHeader) {
		return nil, fmt.Errorf("%w: invalid test encryption header", dtk.ErrKeyMismatch)
	}
	return append([]byte(nil), ciphertext[len(testHeader):]...), nil
}
