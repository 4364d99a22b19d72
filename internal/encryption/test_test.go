package encryption

import (
	"bytes"
	"errors"
	"testing"

	"dtk-go/internal/dtk"
)

func TestTestCipher_SealOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var c TestCipher
			sealed, err := c.Seal(tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if bytes.Equal(sealed, tt.input) {
				t.Error("sealed output is identical to plaintext")
			}
			if !bytes.HasPrefix(sealed, testHeader) {
				t.Error("sealed output does not start with test header")
			}

			opened, err := c.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(opened, tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", opened, tt.input)
			}
		})
	}
}

func TestTestCipher_Deterministic(t *testing.T) {
	t.Parallel()

	var c TestCipher
	a, _ := c.Seal([]byte("same"))
	b, _ := c.Seal([]byte("same"))
	if !bytes.Equal(a, b) {
		t.Error("same input produced different sealed output")
	}
}

func TestTestCipher_OpenInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "wrong header", input: []byte("NOT_VALID_HEADER_data")},
		{name: "truncated header", input: []byte("DTK")},
		{name: "empty", input: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c TestCipher
			if _, err := c.Open(tt.input); !errors.Is(err, dtk.ErrKeyMismatch) {
				t.Errorf("Open() error = %v, want ErrKeyMismatch", err)
			}
		})
	}
}
