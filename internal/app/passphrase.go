package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"dtk-go/internal/encryption"

	"golang.org/x/term"
)

// PassphraseEnv overrides the interactive passphrase prompt.
const PassphraseEnv = "DTK_PASSPHRASE"

// Passphrase returns a PassphraseFunc that reads DTK_PASSPHRASE, or prompts
// on the terminal when it is unset. Without a terminal it fails.
func Passphrase(prompt string) encryption.PassphraseFunc {
	return passphraseFrom(os.Getenv, os.Stdin, os.Stderr, prompt)
}

func passphraseFrom(getenv func(string) string, in *os.File, out io.Writer, prompt string) encryption.PassphraseFunc {
	return func() (string, error) {
		if p := getenv(PassphraseEnv); p != "" {
			return p, nil
		}

		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal to prompt for passphrase; set %s", PassphraseEnv)
		}

		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
}

// NewPassphrase prompts twice and requires both entries to match. It is used
// when creating new encryption keys.
func NewPassphrase() (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}
	first, err := Passphrase("New passphrase: ")()
	if err != nil {
		return "", err
	}
	second, err := Passphrase("Repeat passphrase: ")()
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}
