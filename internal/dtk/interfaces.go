package dtk

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// KVStore is the key-value persistence capability the ledger writes token
// collections to. Implementations must treat Delete of a missing key as a
// successful no-op.
type KVStore interface {
	// Get returns the blob stored under key, or ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores blob under key, replacing any previous value.
	Set(ctx context.Context, key string, blob []byte) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
}

// MintRequest carries the metadata of a data token being minted.
type MintRequest struct {
	Name         string
	Description  string
	DataType     string
	Price        decimal.Decimal
	Privacy      PrivacyTier
	DurationDays int
	Owner        solana.PublicKey
}

// MintReceipt is returned by a LedgerBackend once the mint is confirmed.
type MintReceipt struct {
	Mint      solana.PublicKey
	Signature string
}

// LedgerBackend registers new data tokens on chain. Failures (network,
// rejected signature, insufficient funds) are returned as-is.
type LedgerBackend interface {
	Mint(ctx context.Context, req MintRequest) (MintReceipt, error)
}

// Wallet identifies the current user and reports on their funds.
type Wallet interface {
	// CurrentIdentity returns the connected address. ok is false when no
	// wallet is connected.
	CurrentIdentity() (id solana.PublicKey, ok bool)

	// CanSign reports whether the wallet is able to authorize transactions.
	CanSign() bool

	// Balance returns the SOL balance of id.
	Balance(ctx context.Context, id solana.PublicKey) (decimal.Decimal, error)

	// RequestTestFunds asks the network faucet for test SOL.
	RequestTestFunds(ctx context.Context, id solana.PublicKey) (bool, error)
}

// Cipher seals blobs before they reach a KVStore and opens them on the way back.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Clock abstracts time retrieval so creation timestamps and validity
// windows are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator hands out unique identifiers (operation ids, local mint nonces).
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
