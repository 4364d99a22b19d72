package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dtk-go/internal/dtk"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// AirdropLamports is the amount requested from the devnet faucet.
const AirdropLamports = 2 * solana.LAMPORTS_PER_SOL

// ErrOffline is returned by network calls on a wallet without an RPC client.
var ErrOffline = errors.New("no rpc client configured")

// Signer authorizes transactions on behalf of the connected identity.
type Signer interface {
	CurrentIdentity() (solana.PublicKey, bool)
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// KeypairWallet is a wallet backed by a local ed25519 keypair in the
// solana-keygen file format. With no key loaded it is disconnected.
type KeypairWallet struct {
	client         RPC
	confirmTimeout time.Duration
	pollInterval   time.Duration

	mu  sync.RWMutex
	key solana.PrivateKey
}

var (
	_ dtk.Wallet = (*KeypairWallet)(nil)
	_ Signer     = (*KeypairWallet)(nil)
)

// NewKeypairWallet returns a wallet connected with key. A nil key yields a
// disconnected wallet.
func NewKeypairWallet(client RPC, key solana.PrivateKey) *KeypairWallet {
	return &KeypairWallet{
		client:         client,
		key:            key,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
	}
}

// SetConfirmPolicy changes how long RequestTestFunds waits for the airdrop
// to confirm and how often it polls. Zero values keep the current setting.
func (w *KeypairWallet) SetConfirmPolicy(timeout, poll time.Duration) {
	if timeout > 0 {
		w.confirmTimeout = timeout
	}
	if poll > 0 {
		w.pollInterval = poll
	}
}

// LoadKeypairWallet reads the keypair at path. A missing file is not an
// error: the wallet simply starts disconnected.
func LoadKeypairWallet(client RPC, path string) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewKeypairWallet(client, nil), nil
		}
		return nil, fmt.Errorf("loading keypair %s: %w", path, err)
	}
	return NewKeypairWallet(client, key), nil
}

// Connect switches the wallet to key.
func (w *KeypairWallet) Connect(key solana.PrivateKey) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("connecting wallet: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = key
	return nil
}

// Disconnect forgets the loaded key.
func (w *KeypairWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = nil
}

func (w *KeypairWallet) CurrentIdentity() (solana.PublicKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.key) == 0 {
		return solana.PublicKey{}, false
	}
	return w.key.PublicKey(), true
}

// CanSign is true whenever a key is loaded.
func (w *KeypairWallet) CanSign() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.key) != 0
}

// Balance returns the finalized balance of id in SOL.
func (w *KeypairWallet) Balance(ctx context.Context, id solana.PublicKey) (decimal.Decimal, error) {
	if w.client == nil {
		return decimal.Zero, ErrOffline
	}
	res, err := w.client.GetBalance(ctx, id, rpc.CommitmentFinalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching balance of %s: %w", id, err)
	}
	return LamportsToSOL(res.Value), nil
}

// RequestTestFunds asks the faucet for AirdropLamports and waits until the
// airdrop is confirmed. It only works on devnet and testnet.
func (w *KeypairWallet) RequestTestFunds(ctx context.Context, id solana.PublicKey) (bool, error) {
	if w.client == nil {
		return false, ErrOffline
	}
	sig, err := w.client.RequestAirdrop(ctx, id, AirdropLamports, rpc.CommitmentFinalized)
	if err != nil {
		return false, fmt.Errorf("airdrop to %s: %w", id, err)
	}
	if sig.IsZero() {
		return false, nil
	}
	if err := awaitConfirmation(ctx, w.client, sig, "airdrop", w.confirmTimeout, w.pollInterval, dtk.NewNopLogger()); err != nil {
		return false, err
	}
	return true, nil
}

// SignTransaction adds the wallet's signature to tx. Signatures already
// present from other signers are kept.
func (w *KeypairWallet) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	w.mu.RLock()
	key := w.key
	w.mu.RUnlock()

	if len(key) == 0 {
		return dtk.ErrWalletNotConnected
	}
	pub := key.PublicKey()
	if _, err := tx.PartialSign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(pub) {
			return &key
		}
		return nil
	}); err != nil {
		return fmt.Errorf("signing transaction: %w", err)
	}
	return nil
}

// LamportsToSOL converts a lamport amount to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// GenerateKeypairFile creates a new keypair and writes it to path in the
// solana-keygen format. It refuses to overwrite an existing file.
func GenerateKeypairFile(path string) (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	if err := WriteKeygenFile(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

// WriteKeygenFile writes key as a JSON array of 64 byte values.
func WriteKeygenFile(path string, key solana.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating keypair directory: %w", err)
	}

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	content, err := json.Marshal(ints)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("keypair already exists at %s", path)
		}
		return fmt.Errorf("creating keypair file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("writing keypair file: %w", err)
	}
	return nil
}
