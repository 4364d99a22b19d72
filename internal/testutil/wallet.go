package testutil

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"dtk-go/internal/dtk"
)

// StubWallet is an in-memory dtk.Wallet whose identity can be switched or
// disconnected from tests.
type StubWallet struct {
	mu         sync.Mutex
	identity   *solana.PublicKey
	canSign    bool
	balances   map[solana.PublicKey]decimal.Decimal
	BalanceErr error
	Airdrops   int
}

// NewStubWallet returns a wallet connected as id and able to sign.
func NewStubWallet(id solana.PublicKey) *StubWallet {
	return &StubWallet{
		identity: &id,
		canSign:  true,
		balances: make(map[solana.PublicKey]decimal.Decimal),
	}
}

// NewDisconnectedWallet returns a wallet with no identity.
func NewDisconnectedWallet() *StubWallet {
	return &StubWallet{balances: make(map[solana.PublicKey]decimal.Decimal)}
}

// Connect switches the wallet to id.
func (w *StubWallet) Connect(id solana.PublicKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.identity = &id
	w.canSign = true
}

// Disconnect drops the current identity.
func (w *StubWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.identity = nil
	w.canSign = false
}

// SetCanSign toggles signing ability while keeping the identity.
func (w *StubWallet) SetCanSign(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.canSign = v
}

// SetBalance sets the balance reported for id.
func (w *StubWallet) SetBalance(id solana.PublicKey, sol decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[id] = sol
}

func (w *StubWallet) CurrentIdentity() (solana.PublicKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.identity == nil {
		return solana.PublicKey{}, false
	}
	return *w.identity, true
}

func (w *StubWallet) CanSign() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.identity != nil && w.canSign
}

func (w *StubWallet) Balance(_ context.Context, id solana.PublicKey) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.BalanceErr != nil {
		return decimal.Zero, w.BalanceErr
	}
	return w.balances[id], nil
}

// RequestTestFunds credits 2 SOL, like the devnet faucet.
func (w *StubWallet) RequestTestFunds(_ context.Context, id solana.PublicKey) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Airdrops++
	w.balances[id] = w.balances[id].Add(decimal.NewFromInt(2))
	return true, nil
}

var _ dtk.Wallet = (*StubWallet)(nil)
