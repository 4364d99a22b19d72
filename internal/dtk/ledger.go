package dtk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Ledger owns the token collection of the currently connected wallet and
// mediates every change to it. Each mutation is written through to the
// KVStore before the call returns.
//
// A Ledger never holds more than one identity's tokens: whenever the wallet
// reports a different identity than the one loaded, the collection is
// reloaded for the new identity first.
type Ledger struct {
	store   KVStore
	backend LedgerBackend
	wallet  Wallet
	clock   Clock
	logger  Logger
	metrics Metrics

	mu       sync.Mutex
	identity *solana.PublicKey
	tokens   []TokenRecord
	creating bool
}

// LedgerOption customizes a Ledger.
type LedgerOption func(*Ledger)

// WithClock sets the clock used for creation timestamps.
func WithClock(c Clock) LedgerOption {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the ledger logger.
func WithLogger(lg Logger) LedgerOption {
	return func(l *Ledger) { l.logger = lg }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger creates a Ledger. Nothing is read until Load or the first mutation.
func NewLedger(store KVStore, backend LedgerBackend, wallet Wallet, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		backend: backend,
		wallet:  wallet,
		clock:   RealClock{},
		logger:  NewNopLogger(),
		metrics: NopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load reads the token collection of the wallet's current identity.
// With no wallet connected it returns an empty collection without touching
// the store. A corrupt blob is evicted and treated as an empty collection.
// A blob sealed with a different key is kept and ErrKeyMismatch returned.
func (l *Ledger) Load(ctx context.Context) ([]TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.wallet.CurrentIdentity()
	if !ok {
		l.identity = nil
		l.tokens = nil
		return []TokenRecord{}, nil
	}

	if err := l.loadLocked(ctx, id); err != nil {
		return nil, err
	}
	return l.snapshotLocked(), nil
}

// loadLocked replaces the in-memory collection with the one persisted for id.
func (l *Ledger) loadLocked(ctx context.Context, id solana.PublicKey) error {
	key := StorageKey(id)

	blob, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrBlobNotFound):
		l.setIdentityLocked(id, nil)
		return nil
	case errors.Is(err, ErrKeyMismatch):
		l.identity = nil
		l.tokens = nil
		return fmt.Errorf("reading tokens for %s: %w", id, err)
	case errors.Is(err, ErrCorruptBlob):
		// The store could not even open the blob (e.g. failed decryption).
	case err != nil:
		return fmt.Errorf("reading tokens for %s: %w", id, err)
	default:
		tokens, decodeErr := DecodeTokens(blob, id)
		if decodeErr == nil {
			l.setIdentityLocked(id, tokens)
			l.logger.Debug("tokens loaded", "owner", id.String(), "count", len(tokens))
			return nil
		}
		err = decodeErr
	}

	l.logger.Warn("discarding corrupt token blob", "owner", id.String(), "key", key, "error", err)
	l.metrics.CorruptEvicted()
	if delErr := l.store.Delete(ctx, key); delErr != nil {
		return fmt.Errorf("evicting corrupt blob %s: %w", key, delErr)
	}
	l.setIdentityLocked(id, nil)
	return nil
}

func (l *Ledger) setIdentityLocked(id solana.PublicKey, tokens []TokenRecord) {
	l.identity = &id
	l.tokens = tokens
}

// reconcileLocked makes sure the loaded collection belongs to the wallet's
// current identity and returns that identity.
func (l *Ledger) reconcileLocked(ctx context.Context) (solana.PublicKey, bool, error) {
	id, ok := l.wallet.CurrentIdentity()
	if !ok {
		l.identity = nil
		l.tokens = nil
		return solana.PublicKey{}, false, nil
	}
	if l.identity != nil && l.identity.Equals(id) {
		return id, true, nil
	}
	if err := l.loadLocked(ctx, id); err != nil {
		return solana.PublicKey{}, false, err
	}
	return id, true, nil
}

// Create mints a new data token of the given type and appends it to the
// collection. explicitPrice is used when positive; otherwise the catalog's
// default price applies. durationDays of zero means DefaultDurationDays.
//
// Backend errors are returned unchanged and leave both memory and storage
// untouched. If the mint succeeds but the write-through fails, the record is
// kept in memory and returned together with the write error.
func (l *Ledger) Create(ctx context.Context, dataTypeID string, explicitPrice decimal.Decimal, durationDays int) (*TokenRecord, error) {
	if durationDays == 0 {
		durationDays = DefaultDurationDays
	}

	l.mu.Lock()
	id, ok, err := l.reconcileLocked(ctx)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if !ok || !l.wallet.CanSign() {
		l.mu.Unlock()
		return nil, ErrWalletNotConnected
	}

	dt, found := LookupDataType(dataTypeID)
	if !found {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataType, dataTypeID)
	}
	if durationDays < MinDurationDays || durationDays > MaxDurationDays {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, durationDays)
	}
	if l.creating {
		l.mu.Unlock()
		return nil, ErrCreateInProgress
	}
	l.creating = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.creating = false
		l.mu.Unlock()
	}()

	price := explicitPrice
	if !price.IsPositive() {
		price = dt.DefaultPrice()
	}

	req := MintRequest{
		Name:         dt.Name,
		Description:  dt.Description,
		DataType:     dt.ID,
		Price:        price,
		Privacy:      dt.Privacy,
		DurationDays: durationDays,
		Owner:        id,
	}

	l.logger.Info("minting data token", "owner", id.String(), "data_type", dt.ID, "price", price.String(), "duration", durationDays)
	start := l.clock.Now()
	receipt, err := l.backend.Mint(ctx, req)
	l.metrics.ObserveMint(l.clock.Now().Sub(start))
	if err != nil {
		l.metrics.MintFailed(dt.ID)
		l.logger.Error("mint failed", "owner", id.String(), "data_type", dt.ID, "error", err)
		return nil, err
	}

	mint := receipt.Mint
	record := TokenRecord{
		ID:            mint.String(),
		Name:          dt.Name,
		Description:   dt.Description,
		DataType:      dt.ID,
		Price:         price,
		Privacy:       dt.Privacy,
		DurationDays:  durationDays,
		Owner:         id,
		Mint:          &mint,
		CreatedAt:     l.clock.Now().UTC(),
		TotalEarnings: decimal.Zero,
		UsageCount:    0,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.identity == nil || !l.identity.Equals(id) {
		// The wallet switched while the mint was in flight; the token still
		// belongs to the identity that paid for it.
		if err := l.appendForeignLocked(ctx, id, record); err != nil {
			return &record, err
		}
		l.metrics.TokenMinted(dt.ID)
		return &record, nil
	}

	l.tokens = append(l.tokens, record)
	l.metrics.TokenMinted(dt.ID)
	l.logger.Info("data token created", "owner", id.String(), "mint", record.ID, "signature", receipt.Signature)

	if err := l.persistLocked(ctx); err != nil {
		return &record, err
	}
	return &record, nil
}

// appendForeignLocked persists record into the stored collection of an
// identity that is not the one currently loaded.
func (l *Ledger) appendForeignLocked(ctx context.Context, owner solana.PublicKey, record TokenRecord) error {
	current, currentTokens := l.identity, l.tokens
	defer func() {
		l.identity, l.tokens = current, currentTokens
	}()

	if err := l.loadLocked(ctx, owner); err != nil {
		return err
	}
	l.tokens = append(l.tokens, record)
	return l.persistLocked(ctx)
}

// RecordUsage adds earnings and usage to a token. Unknown ids are ignored.
// Expired tokens still accept usage.
func (l *Ledger) RecordUsage(ctx context.Context, tokenID string, earningsDelta decimal.Decimal, usageDelta int) error {
	if earningsDelta.IsNegative() || usageDelta < 0 {
		return ErrNegativeDelta
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok, err := l.reconcileLocked(ctx); err != nil {
		return err
	} else if !ok {
		return ErrWalletNotConnected
	}

	idx := l.indexLocked(tokenID)
	if idx < 0 {
		l.logger.Debug("usage for unknown token ignored", "token", tokenID)
		return nil
	}

	updated := make([]TokenRecord, len(l.tokens))
	copy(updated, l.tokens)
	updated[idx].TotalEarnings = updated[idx].TotalEarnings.Add(earningsDelta)
	updated[idx].UsageCount += usageDelta
	l.tokens = updated

	l.metrics.UsageRecorded(usageDelta)
	l.logger.Info("usage recorded", "token", tokenID, "earnings", earningsDelta.String(), "usage", usageDelta)
	return l.persistLocked(ctx)
}

// Delete removes a token from the collection. Deleting an unknown id is a no-op.
func (l *Ledger) Delete(ctx context.Context, tokenID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok, err := l.reconcileLocked(ctx); err != nil {
		return err
	} else if !ok {
		return ErrWalletNotConnected
	}

	idx := l.indexLocked(tokenID)
	if idx < 0 {
		return nil
	}

	updated := make([]TokenRecord, 0, len(l.tokens)-1)
	updated = append(updated, l.tokens[:idx]...)
	updated = append(updated, l.tokens[idx+1:]...)
	l.tokens = updated

	l.metrics.TokenDeleted()
	l.logger.Info("token deleted", "token", tokenID)
	return l.persistLocked(ctx)
}

// Tokens returns a copy of the loaded collection.
func (l *Ledger) Tokens() []TokenRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Token returns the loaded token with the given id.
func (l *Ledger) Token(tokenID string) (TokenRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexLocked(tokenID)
	if idx < 0 {
		return TokenRecord{}, false
	}
	return l.tokens[idx], true
}

// Aggregate summarizes the loaded collection. It is recomputed on every call.
func (l *Ledger) Aggregate() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Aggregate(l.tokens)
}

// Identity returns the identity whose collection is loaded.
func (l *Ledger) Identity() (solana.PublicKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.identity == nil {
		return solana.PublicKey{}, false
	}
	return *l.identity, true
}

func (l *Ledger) indexLocked(tokenID string) int {
	for i := range l.tokens {
		if l.tokens[i].ID == tokenID {
			return i
		}
	}
	return -1
}

func (l *Ledger) snapshotLocked() []TokenRecord {
	out := make([]TokenRecord, len(l.tokens))
	copy(out, l.tokens)
	return out
}

// persistLocked writes the loaded collection to the store.
func (l *Ledger) persistLocked(ctx context.Context) error {
	if l.identity == nil {
		return nil
	}
	blob, err := EncodeTokens(l.tokens)
	if err != nil {
		return err
	}
	key := StorageKey(*l.identity)
	if err := l.store.Set(ctx, key, blob); err != nil {
		l.logger.Error("persisting tokens failed", "key", key, "error", err)
		return fmt.Errorf("persisting tokens: %w", err)
	}
	return nil
}
