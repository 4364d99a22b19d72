package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"dtk-go/internal/chain"
	"dtk-go/internal/config"
	"dtk-go/internal/database"
	"dtk-go/internal/dtk"
	"dtk-go/internal/encryption"
	"dtk-go/internal/metrics"
	"dtk-go/internal/store"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// ErrNoJournal is returned by History when the configured store keeps no
// operation journal.
var ErrNoJournal = errors.New("operation history requires the sqlite store")

// ErrNoBackup is returned by Backup when the configured store cannot
// snapshot itself.
var ErrNoBackup = errors.New("backup requires the sqlite store")

// snapshotter is a store that can write a consistent copy of itself.
type snapshotter interface {
	BackupTo(destPath string) error
}

var _ snapshotter = (*database.SQLiteStore)(nil)

// Options tune how a DTKApp is built.
type Options struct {
	// Operation names the CLI command being run (e.g. "CreateToken").
	Operation  string
	Parameters string

	// Passphrase unlocks age encryption keys. Only called when needed.
	Passphrase encryption.PassphraseFunc

	// Console receives warnings (and debug output when Verbose). Nil
	// disables console logging.
	Console io.Writer
	Verbose bool
}

// DTKApp is the application layer between the CLI and the ledger.
// It constructs all dependencies from config, exposes high-level operations
// and releases resources on Close.
type DTKApp struct {
	cfg      *config.Config
	store    store.Store
	journal  Journal
	client   chain.RPC
	wallet   *chain.KeypairWallet
	ledger   *dtk.Ledger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	logger   dtk.Logger
	op       *Operation
	logFile  *os.File
}

// NewDTKApp creates a fully wired DTKApp from the given config.
// The caller must call Close when done.
func NewDTKApp(ctx context.Context, cfg *config.Config, opts Options) (*DTKApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opID := dtk.UUIDGenerator{}.New()[:8]
	slogger, logFile, err := newLogger(cfg.LogDir, opID, opts.Console, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &DTKApp{
		cfg:      cfg,
		logger:   logger,
		logFile:  logFile,
		registry: prometheus.NewRegistry(),
		op:       NewOperation(opts.Operation, opts.Parameters),
	}
	if err := a.wire(ctx, opts); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *DTKApp) wire(ctx context.Context, opts Options) error {
	cfg := a.cfg

	s, err := store.NewStoreFromConfig(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	a.store = s
	if j, ok := s.(Journal); ok {
		a.journal = j
	}

	passphrase := opts.Passphrase
	if passphrase == nil {
		passphrase = Passphrase("Passphrase: ")
	}
	cipher, err := encryption.NewCipherFromConfig(cfg.Encryption, passphrase)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}
	var kv dtk.KVStore = s
	if cipher != nil {
		kv = store.NewEncryptedStore(s, cipher)
	}

	if cfg.Chain.Type == "rpc" {
		client, err := chain.NewClient(cfg.Chain.Cluster, cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("creating rpc client: %w", err)
		}
		a.client = client
	}

	a.wallet, err = chain.LoadKeypairWallet(a.client, cfg.Wallet.KeypairPath)
	if err != nil {
		return fmt.Errorf("loading wallet: %w", err)
	}
	a.wallet.SetConfirmPolicy(cfg.Chain.ConfirmTimeout(), 0)

	var backend dtk.LedgerBackend
	switch cfg.Chain.Type {
	case "rpc":
		backend = chain.NewRPCBackend(a.client, a.wallet,
			chain.WithConfirmTimeout(cfg.Chain.ConfirmTimeout()),
			chain.WithBackendLogger(a.logger),
		)
	case "local":
		backend = chain.NewLocalBackend(a.wallet, a.logger)
	}

	a.metrics = metrics.New(a.registry)
	a.ledger = dtk.NewLedger(kv, backend, a.wallet,
		dtk.WithLogger(a.logger),
		dtk.WithMetrics(a.metrics),
	)
	return nil
}

// Config returns the configuration the app was built from.
func (a *DTKApp) Config() *config.Config { return a.cfg }

// Address returns the connected wallet address.
func (a *DTKApp) Address() (solana.PublicKey, bool) {
	return a.wallet.CurrentIdentity()
}

// ExplorerURL links kind ("address" or "tx") on the configured cluster.
func (a *DTKApp) ExplorerURL(kind, value string) string {
	return chain.ExplorerURL(kind, value, a.cfg.Chain.Cluster)
}

// CheckStore verifies that the configured store is still usable.
func (a *DTKApp) CheckStore(ctx context.Context) error {
	return a.store.ValidateSetup(ctx)
}

// CheckConnection returns the version of the configured RPC node.
func (a *DTKApp) CheckConnection(ctx context.Context) (string, error) {
	if a.client == nil {
		return "", chain.ErrOffline
	}
	return chain.CheckConnection(ctx, a.client)
}

// Balance returns the connected wallet's balance in SOL.
func (a *DTKApp) Balance(ctx context.Context) (decimal.Decimal, error) {
	id, ok := a.wallet.CurrentIdentity()
	if !ok {
		return decimal.Zero, dtk.ErrWalletNotConnected
	}
	return a.wallet.Balance(ctx, id)
}

// Airdrop requests test SOL for the connected wallet.
func (a *DTKApp) Airdrop(ctx context.Context) (bool, error) {
	id, ok := a.wallet.CurrentIdentity()
	if !ok {
		return false, dtk.ErrWalletNotConnected
	}
	ok, err := a.wallet.RequestTestFunds(ctx, id)
	if err != nil {
		return false, err
	}
	a.logger.Info("airdrop requested", "owner", id.String(), "lamports", chain.AirdropLamports)
	return ok, nil
}

// Tokens loads the connected wallet's token collection.
func (a *DTKApp) Tokens(ctx context.Context) ([]dtk.TokenRecord, error) {
	return a.ledger.Load(ctx)
}

// Stats loads the collection and summarizes it.
func (a *DTKApp) Stats(ctx context.Context) (dtk.Stats, error) {
	if _, err := a.ledger.Load(ctx); err != nil {
		return dtk.Stats{}, err
	}
	return a.ledger.Aggregate(), nil
}

// CreateToken mints a data token of dataType. A zero price selects the
// catalog default; zero days selects the default validity.
func (a *DTKApp) CreateToken(ctx context.Context, dataType string, price decimal.Decimal, days int) (*dtk.TokenRecord, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	rec, err := a.ledger.Create(ctx, dataType, price, days)
	return rec, a.op.Record(err)
}

// RecordUsage credits a token with earnings and usage events.
func (a *DTKApp) RecordUsage(ctx context.Context, tokenID string, earnings decimal.Decimal, count int) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.op.Record(a.ledger.RecordUsage(ctx, tokenID, earnings, count))
}

// DeleteToken removes a token from the collection.
func (a *DTKApp) DeleteToken(ctx context.Context, tokenID string) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.op.Record(a.ledger.Delete(ctx, tokenID))
}

// Token returns a token from the collection loaded for the connected wallet.
func (a *DTKApp) Token(ctx context.Context, tokenID string) (dtk.TokenRecord, bool, error) {
	if _, err := a.ledger.Load(ctx); err != nil {
		return dtk.TokenRecord{}, false, err
	}
	rec, ok := a.ledger.Token(tokenID)
	return rec, ok, nil
}

// Watch refreshes the wallet balance every interval until ctx is cancelled
// or the wallet changes.
func (a *DTKApp) Watch(ctx context.Context, interval time.Duration, onUpdate func(dtk.BalanceUpdate)) error {
	if interval <= 0 {
		interval = a.cfg.Balance.Interval()
	}
	w := dtk.NewBalanceWatcher(a.wallet, interval, onUpdate,
		dtk.WatchWithLogger(a.logger),
		dtk.WatchWithMetrics(a.metrics),
	)
	return w.Run(ctx)
}

// MetricsHandler serves the app's prometheus registry.
func (a *DTKApp) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
}

// History returns the most recent journaled operations.
func (a *DTKApp) History(ctx context.Context, limit int) ([]database.Operation, error) {
	if a.journal == nil {
		return nil, ErrNoJournal
	}
	return a.journal.ListOperations(ctx, limit)
}

// Backup writes a snapshot of the store, including the operation journal,
// to destPath. destPath must not exist yet.
func (a *DTKApp) Backup(ctx context.Context, destPath string) error {
	db, ok := a.store.(snapshotter)
	if !ok {
		return ErrNoBackup
	}
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	err := db.BackupTo(destPath)
	if err == nil {
		a.logger.Info("store backed up", "path", destPath)
	}
	return a.op.Record(err)
}

// persistOperation journals the operation, giving it an ID. It is a no-op
// when the store keeps no journal.
func (a *DTKApp) persistOperation(ctx context.Context) error {
	if a.journal == nil || a.op.Persisted() {
		return nil
	}
	id, err := a.journal.CreateOperation(ctx, a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// Close finalizes the operation record and closes all resources.
func (a *DTKApp) Close() error {
	var firstErr error
	if a.journal != nil && a.op.Persisted() {
		if err := a.journal.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *DTKApp) closeResources() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
