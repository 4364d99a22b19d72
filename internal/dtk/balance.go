package dtk

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// DefaultBalanceInterval is how often a BalanceWatcher refreshes.
const DefaultBalanceInterval = 10 * time.Second

// BalanceUpdate is delivered to the BalanceWatcher callback on every refresh.
type BalanceUpdate struct {
	Identity solana.PublicKey
	Balance  decimal.Decimal
	Err      error
	At       time.Time
}

// BalanceWatcher periodically refreshes the balance of the identity that
// was connected when Run started. It stops as soon as the wallet
// disconnects or switches identity, so it never reports on a stale one.
type BalanceWatcher struct {
	wallet   Wallet
	interval time.Duration
	onUpdate func(BalanceUpdate)
	clock    Clock
	logger   Logger
	metrics  Metrics
}

// WatcherOption customizes a BalanceWatcher.
type WatcherOption func(*BalanceWatcher)

// WatchWithClock sets the clock stamped on updates.
func WatchWithClock(c Clock) WatcherOption {
	return func(w *BalanceWatcher) { w.clock = c }
}

// WatchWithLogger sets the watcher logger.
func WatchWithLogger(lg Logger) WatcherOption {
	return func(w *BalanceWatcher) { w.logger = lg }
}

// WatchWithMetrics sets the metrics sink that receives observed balances.
func WatchWithMetrics(m Metrics) WatcherOption {
	return func(w *BalanceWatcher) { w.metrics = m }
}

// NewBalanceWatcher creates a watcher. A non-positive interval falls back to
// DefaultBalanceInterval.
func NewBalanceWatcher(wallet Wallet, interval time.Duration, onUpdate func(BalanceUpdate), opts ...WatcherOption) *BalanceWatcher {
	if interval <= 0 {
		interval = DefaultBalanceInterval
	}
	if onUpdate == nil {
		onUpdate = func(BalanceUpdate) {}
	}

	w := &BalanceWatcher{
		wallet:   wallet,
		interval: interval,
		onUpdate: onUpdate,
		clock:    RealClock{},
		logger:   NewNopLogger(),
		metrics:  NopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run refreshes immediately and then on every tick. It returns nil when the
// watched identity goes away and ctx.Err() when ctx is cancelled.
func (w *BalanceWatcher) Run(ctx context.Context) error {
	id, ok := w.wallet.CurrentIdentity()
	if !ok {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if !w.refresh(ctx, id) {
			w.logger.Info("balance watcher stopped: identity changed", "identity", id.String())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// refresh fetches and reports one balance. It returns false when id is no
// longer the connected identity.
func (w *BalanceWatcher) refresh(ctx context.Context, id solana.PublicKey) bool {
	current, ok := w.wallet.CurrentIdentity()
	if !ok || !current.Equals(id) {
		return false
	}

	balance, err := w.wallet.Balance(ctx, id)
	if err != nil {
		w.logger.Warn("fetching balance failed", "identity", id.String(), "error", err)
		balance = decimal.Zero
	}

	f, _ := balance.Float64()
	w.metrics.BalanceObserved(f)
	w.onUpdate(BalanceUpdate{Identity: id, Balance: balance, Err: err, At: w.clock.Now()})
	return true
}
