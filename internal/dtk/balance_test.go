package dtk_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtk-go/internal/dtk"
	"dtk-go/internal/testutil"
)

type recordingMetrics struct {
	dtk.NopMetrics
	mu       sync.Mutex
	balances []float64
	mints    []time.Duration
}

func (m *recordingMetrics) ObserveMint(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mints = append(m.mints, elapsed)
}

func (m *recordingMetrics) BalanceObserved(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = append(m.balances, v)
}

func TestBalanceWatcherNoIdentity(t *testing.T) {
	wallet := testutil.NewDisconnectedWallet()
	called := false
	w := dtk.NewBalanceWatcher(wallet, time.Millisecond, func(dtk.BalanceUpdate) { called = true })

	require.NoError(t, w.Run(context.Background()))
	assert.False(t, called)
}

func TestBalanceWatcherRefreshesUntilCancelled(t *testing.T) {
	alice := testutil.TestKey("alice")
	wallet := testutil.NewStubWallet(alice)
	wallet.SetBalance(alice, d("1.5"))
	metrics := &recordingMetrics{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates []dtk.BalanceUpdate
	w := dtk.NewBalanceWatcher(wallet, 2*time.Millisecond, func(u dtk.BalanceUpdate) {
		updates = append(updates, u)
		if len(updates) == 3 {
			cancel()
		}
	}, dtk.WatchWithClock(testutil.FixedClock()), dtk.WatchWithMetrics(metrics))

	err := w.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "Run() error = %v", err)

	require.Len(t, updates, 3)
	for _, u := range updates {
		assert.True(t, u.Identity.Equals(alice))
		assertDecimal(t, d("1.5"), u.Balance)
		assert.NoError(t, u.Err)
		assert.True(t, u.At.Equal(testutil.FixedClock().Now()))
	}
	assert.Equal(t, []float64{1.5, 1.5, 1.5}, metrics.balances)
}

func TestBalanceWatcherStopsOnIdentityChange(t *testing.T) {
	wallet := testutil.NewStubWallet(testutil.TestKey("alice"))

	count := 0
	w := dtk.NewBalanceWatcher(wallet, time.Millisecond, func(dtk.BalanceUpdate) {
		count++
		wallet.Connect(testutil.TestKey("bob"))
	})

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 1, count)
}

func TestBalanceWatcherStopsOnDisconnect(t *testing.T) {
	wallet := testutil.NewStubWallet(testutil.TestKey("alice"))

	count := 0
	w := dtk.NewBalanceWatcher(wallet, time.Millisecond, func(dtk.BalanceUpdate) {
		count++
		if count == 2 {
			wallet.Disconnect()
		}
	})

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 2, count)
}

func TestBalanceWatcherFetchErrorReportsZero(t *testing.T) {
	alice := testutil.TestKey("alice")
	wallet := testutil.NewStubWallet(alice)
	wallet.SetBalance(alice, d("3"))
	wallet.BalanceErr = errors.New("rpc timeout")

	var got dtk.BalanceUpdate
	w := dtk.NewBalanceWatcher(wallet, time.Millisecond, func(u dtk.BalanceUpdate) {
		got = u
		wallet.Disconnect()
	})

	require.NoError(t, w.Run(context.Background()))
	assert.True(t, got.Balance.IsZero())
	assert.EqualError(t, got.Err, "rpc timeout")
}
