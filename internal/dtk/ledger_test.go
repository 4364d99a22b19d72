package dtk_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtk-go/internal/dtk"
	"dtk-go/internal/testutil"
)

type ledgerFixture struct {
	store   *testutil.FailingStore
	backend *testutil.StubBackend
	wallet  *testutil.StubWallet
	clock   *testutil.StubClock
	ledger  *dtk.Ledger
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		store:   &testutil.FailingStore{KVStore: testutil.NewTestStore()},
		backend: testutil.NewStubBackend(),
		wallet:  testutil.NewStubWallet(testutil.TestKey("alice")),
		clock:   testutil.FixedClock(),
	}
	f.ledger = dtk.NewLedger(f.store, f.backend, f.wallet, dtk.WithClock(f.clock))
	return f
}

func (f *ledgerFixture) storedTokens(t *testing.T, label string) []dtk.TokenRecord {
	t.Helper()
	owner := testutil.TestKey(label)
	blob, err := f.store.Get(context.Background(), dtk.StorageKey(owner))
	require.NoError(t, err)
	tokens, err := dtk.DecodeTokens(blob, owner)
	require.NoError(t, err)
	return tokens
}

func TestLedgerLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("no identity", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.wallet.Disconnect()

		tokens, err := f.ledger.Load(ctx)
		require.NoError(t, err)
		assert.NotNil(t, tokens)
		assert.Empty(t, tokens)
		_, ok := f.ledger.Identity()
		assert.False(t, ok)
	})

	t.Run("missing key", func(t *testing.T) {
		f := newLedgerFixture(t)

		tokens, err := f.ledger.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, tokens)
		id, ok := f.ledger.Identity()
		require.True(t, ok)
		assert.True(t, id.Equals(testutil.TestKey("alice")))
	})

	t.Run("stored collection", func(t *testing.T) {
		f := newLedgerFixture(t)
		owner := testutil.TestKey("alice")
		want := []dtk.TokenRecord{sampleRecord(owner, "a"), sampleRecord(owner, "b")}
		blob, err := dtk.EncodeTokens(want)
		require.NoError(t, err)
		require.NoError(t, f.store.Set(ctx, dtk.StorageKey(owner), blob))

		got, err := f.ledger.Load(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assertTokenEqual(t, want[0], got[0])
		assertTokenEqual(t, want[1], got[1])
	})

	t.Run("corrupt blob is evicted", func(t *testing.T) {
		f := newLedgerFixture(t)
		key := dtk.StorageKey(testutil.TestKey("alice"))
		require.NoError(t, f.store.Set(ctx, key, []byte("not json")))

		tokens, err := f.ledger.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, tokens)

		_, err = f.store.Get(ctx, key)
		assert.True(t, errors.Is(err, dtk.ErrBlobNotFound), "blob should be removed, got %v", err)
	})

	t.Run("blob sealed with another key is kept", func(t *testing.T) {
		f := newLedgerFixture(t)
		owner := testutil.TestKey("alice")
		blob, err := dtk.EncodeTokens([]dtk.TokenRecord{sampleRecord(owner, "a")})
		require.NoError(t, err)
		require.NoError(t, f.store.Set(ctx, dtk.StorageKey(owner), blob))

		f.store.GetErr = fmt.Errorf("decrypting: %w", dtk.ErrKeyMismatch)
		_, err = f.ledger.Load(ctx)
		assert.ErrorIs(t, err, dtk.ErrKeyMismatch)

		_, err = f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 0)
		assert.ErrorIs(t, err, dtk.ErrKeyMismatch)
		assert.Equal(t, 0, f.backend.Calls())

		f.store.GetErr = nil
		assert.Len(t, f.storedTokens(t, "alice"), 1)
	})
}

func TestLedgerCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("default price and duration", func(t *testing.T) {
		f := newLedgerFixture(t)

		rec, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 0)
		require.NoError(t, err)
		require.NotNil(t, rec)

		assertDecimal(t, dtk.DefaultPrice(d("0.08"), dtk.PrivacyMedium), rec.Price)
		assertDecimal(t, d("0.12"), rec.Price)
		assert.Equal(t, dtk.DefaultDurationDays, rec.DurationDays)
		assert.Equal(t, "Fitness data", rec.Name)
		assert.Equal(t, dtk.PrivacyMedium, rec.Privacy)
		assert.True(t, rec.TotalEarnings.IsZero())
		assert.Zero(t, rec.UsageCount)
		assert.True(t, rec.CreatedAt.Equal(f.clock.Now()))
		require.NotNil(t, rec.Mint)
		assert.Equal(t, rec.Mint.String(), rec.ID)
		assert.True(t, rec.Owner.Equals(testutil.TestKey("alice")))

		stored := f.storedTokens(t, "alice")
		require.Len(t, stored, 1)
		assertTokenEqual(t, *rec, stored[0])

		require.Len(t, f.backend.Requests, 1)
		req := f.backend.Requests[0]
		assert.Equal(t, dtk.DataTypeHealth, req.DataType)
		assert.Equal(t, 30, req.DurationDays)
		assertDecimal(t, rec.Price, req.Price)
	})

	t.Run("explicit price", func(t *testing.T) {
		f := newLedgerFixture(t)

		rec, err := f.ledger.Create(ctx, dtk.DataTypeSocial, d("0.5"), 7)
		require.NoError(t, err)
		assertDecimal(t, d("0.5"), rec.Price)
		assert.Equal(t, 7, rec.DurationDays)
	})

	t.Run("appends in creation order", func(t *testing.T) {
		f := newLedgerFixture(t)

		first, err := f.ledger.Create(ctx, dtk.DataTypeLocation, decimal.Zero, 10)
		require.NoError(t, err)
		second, err := f.ledger.Create(ctx, dtk.DataTypeBrowsing, decimal.Zero, 20)
		require.NoError(t, err)

		tokens := f.ledger.Tokens()
		require.Len(t, tokens, 2)
		assert.Equal(t, first.ID, tokens[0].ID)
		assert.Equal(t, second.ID, tokens[1].ID)
		assert.Len(t, f.storedTokens(t, "alice"), 2)
	})

	tests := []struct {
		name     string
		setup    func(f *ledgerFixture)
		dataType string
		duration int
		wantErr  error
	}{
		{"disconnected", func(f *ledgerFixture) { f.wallet.Disconnect() }, dtk.DataTypeHealth, 30, dtk.ErrWalletNotConnected},
		{"cannot sign", func(f *ledgerFixture) { f.wallet.SetCanSign(false) }, dtk.DataTypeHealth, 30, dtk.ErrWalletNotConnected},
		{"unknown data type", nil, "genome", 30, dtk.ErrUnknownDataType},
		{"duration too long", nil, dtk.DataTypeHealth, 366, dtk.ErrInvalidDuration},
		{"negative duration", nil, dtk.DataTypeHealth, -1, dtk.ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			rec, err := f.ledger.Create(ctx, tt.dataType, decimal.Zero, tt.duration)
			assert.Nil(t, rec)
			assert.True(t, errors.Is(err, tt.wantErr), "Create() error = %v, want %v", err, tt.wantErr)
			assert.Zero(t, f.backend.Calls(), "backend must not be called")
		})
	}
}

func TestLedgerCreateBackendFailure(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	existing, err := f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	require.NoError(t, err)

	key := dtk.StorageKey(testutil.TestKey("alice"))
	before, err := f.store.Get(ctx, key)
	require.NoError(t, err)

	mintErr := errors.New("insufficient funds for rent")
	f.backend.Err = mintErr

	rec, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	assert.Nil(t, rec)
	assert.Same(t, mintErr, err)

	tokens := f.ledger.Tokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, existing.ID, tokens[0].ID)

	after, err := f.store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLedgerCreatePersistFailure(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.store.FailSets = true

	rec, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrStoreDown))
	require.NotNil(t, rec, "the minted record is returned with the write error")

	tokens := f.ledger.Tokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, rec.ID, tokens[0].ID)
}

func TestLedgerCreateInProgress(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.Hook = func(context.Context) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	var (
		wg       sync.WaitGroup
		firstRec *dtk.TokenRecord
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstRec, firstErr = f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	}()

	<-entered
	_, err := f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	assert.True(t, errors.Is(err, dtk.ErrCreateInProgress), "error = %v", err)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	require.NotNil(t, firstRec)

	// The guard is released once the first create finishes.
	_, err = f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	require.NoError(t, err)
	assert.Len(t, f.ledger.Tokens(), 2)
}

func TestLedgerCreateKeepsConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	existing, err := f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	require.NoError(t, err)

	f.backend.Hook = func(ctx context.Context) {
		require.NoError(t, f.ledger.RecordUsage(ctx, existing.ID, d("0.5"), 1))
	}

	_, err = f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)

	stored := f.storedTokens(t, "alice")
	require.Len(t, stored, 2)
	assertDecimal(t, d("0.5"), stored[0].TotalEarnings)
	assert.Equal(t, 1, stored[0].UsageCount)
}

func TestLedgerCreateIdentitySwitchDuringMint(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	_, err := f.ledger.Load(ctx)
	require.NoError(t, err)

	f.backend.Hook = func(ctx context.Context) {
		f.wallet.Connect(testutil.TestKey("bob"))
		_, err := f.ledger.Load(ctx)
		require.NoError(t, err)
	}

	rec, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)
	assert.True(t, rec.Owner.Equals(testutil.TestKey("alice")))

	// bob's collection stays untouched, alice's blob holds the new token.
	assert.Empty(t, f.ledger.Tokens())
	id, _ := f.ledger.Identity()
	assert.True(t, id.Equals(testutil.TestKey("bob")))

	stored := f.storedTokens(t, "alice")
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)
}

func TestLedgerRecordUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates", func(t *testing.T) {
		f := newLedgerFixture(t)
		rec, err := f.ledger.Create(ctx, dtk.DataTypeBrowsing, decimal.Zero, 30)
		require.NoError(t, err)

		require.NoError(t, f.ledger.RecordUsage(ctx, rec.ID, d("0.02"), 1))
		require.NoError(t, f.ledger.RecordUsage(ctx, rec.ID, d("0.02"), 1))

		got, ok := f.ledger.Token(rec.ID)
		require.True(t, ok)
		assertDecimal(t, d("0.04"), got.TotalEarnings)
		assert.Equal(t, 2, got.UsageCount)

		stored := f.storedTokens(t, "alice")
		require.Len(t, stored, 1)
		assertDecimal(t, d("0.04"), stored[0].TotalEarnings)
		assert.Equal(t, 2, stored[0].UsageCount)
	})

	t.Run("expired token still accepts usage", func(t *testing.T) {
		f := newLedgerFixture(t)
		rec, err := f.ledger.Create(ctx, dtk.DataTypeBrowsing, decimal.Zero, 1)
		require.NoError(t, err)

		f.clock.AdvanceDays(5)
		require.True(t, rec.Expired(f.clock.Now()))
		require.NoError(t, f.ledger.RecordUsage(ctx, rec.ID, d("1"), 3))

		got, _ := f.ledger.Token(rec.ID)
		assert.Equal(t, 3, got.UsageCount)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		f := newLedgerFixture(t)
		require.NoError(t, f.ledger.RecordUsage(ctx, "missing", d("1"), 1))
		assert.Empty(t, f.ledger.Tokens())
	})

	t.Run("negative deltas rejected", func(t *testing.T) {
		f := newLedgerFixture(t)
		rec, err := f.ledger.Create(ctx, dtk.DataTypeBrowsing, decimal.Zero, 30)
		require.NoError(t, err)

		err = f.ledger.RecordUsage(ctx, rec.ID, d("-0.01"), 0)
		assert.True(t, errors.Is(err, dtk.ErrNegativeDelta))
		err = f.ledger.RecordUsage(ctx, rec.ID, decimal.Zero, -1)
		assert.True(t, errors.Is(err, dtk.ErrNegativeDelta))

		got, _ := f.ledger.Token(rec.ID)
		assert.True(t, got.TotalEarnings.IsZero())
		assert.Zero(t, got.UsageCount)
	})

	t.Run("disconnected", func(t *testing.T) {
		f := newLedgerFixture(t)
		f.wallet.Disconnect()
		err := f.ledger.RecordUsage(ctx, "x", d("1"), 1)
		assert.True(t, errors.Is(err, dtk.ErrWalletNotConnected))
	})
}

func TestLedgerDelete(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	a, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)
	b, err := f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Delete(ctx, a.ID))
	tokens := f.ledger.Tokens()
	require.Len(t, tokens, 1)
	assert.Equal(t, b.ID, tokens[0].ID)
	assert.Len(t, f.storedTokens(t, "alice"), 1)

	// Deleting again is a no-op and does not write.
	f.store.FailSets = true
	require.NoError(t, f.ledger.Delete(ctx, a.ID))
	assert.Len(t, f.ledger.Tokens(), 1)

	f.wallet.Disconnect()
	assert.True(t, errors.Is(f.ledger.Delete(ctx, b.ID), dtk.ErrWalletNotConnected))
}

func TestLedgerIdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	aliceTok, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)

	f.wallet.Connect(testutil.TestKey("bob"))
	tokens, err := f.ledger.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	bobTok, err := f.ledger.Create(ctx, dtk.DataTypePurchases, decimal.Zero, 30)
	require.NoError(t, err)
	assert.True(t, bobTok.Owner.Equals(testutil.TestKey("bob")))

	// Usage for alice's token is ignored while bob is connected.
	require.NoError(t, f.ledger.RecordUsage(ctx, aliceTok.ID, d("1"), 1))

	f.wallet.Connect(testutil.TestKey("alice"))
	tokens, err = f.ledger.Load(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, aliceTok.ID, tokens[0].ID)
	assert.Zero(t, tokens[0].UsageCount)

	assert.Len(t, f.storedTokens(t, "bob"), 1)
}

func TestLedgerMutationReconcilesIdentity(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	_, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)

	// No explicit Load: the next mutation notices the switch itself.
	f.wallet.Connect(testutil.TestKey("bob"))
	_, err = f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	require.NoError(t, err)

	assert.Len(t, f.ledger.Tokens(), 1)
	assert.Len(t, f.storedTokens(t, "alice"), 1)
	assert.Len(t, f.storedTokens(t, "bob"), 1)
}

func TestLedgerAggregate(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)

	s := f.ledger.Aggregate()
	assert.Zero(t, s.TotalTokens)
	assert.True(t, s.AveragePrice.IsZero())

	a, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)
	_, err = f.ledger.Create(ctx, dtk.DataTypeSocial, decimal.Zero, 30)
	require.NoError(t, err)
	require.NoError(t, f.ledger.RecordUsage(ctx, a.ID, d("0.3"), 4))

	s = f.ledger.Aggregate()
	assert.Equal(t, 2, s.TotalTokens)
	assert.Equal(t, 4, s.TotalUsage)
	assertDecimal(t, d("0.3"), s.TotalEarnings)
	assertDecimal(t, d("0.075"), s.AveragePrice)
}

func TestLedgerCreatedAtUsesClock(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(t)
	f.clock.Advance(90 * time.Minute)

	rec, err := f.ledger.Create(ctx, dtk.DataTypeHealth, decimal.Zero, 30)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(f.clock.Now()))
	assert.Equal(t, 30, rec.RemainingDays(f.clock.Now()))
}

func TestLedgerCreateMeasuresMintOnLedgerClock(t *testing.T) {
	f := newLedgerFixture(t)
	metrics := &recordingMetrics{}
	f.ledger = dtk.NewLedger(f.store, f.backend, f.wallet, dtk.WithClock(f.clock), dtk.WithMetrics(metrics))
	f.backend.Hook = func(context.Context) { f.clock.Advance(3 * time.Second) }

	_, err := f.ledger.Create(context.Background(), dtk.DataTypeHealth, decimal.Zero, 0)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{3 * time.Second}, metrics.mints)
}
