package testutil

import (
	"context"
	"fmt"
	"sync"

	"dtk-go/internal/dtk"
)

// StubBackend is a dtk.LedgerBackend that mints deterministic mint
// addresses ("mint-1", "mint-2", ...) or fails with Err when set.
type StubBackend struct {
	mu       sync.Mutex
	Err      error
	Requests []dtk.MintRequest
	counter  int

	// Hook, when set, runs inside Mint before the result is produced.
	// Tests use it to block a mint or to change wallet state mid-flight.
	Hook func(ctx context.Context)
}

func NewStubBackend() *StubBackend {
	return &StubBackend{}
}

func (b *StubBackend) Mint(ctx context.Context, req dtk.MintRequest) (dtk.MintReceipt, error) {
	if b.Hook != nil {
		b.Hook(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.Requests = append(b.Requests, req)
	if b.Err != nil {
		return dtk.MintReceipt{}, b.Err
	}

	b.counter++
	return dtk.MintReceipt{
		Mint:      TestKey(fmt.Sprintf("mint-%d", b.counter)),
		Signature: fmt.Sprintf("sig-%d", b.counter),
	}, nil
}

// Calls returns how many mint requests were received.
func (b *StubBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Requests)
}

var _ dtk.LedgerBackend = (*StubBackend)(nil)
