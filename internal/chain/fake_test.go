package chain

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// fakeRPC answers RPC calls from canned values and records what was sent.
type fakeRPC struct {
	mu sync.Mutex

	balance    uint64
	balanceErr error
	airdropErr error
	airdrops   []uint64
	version    string
	rent       uint64
	blockhash  solana.Hash
	sendErr    error
	sent       []*solana.Transaction

	// statuses are returned one per poll; a nil entry means "not found".
	// The last entry repeats once the list is exhausted.
	statuses    []*rpc.SignatureStatusesResult
	statusCalls int
}

var _ RPC = (*fakeRPC)(nil)

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		version:   "1.18.22",
		rent:      1461600,
		blockhash: solana.HashFromBytes([]byte("blockhash-blockhash-blockhash-32")),
	}
}

func (f *fakeRPC) GetBalance(_ context.Context, _ solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) RequestAirdrop(_ context.Context, _ solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.airdropErr != nil {
		return solana.Signature{}, f.airdropErr
	}
	f.airdrops = append(f.airdrops, lamports)
	var sig solana.Signature
	sig[0] = 1
	return sig, nil
}

func (f *fakeRPC) GetVersion(context.Context) (*rpc.GetVersionResult, error) {
	return &rpc.GetVersionResult{SolanaCore: f.version}, nil
}

func (f *fakeRPC) GetMinimumBalanceForRentExemption(context.Context, uint64, rpc.CommitmentType) (uint64, error) {
	return f.rent, nil
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash, LastValidBlockHeight: 100},
	}, nil
}

func (f *fakeRPC) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.statusCalls
	f.statusCalls++
	if len(f.statuses) == 0 {
		return nil, rpc.ErrNotFound
	}
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	status := f.statuses[idx]
	if status == nil {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{status}}, nil
}

func (f *fakeRPC) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
