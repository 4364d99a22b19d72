package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPC is the subset of the Solana JSON-RPC API used by this package.
// *rpc.Client satisfies it.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetVersion(ctx context.Context) (*rpc.GetVersionResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

var _ RPC = (*rpc.Client)(nil)

// Known cluster names.
const (
	ClusterDevnet  = "devnet"
	ClusterTestnet = "testnet"
	ClusterMainnet = "mainnet-beta"
	ClusterLocal   = "localnet"
)

// RPCURLForCluster returns the public RPC endpoint of a cluster.
func RPCURLForCluster(cluster string) (string, error) {
	switch cluster {
	case ClusterDevnet, "":
		return rpc.DevNet_RPC, nil
	case ClusterTestnet:
		return rpc.TestNet_RPC, nil
	case ClusterMainnet, "mainnet":
		return rpc.MainNetBeta_RPC, nil
	case ClusterLocal:
		return rpc.LocalNet_RPC, nil
	default:
		return "", fmt.Errorf("unknown cluster: %s", cluster)
	}
}

// NewClient returns an RPC client for url, or for the cluster's public
// endpoint when url is empty.
func NewClient(cluster, url string) (*rpc.Client, error) {
	if url == "" {
		var err error
		url, err = RPCURLForCluster(cluster)
		if err != nil {
			return nil, err
		}
	}
	return rpc.New(url), nil
}

// CheckConnection asks the node for its version.
func CheckConnection(ctx context.Context, client RPC) (string, error) {
	v, err := client.GetVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("rpc node unreachable: %w", err)
	}
	if v == nil {
		return "", fmt.Errorf("rpc node returned no version")
	}
	return v.SolanaCore, nil
}

// ExplorerURL links an address or a transaction signature on the Solana
// explorer. kind is "address" or "tx".
func ExplorerURL(kind, value, cluster string) string {
	u := fmt.Sprintf("https://explorer.solana.com/%s/%s", kind, value)
	switch cluster {
	case "", ClusterMainnet, "mainnet":
		return u
	case ClusterLocal:
		return u + "?cluster=custom"
	default:
		return u + "?cluster=" + cluster
	}
}

// ShortAddress abbreviates a base58 address as "Abcd...wxyz".
func ShortAddress(pk solana.PublicKey) string {
	s := pk.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// ParseAddress parses a base58 address, tolerating surrounding whitespace.
func ParseAddress(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return pk, nil
}
