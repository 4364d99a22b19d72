package chain

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func TestRPCURLForCluster(t *testing.T) {
	tests := []struct {
		cluster string
		want    string
		wantErr bool
	}{
		{"", rpc.DevNet_RPC, false},
		{"devnet", rpc.DevNet_RPC, false},
		{"testnet", rpc.TestNet_RPC, false},
		{"mainnet-beta", rpc.MainNetBeta_RPC, false},
		{"localnet", rpc.LocalNet_RPC, false},
		{"moon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.cluster, func(t *testing.T) {
			got, err := RPCURLForCluster(tt.cluster)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RPCURLForCluster() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RPCURLForCluster() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient("devnet", ""); err != nil {
		t.Errorf("NewClient(devnet) error = %v", err)
	}
	if _, err := NewClient("moon", "http://127.0.0.1:8899"); err != nil {
		t.Errorf("explicit url should ignore cluster, got %v", err)
	}
	if _, err := NewClient("moon", ""); err == nil {
		t.Error("expected error for unknown cluster")
	}
}

func TestExplorerURL(t *testing.T) {
	const addr = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	tests := []struct {
		kind, cluster, want string
	}{
		{"address", "devnet", "https://explorer.solana.com/address/" + addr + "?cluster=devnet"},
		{"tx", "testnet", "https://explorer.solana.com/tx/" + addr + "?cluster=testnet"},
		{"address", "mainnet-beta", "https://explorer.solana.com/address/" + addr},
		{"address", "localnet", "https://explorer.solana.com/address/" + addr + "?cluster=custom"},
	}
	for _, tt := range tests {
		if got := ExplorerURL(tt.kind, addr, tt.cluster); got != tt.want {
			t.Errorf("ExplorerURL(%q, %q) = %q, want %q", tt.kind, tt.cluster, got, tt.want)
		}
	}
}

func TestShortAddress(t *testing.T) {
	pk := solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	if got := ShortAddress(pk); got != "9xQe...VFin" {
		t.Errorf("ShortAddress() = %q", got)
	}
}

func TestParseAddress(t *testing.T) {
	want := solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	got, err := ParseAddress("  9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin\n")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if !got.Equals(want) {
		t.Errorf("ParseAddress() = %s, want %s", got, want)
	}
	if _, err := ParseAddress("not-base58-0OIl"); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestCheckConnection(t *testing.T) {
	client := newFakeRPC()
	v, err := CheckConnection(context.Background(), client)
	if err != nil {
		t.Fatalf("CheckConnection() error = %v", err)
	}
	if v != "1.18.22" {
		t.Errorf("CheckConnection() = %q", v)
	}
}
