package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dtk-go/internal/dtk"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// ErrConfirmTimeout is returned when a sent transaction is not confirmed in time.
var ErrConfirmTimeout = errors.New("transaction not confirmed before timeout")

// tokenMemo is the metadata attached to a mint transaction.
type tokenMemo struct {
	App      string `json:"app"`
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Price    string `json:"price"`
	Privacy  string `json:"privacy"`
	Duration int    `json:"duration"`
}

// buildMintTransaction assembles the instructions that create a fresh
// zero-decimal SPL mint owned by the payer, followed by a memo carrying
// the token metadata. The mint account signature is already applied.
func buildMintTransaction(req dtk.MintRequest, mintKey solana.PrivateKey, rent uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	payer := req.Owner
	mint := mintKey.PublicKey()

	memo, err := json.Marshal(tokenMemo{
		App:      "dtk",
		Name:     req.Name,
		DataType: req.DataType,
		Price:    req.Price.String(),
		Privacy:  string(req.Privacy),
		Duration: req.DurationDays,
	})
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewCreateAccountInstruction(rent, token.MINT_SIZE, solana.TokenProgramID, payer, mint).Build(),
			token.NewInitializeMint2Instruction(0, payer, payer, mint).Build(),
			solana.NewInstruction(
				solana.MemoProgramID,
				solana.AccountMetaSlice{solana.Meta(payer).SIGNER()},
				memo,
			),
		},
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("building mint transaction: %w", err)
	}

	if _, err := tx.PartialSign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(mint) {
			return &mintKey
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("signing with mint key: %w", err)
	}
	return tx, nil
}

// signAsOwner checks that the signer is the request owner and applies its
// signature.
func signAsOwner(ctx context.Context, signer Signer, req dtk.MintRequest, tx *solana.Transaction) error {
	id, ok := signer.CurrentIdentity()
	if !ok {
		return dtk.ErrWalletNotConnected
	}
	if !id.Equals(req.Owner) {
		return fmt.Errorf("signer %s is not the token owner %s", id, req.Owner)
	}
	return signer.SignTransaction(ctx, tx)
}

// RPCBackend mints data tokens on a Solana cluster. Each token is a new SPL
// mint whose mint and freeze authority is the owner.
type RPCBackend struct {
	client         RPC
	signer         Signer
	logger         dtk.Logger
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

var _ dtk.LedgerBackend = (*RPCBackend)(nil)

type RPCBackendOption func(*RPCBackend)

func WithConfirmTimeout(d time.Duration) RPCBackendOption {
	return func(b *RPCBackend) {
		if d > 0 {
			b.confirmTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) RPCBackendOption {
	return func(b *RPCBackend) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

func WithBackendLogger(lg dtk.Logger) RPCBackendOption {
	return func(b *RPCBackend) { b.logger = lg }
}

func NewRPCBackend(client RPC, signer Signer, opts ...RPCBackendOption) *RPCBackend {
	b := &RPCBackend{
		client:         client,
		signer:         signer,
		logger:         dtk.NewNopLogger(),
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mint creates the mint account, waits for confirmation and returns the
// new mint address with the transaction signature.
func (b *RPCBackend) Mint(ctx context.Context, req dtk.MintRequest) (dtk.MintReceipt, error) {
	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return dtk.MintReceipt{}, fmt.Errorf("generating mint key: %w", err)
	}

	rent, err := b.client.GetMinimumBalanceForRentExemption(ctx, token.MINT_SIZE, rpc.CommitmentFinalized)
	if err != nil {
		return dtk.MintReceipt{}, fmt.Errorf("fetching rent exemption: %w", err)
	}
	latest, err := b.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return dtk.MintReceipt{}, fmt.Errorf("fetching latest blockhash: %w", err)
	}
	if latest == nil || latest.Value == nil {
		return dtk.MintReceipt{}, fmt.Errorf("fetching latest blockhash: empty response")
	}

	tx, err := buildMintTransaction(req, mintKey, rent, latest.Value.Blockhash)
	if err != nil {
		return dtk.MintReceipt{}, err
	}
	if err := signAsOwner(ctx, b.signer, req, tx); err != nil {
		return dtk.MintReceipt{}, err
	}

	sig, err := b.client.SendTransaction(ctx, tx)
	if err != nil {
		return dtk.MintReceipt{}, fmt.Errorf("sending mint transaction: %w", err)
	}
	b.logger.Debug("mint transaction sent", "signature", sig.String(), "mint", mintKey.PublicKey().String())

	if err := awaitConfirmation(ctx, b.client, sig, "mint transaction", b.confirmTimeout, b.pollInterval, b.logger); err != nil {
		return dtk.MintReceipt{}, err
	}
	return dtk.MintReceipt{Mint: mintKey.PublicKey(), Signature: sig.String()}, nil
}

// awaitConfirmation polls the status of sig until the transaction reaches
// confirmed commitment, fails, or timeout elapses. kind names the
// transaction in errors.
func awaitConfirmation(ctx context.Context, client RPC, sig solana.Signature, kind string, timeout, poll time.Duration, logger dtk.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		res, err := client.GetSignatureStatuses(ctx, false, sig)
		switch {
		case errors.Is(err, rpc.ErrNotFound):
		case err != nil:
			if ctx.Err() == nil {
				logger.Warn("signature status check failed", "signature", sig.String(), "error", err)
			}
		case len(res.Value) > 0 && res.Value[0] != nil:
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%s %s failed: %v", kind, sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LocalBackend builds and signs mint transactions without a network. It
// is used for offline work and in tests; nothing is registered on chain.
type LocalBackend struct {
	signer Signer
	logger dtk.Logger
	rent   uint64
}

var _ dtk.LedgerBackend = (*LocalBackend)(nil)

// localRentLamports is the devnet rent-exempt minimum for a mint account.
const localRentLamports = 1461600

func NewLocalBackend(signer Signer, logger dtk.Logger) *LocalBackend {
	if logger == nil {
		logger = dtk.NewNopLogger()
	}
	return &LocalBackend{signer: signer, logger: logger, rent: localRentLamports}
}

func (b *LocalBackend) Mint(ctx context.Context, req dtk.MintRequest) (dtk.MintReceipt, error) {
	if err := ctx.Err(); err != nil {
		return dtk.MintReceipt{}, err
	}
	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return dtk.MintReceipt{}, fmt.Errorf("generating mint key: %w", err)
	}

	tx, err := buildMintTransaction(req, mintKey, b.rent, solana.Hash{})
	if err != nil {
		return dtk.MintReceipt{}, err
	}
	if err := signAsOwner(ctx, b.signer, req, tx); err != nil {
		return dtk.MintReceipt{}, err
	}
	if err := tx.VerifySignatures(); err != nil {
		return dtk.MintReceipt{}, fmt.Errorf("verifying mint transaction: %w", err)
	}

	sig := tx.Signatures[0]
	b.logger.Debug("local mint", "signature", sig.String(), "mint", mintKey.PublicKey().String())
	return dtk.MintReceipt{Mint: mintKey.PublicKey(), Signature: sig.String()}, nil
}
