package dtk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const storageKeyPrefix = "user_tokens_"

// StorageKey returns the KVStore key holding the token collection of owner.
func StorageKey(owner solana.PublicKey) string {
	return storageKeyPrefix + owner.String()
}

// storedToken is the persisted shape of a TokenRecord. Keys and value
// encodings are shared with existing dashboards, so they must not change.
type storedToken struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	DataType      string          `json:"dataType"`
	Price         decimal.Decimal `json:"price"`
	Privacy       PrivacyTier     `json:"privacy"`
	Duration      int             `json:"duration"`
	Owner         string          `json:"owner"`
	Mint          string          `json:"mint,omitempty"`
	Created       string          `json:"created"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	UsageCount    int             `json:"usageCount"`
}

// EncodeTokens serializes a token collection.
func EncodeTokens(tokens []TokenRecord) ([]byte, error) {
	stored := make([]storedToken, len(tokens))
	for i, t := range tokens {
		s := storedToken{
			ID:            t.ID,
			Name:          t.Name,
			Description:   t.Description,
			DataType:      t.DataType,
			Price:         t.Price,
			Privacy:       t.Privacy,
			Duration:      t.DurationDays,
			Owner:         t.Owner.String(),
			Created:       t.CreatedAt.UTC().Format(time.RFC3339Nano),
			TotalEarnings: t.TotalEarnings,
			UsageCount:    t.UsageCount,
		}
		if t.Mint != nil {
			s.Mint = t.Mint.String()
		}
		stored[i] = s
	}

	blob, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encoding tokens: %w", err)
	}
	return blob, nil
}

// DecodeTokens parses a blob written by EncodeTokens for owner. Any
// malformed field or record that breaks a TokenRecord invariant makes the
// whole blob invalid; the error wraps ErrCorruptBlob.
func DecodeTokens(blob []byte, owner solana.PublicKey) ([]TokenRecord, error) {
	var stored []storedToken
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}

	tokens := make([]TokenRecord, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for i, s := range stored {
		t, err := s.record()
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptBlob, i, err)
		}
		if !t.Owner.Equals(owner) {
			return nil, fmt.Errorf("%w: record %d: owner %s does not match %s", ErrCorruptBlob, i, t.Owner, owner)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate token id %s", ErrCorruptBlob, t.ID)
		}
		seen[t.ID] = true
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// record rebuilds and validates a TokenRecord.
func (s storedToken) record() (TokenRecord, error) {
	if s.ID == "" {
		return TokenRecord{}, fmt.Errorf("missing id")
	}
	if _, ok := LookupDataType(s.DataType); !ok {
		return TokenRecord{}, fmt.Errorf("unknown data type %q", s.DataType)
	}
	if !s.Price.IsPositive() {
		return TokenRecord{}, fmt.Errorf("price %s is not positive", s.Price)
	}
	if s.Duration < MinDurationDays || s.Duration > MaxDurationDays {
		return TokenRecord{}, fmt.Errorf("duration %d out of range", s.Duration)
	}
	if s.TotalEarnings.IsNegative() || s.UsageCount < 0 {
		return TokenRecord{}, fmt.Errorf("negative earnings or usage")
	}

	owner, err := solana.PublicKeyFromBase58(s.Owner)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("parsing owner: %v", err)
	}

	var mint *solana.PublicKey
	if s.Mint != "" {
		m, err := solana.PublicKeyFromBase58(s.Mint)
		if err != nil {
			return TokenRecord{}, fmt.Errorf("parsing mint: %v", err)
		}
		mint = &m
	}

	created, err := time.Parse(time.RFC3339Nano, s.Created)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("parsing created: %v", err)
	}

	return TokenRecord{
		ID:            s.ID,
		Name:          s.Name,
		Description:   s.Description,
		DataType:      s.DataType,
		Price:         s.Price,
		Privacy:       s.Privacy,
		DurationDays:  s.Duration,
		Owner:         owner,
		Mint:          mint,
		CreatedAt:     created.UTC(),
		TotalEarnings: s.TotalEarnings,
		UsageCount:    s.UsageCount,
	}, nil
}
