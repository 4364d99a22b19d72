package dtk

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Validity bounds for a token's access window, in days.
const (
	MinDurationDays     = 1
	MaxDurationDays     = 365
	DefaultDurationDays = 30
)

const day = 24 * time.Hour

// TokenRecord is one minted data token owned by a wallet.
// Price, Privacy, DurationDays, Owner and CreatedAt are fixed at creation;
// only RecordUsage changes TotalEarnings and UsageCount.
type TokenRecord struct {
	ID            string
	Name          string
	Description   string
	DataType      string
	Price         decimal.Decimal
	Privacy       PrivacyTier
	DurationDays  int
	Owner         solana.PublicKey
	Mint          *solana.PublicKey
	CreatedAt     time.Time
	TotalEarnings decimal.Decimal
	UsageCount    int
}

// RemainingDays returns the whole days of validity left at now, never less
// than zero. A CreatedAt in the future counts as no time elapsed.
func (t TokenRecord) RemainingDays(now time.Time) int {
	elapsed := now.Sub(t.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	left := t.DurationDays - int(elapsed/day)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether no validity is left. Expiry is informational;
// the ledger still accepts usage for expired tokens.
func (t TokenRecord) Expired(now time.Time) bool {
	return t.RemainingDays(now) == 0
}

// RemainingFraction is RemainingDays as a share of the full duration, in [0, 1].
func (t TokenRecord) RemainingFraction(now time.Time) float64 {
	if t.DurationDays <= 0 {
		return 0
	}
	return float64(t.RemainingDays(now)) / float64(t.DurationDays)
}

// ClampDuration forces a requested duration into [MinDurationDays, MaxDurationDays].
func ClampDuration(days int) int {
	switch {
	case days < MinDurationDays:
		return MinDurationDays
	case days > MaxDurationDays:
		return MaxDurationDays
	default:
		return days
	}
}

// Stats summarizes a token collection.
type Stats struct {
	TotalTokens   int
	TotalEarnings decimal.Decimal
	TotalUsage    int
	AveragePrice  decimal.Decimal
}

// Aggregate computes Stats over tokens. AveragePrice is zero for an empty set.
func Aggregate(tokens []TokenRecord) Stats {
	stats := Stats{
		TotalTokens:   len(tokens),
		TotalEarnings: decimal.Zero,
		AveragePrice:  decimal.Zero,
	}
	if len(tokens) == 0 {
		return stats
	}

	priceSum := decimal.Zero
	for _, t := range tokens {
		stats.TotalEarnings = stats.TotalEarnings.Add(t.TotalEarnings)
		stats.TotalUsage += t.UsageCount
		priceSum = priceSum.Add(t.Price)
	}
	stats.AveragePrice = priceSum.Div(decimal.NewFromInt(int64(len(tokens))))
	return stats
}
