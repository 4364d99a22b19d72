package dtk

import "github.com/shopspring/decimal"

var (
	demandStep      = decimal.RequireFromString("0.1")
	minDemandFactor = decimal.RequireFromString("0.5")
	maxDemandFactor = decimal.NewFromInt(3)

	privacyMultipliers = map[PrivacyTier]decimal.Decimal{
		PrivacyLow:    decimal.NewFromInt(1),
		PrivacyMedium: decimal.RequireFromString("1.5"),
		PrivacyHigh:   decimal.RequireFromString("2.5"),
	}
)

// NeutralDemand is the demand signal that leaves the price unchanged.
var NeutralDemand = decimal.NewFromInt(1)

// PrivacyMultiplier returns the price multiplier for a privacy tier.
// Unrecognized tiers price like PrivacyLow.
func PrivacyMultiplier(tier PrivacyTier) decimal.Decimal {
	if m, ok := privacyMultipliers[tier]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// DemandFactor dampens a demand signal to ±10% per unit and bounds the
// result to [0.5, 3.0].
func DemandFactor(signal decimal.Decimal) decimal.Decimal {
	f := decimal.NewFromInt(1).Add(signal.Sub(NeutralDemand).Mul(demandStep))
	if f.LessThan(minDemandFactor) {
		return minDemandFactor
	}
	if f.GreaterThan(maxDemandFactor) {
		return maxDemandFactor
	}
	return f
}

// Price computes the access price of a data token:
// basePrice * PrivacyMultiplier(tier) * DemandFactor(demandSignal).
func Price(basePrice decimal.Decimal, tier PrivacyTier, demandSignal decimal.Decimal) decimal.Decimal {
	return basePrice.Mul(PrivacyMultiplier(tier)).Mul(DemandFactor(demandSignal))
}

// DefaultPrice is Price at neutral demand.
func DefaultPrice(basePrice decimal.Decimal, tier PrivacyTier) decimal.Decimal {
	return Price(basePrice, tier, NeutralDemand)
}
