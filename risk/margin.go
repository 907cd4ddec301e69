// Package risk implements the account-independent trading formulas: required
// margin, profit and loss with quote-side selection, and the margin-call
// circuit breaker.
package risk

import (
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// UnboundedMargin is what RequiredMargin returns when no leverage applies.
// It exceeds any balance the ledger can hold, so the free-margin check always
// rejects the order.
var UnboundedMargin = decimal.New(1, 30)

// IsUnbounded reports whether m is the unbounded sentinel.
func IsUnbounded(m decimal.Decimal) bool {
	return m.GreaterThanOrEqual(UnboundedMargin)
}

// EffectiveLeverage is leverage when non-zero, else the symbol default.
func EffectiveLeverage(spec market.SymbolSpec, leverage decimal.Decimal) decimal.Decimal {
	if leverage.IsZero() {
		return spec.DefaultLeverage
	}
	return leverage
}

// RequiredMargin is lot × contractSize × price / effectiveLeverage.
//
// A non-positive lot or price yields zero; callers reject such orders before
// asking. A non-positive effective leverage yields UnboundedMargin.
func RequiredMargin(spec market.SymbolSpec, lot, price, leverage decimal.Decimal) decimal.Decimal {
	if !lot.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	lev := EffectiveLeverage(spec, leverage)
	if !lev.IsPositive() {
		return UnboundedMargin
	}
	return Notional(spec, lot, price).Div(lev)
}

// Notional is the exposure of lot at price: lot × contractSize × price.
func Notional(spec market.SymbolSpec, lot, price decimal.Decimal) decimal.Decimal {
	return lot.Mul(spec.ContractSize).Mul(price)
}
