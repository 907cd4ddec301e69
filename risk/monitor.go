package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultMaxLeverage is the account leverage ceiling when none is configured.
var DefaultMaxLeverage = decimal.NewFromInt(1000)

// Reason explains why the monitor tripped.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonEquityDepleted   Reason = "EQUITY_DEPLETED"
	ReasonLeverageExceeded Reason = "LEVERAGE_EXCEEDED"
)

// Decision is the outcome of one Monitor evaluation.
type Decision struct {
	Liquidate bool
	Reason    Reason
	// Leverage is marginUsed / equity, zero when equity is not positive.
	Leverage decimal.Decimal
}

func (d Decision) String() string {
	if !d.Liquidate {
		return fmt.Sprintf("ok (leverage %s)", d.Leverage.StringFixed(2))
	}
	return fmt.Sprintf("liquidate: %s (leverage %s)", d.Reason, d.Leverage.StringFixed(2))
}

// Monitor is the margin-call circuit breaker. It is evaluated after every
// tick-driven recompute of the account.
type Monitor struct {
	MaxLeverage decimal.Decimal
}

// NewMonitor returns a monitor with the given ceiling; a non-positive value
// selects DefaultMaxLeverage.
func NewMonitor(maxLeverage decimal.Decimal) Monitor {
	if !maxLeverage.IsPositive() {
		maxLeverage = DefaultMaxLeverage
	}
	return Monitor{MaxLeverage: maxLeverage}
}

// Evaluate trips when equity <= 0 or marginUsed / equity exceeds the ceiling.
func (m Monitor) Evaluate(equity, marginUsed decimal.Decimal) Decision {
	if !equity.IsPositive() {
		return Decision{Liquidate: true, Reason: ReasonEquityDepleted}
	}

	max := m.MaxLeverage
	if !max.IsPositive() {
		max = DefaultMaxLeverage
	}

	lev := marginUsed.Div(equity)
	if lev.GreaterThan(max) {
		return Decision{Liquidate: true, Reason: ReasonLeverageExceeded, Leverage: lev}
	}
	return Decision{Leverage: lev}
}
