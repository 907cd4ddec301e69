package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMonitorEvaluate(t *testing.T) {
	t.Parallel()

	m := NewMonitor(d("100"))

	tests := []struct {
		name   string
		equity string
		used   string
		trip   bool
		reason Reason
	}{
		{"healthy", "1000", "100", false, ReasonNone},
		{"at ceiling", "10", "1000", false, ReasonNone},
		{"over ceiling", "9.99", "1000", true, ReasonLeverageExceeded},
		{"zero equity", "0", "1000", true, ReasonEquityDepleted},
		{"negative equity", "-5", "0", true, ReasonEquityDepleted},
		{"no positions", "1000", "0", false, ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Evaluate(d(tt.equity), d(tt.used))
			assert.Equal(t, tt.trip, got.Liquidate)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestNewMonitorDefaults(t *testing.T) {
	t.Parallel()

	assert.True(t, NewMonitor(decimal.Zero).MaxLeverage.Equal(DefaultMaxLeverage))
	assert.True(t, NewMonitor(d("-3")).MaxLeverage.Equal(DefaultMaxLeverage))

	var zero Monitor
	got := zero.Evaluate(d("1"), d("1001"))
	assert.True(t, got.Liquidate)
	assert.Equal(t, ReasonLeverageExceeded, got.Reason)
	assert.True(t, got.Leverage.Equal(d("1001")))
}

func TestDecisionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok (leverage 0.10)", NewMonitor(d("10")).Evaluate(d("1000"), d("100")).String())
	assert.Contains(t, NewMonitor(d("10")).Evaluate(d("0"), d("100")).String(), "EQUITY_DEPLETED")
}
