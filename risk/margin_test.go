package risk

import (
	"testing"

	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRequiredMargin(t *testing.T) {
	t.Parallel()

	eurusd := market.Lookup("EURUSD")
	xau := market.Lookup("XAUUSD")
	us30 := market.Lookup("US30")

	tests := []struct {
		name     string
		spec     market.SymbolSpec
		lot      string
		price    string
		leverage string
		want     string
	}{
		{"standard forex lot", eurusd, "1", "1.1000", "100", "1100"},
		{"symbol default leverage", eurusd, "1", "1.1000", "0", "1100"},
		{"mini lot high leverage", eurusd, "0.1", "1.2500", "500", "25"},
		{"gold default 50", xau, "2", "2000", "0", "8000"},
		{"index", us30, "3", "39000", "20", "5850"},
		{"zero lot", eurusd, "0", "1.1", "100", "0"},
		{"negative lot", eurusd, "-1", "1.1", "100", "0"},
		{"zero price", eurusd, "1", "0", "100", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequiredMargin(tt.spec, d(tt.lot), d(tt.price), d(tt.leverage))
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestRequiredMarginUnbounded(t *testing.T) {
	t.Parallel()

	eurusd := market.Lookup("EURUSD")
	m := RequiredMargin(eurusd, d("1"), d("1.1"), d("-10"))
	assert.True(t, IsUnbounded(m))

	broken := eurusd
	broken.DefaultLeverage = decimal.Zero
	assert.True(t, IsUnbounded(RequiredMargin(broken, d("1"), d("1.1"), decimal.Zero)))

	assert.False(t, IsUnbounded(RequiredMargin(eurusd, d("1"), d("1.1"), d("100"))))
}

func TestEffectiveLeverage(t *testing.T) {
	t.Parallel()

	s := market.Lookup("XAUUSD")
	assert.True(t, EffectiveLeverage(s, decimal.Zero).Equal(d("50")))
	assert.True(t, EffectiveLeverage(s, d("10")).Equal(d("10")))
}
