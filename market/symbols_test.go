package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLookupKnownSymbols(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     string
		contract int64
		digits   int32
		leverage int64
		class    Class
	}{
		{"EURUSD", 100000, 5, 100, ClassForex},
		{"USDJPY", 100000, 3, 100, ClassForex},
		{"XAUUSD", 100, 2, 50, ClassMetal},
		{"XAGUSD", 5000, 3, 50, ClassMetal},
		{"US30", 1, 1, 20, ClassIndex},
		{"BTCUSD", 1, 2, 10, ClassCrypto},
		{"XRPUSD", 1000, 5, 10, ClassCrypto},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s := Lookup(tt.code)
			assert.Equal(t, tt.code, s.Code)
			assert.True(t, s.ContractSize.Equal(decimal.NewFromInt(tt.contract)))
			assert.Equal(t, tt.digits, s.Digits)
			assert.True(t, s.DefaultLeverage.Equal(decimal.NewFromInt(tt.leverage)))
			assert.Equal(t, tt.class, s.Class)
		})
	}
}

func TestLookupNormalizesCodes(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"eur/usd", "EUR_USD", " eur-usd ", "EURUSD"} {
		assert.Equal(t, "EURUSD", Lookup(code).Code, code)
		assert.True(t, Default().Known(code), code)
	}
}

func TestLookupUnknownFallsBackToDefault(t *testing.T) {
	t.Parallel()

	s := Lookup("zzz/qqq")
	assert.Equal(t, "ZZZQQQ", s.Code)
	assert.True(t, s.ContractSize.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, int32(5), s.Digits)
	assert.True(t, s.DefaultLeverage.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, ClassUnknown, s.Class)
	assert.False(t, Default().Known("ZZZQQQ"))
}

func TestNilRegistryLookup(t *testing.T) {
	t.Parallel()

	var r *Registry
	s := r.Lookup("EURUSD")
	assert.True(t, s.ContractSize.Equal(DefaultSpec.ContractSize))
	assert.False(t, r.Known("EURUSD"))
}

func TestRegistryWithDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	base := NewRegistry()
	ext := base.With(SymbolSpec{
		Code:            "doge/usd",
		Digits:          6,
		ContractSize:    decimal.NewFromInt(10000),
		DefaultLeverage: decimal.NewFromInt(5),
		Class:           ClassCrypto,
	}, SymbolSpec{
		Code:            "EURUSD",
		Digits:          5,
		ContractSize:    decimal.NewFromInt(100000),
		DefaultLeverage: decimal.NewFromInt(30),
	})

	assert.True(t, ext.Known("DOGEUSD"))
	assert.False(t, base.Known("DOGEUSD"))
	assert.True(t, ext.Lookup("EURUSD").DefaultLeverage.Equal(decimal.NewFromInt(30)))
	assert.True(t, base.Lookup("EURUSD").DefaultLeverage.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, ClassUnknown, ext.Lookup("EURUSD").Class)
	assert.Len(t, ext.Specs(), len(base.Specs())+1)
}

func TestSpecsSorted(t *testing.T) {
	t.Parallel()

	specs := Default().Specs()
	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Code, specs[i].Code)
	}
}
