// Package market holds the static contract table and the quote types the
// ledger consumes.
package market

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Class groups instruments that share contract conventions.
type Class string

const (
	ClassForex   Class = "forex"
	ClassMetal   Class = "metal"
	ClassIndex   Class = "index"
	ClassCrypto  Class = "crypto"
	ClassUnknown Class = "unknown"
)

// SymbolSpec is the contract specification of one tradable instrument.
type SymbolSpec struct {
	Code            string          `json:"code"`
	Digits          int32           `json:"digits"`
	ContractSize    decimal.Decimal `json:"contract_size"`
	DefaultLeverage decimal.Decimal `json:"default_leverage"`
	Class           Class           `json:"class"`
}

// DefaultSpec is returned for any code the registry does not know.
var DefaultSpec = SymbolSpec{
	Digits:          5,
	ContractSize:    decimal.NewFromInt(100000),
	DefaultLeverage: decimal.NewFromInt(100),
	Class:           ClassUnknown,
}

func spec(code string, class Class, contract int64, digits int32, leverage int64) SymbolSpec {
	return SymbolSpec{
		Code:            code,
		Digits:          digits,
		ContractSize:    decimal.NewFromInt(contract),
		DefaultLeverage: decimal.NewFromInt(leverage),
		Class:           class,
	}
}

var builtin = []SymbolSpec{
	spec("EURUSD", ClassForex, 100000, 5, 100),
	spec("GBPUSD", ClassForex, 100000, 5, 100),
	spec("AUDUSD", ClassForex, 100000, 5, 100),
	spec("NZDUSD", ClassForex, 100000, 5, 100),
	spec("USDCAD", ClassForex, 100000, 5, 100),
	spec("USDCHF", ClassForex, 100000, 5, 100),
	spec("EURGBP", ClassForex, 100000, 5, 100),
	spec("USDJPY", ClassForex, 100000, 3, 100),
	spec("EURJPY", ClassForex, 100000, 3, 100),
	spec("GBPJPY", ClassForex, 100000, 3, 100),

	spec("XAUUSD", ClassMetal, 100, 2, 50),
	spec("XAGUSD", ClassMetal, 5000, 3, 50),

	spec("US30", ClassIndex, 1, 1, 20),
	spec("NAS100", ClassIndex, 1, 1, 20),
	spec("SPX500", ClassIndex, 1, 1, 20),
	spec("GER40", ClassIndex, 1, 1, 20),

	spec("BTCUSD", ClassCrypto, 1, 2, 10),
	spec("ETHUSD", ClassCrypto, 1, 2, 10),
	spec("SOLUSD", ClassCrypto, 1, 3, 10),
	// Quoted per coin, traded in blocks of 1000.
	spec("XRPUSD", ClassCrypto, 1000, 5, 10),
}

// Registry resolves symbol codes to contract specs. A Registry is never
// mutated after construction; With returns an extended copy.
type Registry struct {
	specs map[string]SymbolSpec
}

// NewRegistry builds a registry holding the built-in table plus specs.
// Later entries override earlier ones with the same normalized code.
func NewRegistry(specs ...SymbolSpec) *Registry {
	r := &Registry{specs: make(map[string]SymbolSpec, len(builtin)+len(specs))}
	for _, s := range builtin {
		r.add(s)
	}
	for _, s := range specs {
		r.add(s)
	}
	return r
}

func (r *Registry) add(s SymbolSpec) {
	s.Code = Normalize(s.Code)
	if s.Class == "" {
		s.Class = ClassUnknown
	}
	r.specs[s.Code] = s
}

// With returns a copy of r extended with specs.
func (r *Registry) With(specs ...SymbolSpec) *Registry {
	out := &Registry{specs: make(map[string]SymbolSpec, len(r.specs)+len(specs))}
	for k, v := range r.specs {
		out.specs[k] = v
	}
	for _, s := range specs {
		out.add(s)
	}
	return out
}

// Lookup never fails: unknown codes resolve to DefaultSpec carrying the
// normalized code.
func (r *Registry) Lookup(code string) SymbolSpec {
	norm := Normalize(code)
	if r != nil {
		if s, ok := r.specs[norm]; ok {
			return s
		}
	}
	s := DefaultSpec
	s.Code = norm
	return s
}

// Known reports whether code has an explicit entry.
func (r *Registry) Known(code string) bool {
	if r == nil {
		return false
	}
	_, ok := r.specs[Normalize(code)]
	return ok
}

// Specs lists every explicit entry sorted by code.
func (r *Registry) Specs() []SymbolSpec {
	out := make([]SymbolSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

var defaultRegistry = NewRegistry()

// Default returns the registry built from the built-in table only.
func Default() *Registry { return defaultRegistry }

// Lookup resolves code against the built-in table.
func Lookup(code string) SymbolSpec { return defaultRegistry.Lookup(code) }

var separators = strings.NewReplacer("/", "", "_", "", "-", "")

// Normalize upper-cases a code and strips the separators feeds use, so
// "eur/usd", "EUR_USD" and "EURUSD" are the same symbol.
func Normalize(code string) string {
	return separators.Replace(strings.ToUpper(strings.TrimSpace(code)))
}
