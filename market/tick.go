package market

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned by PriceStore.Get for a symbol that has never ticked.
var ErrNoQuote = errors.New("price not found")

// Quote is a two-sided price.
type Quote struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
}

// Valid reports whether both sides are positive and the book is not crossed.
func (q Quote) Valid() bool {
	return q.Bid.IsPositive() && q.Ask.IsPositive() && q.Ask.GreaterThanOrEqual(q.Bid)
}

func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// Tick is one push event from a price feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Digits int32     `json:"digits"`
	Time   time.Time `json:"time"`
	Quote
}

func (t Tick) String() string {
	return fmt.Sprintf("%s %s/%s @ %s", t.Symbol, t.Bid, t.Ask, t.Time.Format(time.RFC3339Nano))
}

// PriceStore keeps the latest tick per normalized symbol.
type PriceStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewPriceStore() *PriceStore {
	return &PriceStore{ticks: make(map[string]Tick)}
}

func (ps *PriceStore) Set(t Tick) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.ticks[Normalize(t.Symbol)] = t
}

func (ps *PriceStore) Get(symbol string) (Tick, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	t, ok := ps.ticks[Normalize(symbol)]
	if !ok {
		return Tick{}, fmt.Errorf("%s: %w", symbol, ErrNoQuote)
	}
	return t, nil
}

// Quotes copies the latest quote of every symbol.
func (ps *PriceStore) Quotes() map[string]Quote {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]Quote, len(ps.ticks))
	for k, t := range ps.ticks {
		out[k] = t.Quote
	}
	return out
}
