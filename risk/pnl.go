package risk

import (
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// PnL is the profit of a position of lot opened at entry and valued at
// current. current must come from MarkPrice; valuing a BUY at the ask or a
// SELL at the bid overstates the result by the spread.
func PnL(side market.Side, entry, current, lot decimal.Decimal, spec market.SymbolSpec) decimal.Decimal {
	var diff decimal.Decimal
	switch side {
	case market.Buy:
		diff = current.Sub(entry)
	case market.Sell:
		diff = entry.Sub(current)
	default:
		return decimal.Zero
	}
	return diff.Mul(lot).Mul(spec.ContractSize)
}

// MarkPrice is the price an open position can be closed at right now:
// longs sell on the bid, shorts buy back on the ask.
func MarkPrice(side market.Side, q market.Quote) decimal.Decimal {
	if side == market.Sell {
		return q.Ask
	}
	return q.Bid
}

// FillPrice is the price a market order opens at: buys lift the ask, sells
// hit the bid.
func FillPrice(side market.Side, q market.Quote) decimal.Decimal {
	if side == market.Sell {
		return q.Bid
	}
	return q.Ask
}
