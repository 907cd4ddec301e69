// Package ledger holds the positions, pending orders, trade history and wallet
// of one trading account, and the transitions that move it between states.
//
// A Ledger is a value. Every transition returns the next Ledger together with
// the persistence effects it implies and never touches the receiver, so a
// rejected operation leaves the caller's state exactly as it was.
package ledger

import (
	"time"

	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// Position is an open leveraged exposure.
type Position struct {
	ID         string              `json:"id"`
	Symbol     string              `json:"symbol"`
	Side       market.Side         `json:"side"`
	Lot        decimal.Decimal     `json:"lot"`
	EntryPrice decimal.Decimal     `json:"entry_price"`
	Leverage   decimal.Decimal     `json:"leverage"`
	StopLoss   decimal.NullDecimal `json:"stop_loss"`
	TakeProfit decimal.NullDecimal `json:"take_profit"`
	OpenTime   time.Time           `json:"open_time"`

	// Margin is the required margin reserved at open.
	Margin decimal.Decimal `json:"margin"`
	// Commission is the fee charged when the position was opened.
	Commission decimal.Decimal `json:"commission"`
	// MarkPrice is the side-correct price UnrealizedPnL was last computed at.
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// OrderType of a pending order.
type OrderType string

const (
	Limit OrderType = "LIMIT"
	Stop  OrderType = "STOP"
)

// OrderStatus of a pending order. Nothing in the ledger produces Filled yet:
// pending orders are placed and cancelled, never triggered.
type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Filled    OrderStatus = "FILLED"
	Cancelled OrderStatus = "CANCELLED"
)

// PendingOrder is a resting LIMIT or STOP order.
type PendingOrder struct {
	ID         string              `json:"id"`
	Symbol     string              `json:"symbol"`
	Side       market.Side         `json:"side"`
	Type       OrderType           `json:"type"`
	Lot        decimal.Decimal     `json:"lot"`
	Price      decimal.Decimal     `json:"price"`
	StopLoss   decimal.NullDecimal `json:"stop_loss"`
	TakeProfit decimal.NullDecimal `json:"take_profit"`
	Status     OrderStatus         `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
}

// CloseReason records what closed a position.
type CloseReason string

const (
	ReasonManual      CloseReason = "MANUAL"
	ReasonCloseAll    CloseReason = "CLOSE_ALL"
	ReasonLiquidation CloseReason = "LIQUIDATION"
)

// HistoryRecord is a closed trade. Records are appended once per close and
// never modified.
type HistoryRecord struct {
	ID          string          `json:"id"`
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Side        market.Side     `json:"side"`
	Lot         decimal.Decimal `json:"lot"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Commission  decimal.Decimal `json:"commission"`
	OpenTime    time.Time       `json:"open_time"`
	CloseTime   time.Time       `json:"close_time"`
	Reason      CloseReason     `json:"reason"`
}

// Account is the wallet. Equity, MarginUsed and FreeMargin are derived and
// only ever written by Recompute.
type Account struct {
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	MarginUsed decimal.Decimal `json:"margin_used"`
	FreeMargin decimal.Decimal `json:"free_margin"`
}

// CloseFilter selects positions for CloseAll.
type CloseFilter string

const (
	CloseEverything CloseFilter = "all"
	CloseProfitable CloseFilter = "profit"
	CloseLosing     CloseFilter = "loss"
)

// ParseCloseFilter accepts "all", "profit"/"profitable" and "loss"/"losing".
func ParseCloseFilter(s string) (CloseFilter, bool) {
	switch s {
	case "", "all":
		return CloseEverything, true
	case "profit", "profitable":
		return CloseProfitable, true
	case "loss", "losing":
		return CloseLosing, true
	}
	return "", false
}

func (f CloseFilter) match(p Position) bool {
	switch f {
	case CloseProfitable:
		return p.UnrealizedPnL.IsPositive()
	case CloseLosing:
		return p.UnrealizedPnL.IsNegative()
	default:
		return true
	}
}
