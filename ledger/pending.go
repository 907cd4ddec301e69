package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/marginledger/id"
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// PendingRequest places a LIMIT or STOP order at Price.
type PendingRequest struct {
	Symbol     string
	Side       market.Side
	Type       OrderType
	Lot        decimal.Decimal
	Price      decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
}

// PlacePending records a resting order. No margin is reserved and nothing
// triggers it; it stays PENDING until cancelled.
func (l Ledger) PlacePending(req PendingRequest, now time.Time) (Ledger, PendingOrder, error) {
	if req.Type != Limit && req.Type != Stop {
		return l, PendingOrder{}, reject(ErrInvalidOrderType, "type", "%q is not LIMIT or STOP", req.Type)
	}
	if err := validateOrder(req.Side, req.Lot, req.Price); err != nil {
		return l, PendingOrder{}, err
	}
	if err := ValidateStops(req.Side, req.Price, req.StopLoss, req.TakeProfit); err != nil {
		return l, PendingOrder{}, err
	}

	o := PendingOrder{
		ID:         id.At(now),
		Symbol:     l.registry().Lookup(req.Symbol).Code,
		Side:       req.Side,
		Type:       req.Type,
		Lot:        req.Lot,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Status:     Pending,
		CreatedAt:  now,
	}

	pending := make([]PendingOrder, 0, len(l.pending)+1)
	pending = append(pending, l.pending...)
	l.pending = append(pending, o)
	return l, o, nil
}

// CancelPending marks a PENDING order CANCELLED. The order stays listed.
func (l Ledger) CancelPending(orderID string) (Ledger, PendingOrder, error) {
	for i, o := range l.pending {
		if o.ID != orderID {
			continue
		}
		if o.Status != Pending {
			return l, o, fmt.Errorf("cancel %s (%s): %w", orderID, o.Status, ErrOrderNotPending)
		}
		o.Status = Cancelled
		pending := append([]PendingOrder(nil), l.pending...)
		pending[i] = o
		l.pending = pending
		return l, o, nil
	}
	return l, PendingOrder{}, fmt.Errorf("cancel %s: %w", orderID, ErrOrderNotFound)
}
