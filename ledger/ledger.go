package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/marginledger/id"
	"github.com/rustyeddy/marginledger/market"
	"github.com/rustyeddy/marginledger/risk"
	"github.com/shopspring/decimal"
)

// Options fixes the behaviour of a ledger for its lifetime.
type Options struct {
	// Registry resolves contract specs; nil means market.Default().
	Registry *market.Registry
	// NegativeBalanceProtection resets a balance left negative by a
	// liquidation to zero and reports the absorbed amount.
	NegativeBalanceProtection bool
}

// Ledger is the state of one account. The zero value is an empty account on
// the default registry.
type Ledger struct {
	opts      Options
	balance   decimal.Decimal
	account   Account
	positions []Position
	history   []HistoryRecord
	pending   []PendingOrder
}

// New returns an empty ledger funded with balance.
func New(balance decimal.Decimal, opts Options) Ledger {
	return Ledger{
		opts:    opts,
		balance: balance,
		account: Recompute(balance, nil),
	}
}

func (l Ledger) Options() Options { return l.opts }

func (l Ledger) Account() Account { return l.account }

// Positions returns the open positions in the order they were opened.
func (l Ledger) Positions() []Position {
	return append([]Position(nil), l.positions...)
}

func (l Ledger) Position(positionID string) (Position, bool) {
	i := l.indexOf(positionID)
	if i < 0 {
		return Position{}, false
	}
	return l.positions[i], true
}

// History returns closed trades oldest first.
func (l Ledger) History() []HistoryRecord {
	return append([]HistoryRecord(nil), l.history...)
}

func (l Ledger) PendingOrders() []PendingOrder {
	return append([]PendingOrder(nil), l.pending...)
}

func (l Ledger) indexOf(positionID string) int {
	for i, p := range l.positions {
		if p.ID == positionID {
			return i
		}
	}
	return -1
}

// with installs a new balance and position set and recomputes the account.
// Slices passed in must not share backing arrays with l.
func (l Ledger) with(balance decimal.Decimal, positions []Position, history []HistoryRecord) Ledger {
	l.balance = balance
	l.positions = positions
	l.history = history
	l.account = Recompute(balance, positions)
	return l
}

// ApplyTick revalues every open position on symbol at the side-correct price
// of q. Positions on other symbols keep their last valuation. An unusable
// quote leaves the ledger unchanged and returns ErrPriceUnavailable; changed
// is false when no position was on symbol.
func (l Ledger) ApplyTick(symbol string, q market.Quote) (next Ledger, changed bool, err error) {
	if !q.Valid() {
		return l, false, fmt.Errorf("tick %s bid=%s ask=%s: %w", symbol, q.Bid, q.Ask, ErrPriceUnavailable)
	}

	sym := market.Normalize(symbol)
	reg := l.registry()

	var positions []Position
	for i, p := range l.positions {
		if p.Symbol != sym {
			continue
		}
		if positions == nil {
			positions = append([]Position(nil), l.positions...)
		}
		mark := risk.MarkPrice(p.Side, q)
		p.MarkPrice = mark
		p.UnrealizedPnL = risk.PnL(p.Side, p.EntryPrice, mark, p.Lot, reg.Lookup(p.Symbol))
		positions[i] = p
	}
	if positions == nil {
		return l, false, nil
	}
	return l.with(l.balance, positions, l.history), true, nil
}

// OpenRequest is a market order that fills at Price.
type OpenRequest struct {
	Symbol string
	Side   market.Side
	Lot    decimal.Decimal
	Price  decimal.Decimal
	// Leverage of zero selects the symbol default.
	Leverage   decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
}

// ValidateStops checks SL/TP ordering: a BUY needs SL below and TP above
// entry, a SELL the reverse.
func ValidateStops(side market.Side, entry decimal.Decimal, sl, tp decimal.NullDecimal) error {
	if sl.Valid {
		if !sl.Decimal.IsPositive() {
			return reject(ErrInvalidStopLevel, "stop_loss", "must be positive, got %s", sl.Decimal)
		}
		if side == market.Buy && sl.Decimal.GreaterThanOrEqual(entry) {
			return reject(ErrInvalidStopLevel, "stop_loss", "%s must be below entry %s for BUY", sl.Decimal, entry)
		}
		if side == market.Sell && sl.Decimal.LessThanOrEqual(entry) {
			return reject(ErrInvalidStopLevel, "stop_loss", "%s must be above entry %s for SELL", sl.Decimal, entry)
		}
	}
	if tp.Valid {
		if !tp.Decimal.IsPositive() {
			return reject(ErrInvalidStopLevel, "take_profit", "must be positive, got %s", tp.Decimal)
		}
		if side == market.Buy && tp.Decimal.LessThanOrEqual(entry) {
			return reject(ErrInvalidStopLevel, "take_profit", "%s must be above entry %s for BUY", tp.Decimal, entry)
		}
		if side == market.Sell && tp.Decimal.GreaterThanOrEqual(entry) {
			return reject(ErrInvalidStopLevel, "take_profit", "%s must be below entry %s for SELL", tp.Decimal, entry)
		}
	}
	return nil
}

func validateOrder(side market.Side, lot, price decimal.Decimal) error {
	if !side.Valid() {
		return reject(ErrInvalidSide, "side", "%q is not BUY or SELL", side)
	}
	if !lot.IsPositive() {
		return reject(ErrInvalidLot, "lot", "must be positive, got %s", lot)
	}
	if !price.IsPositive() {
		return reject(ErrInvalidPrice, "price", "must be positive, got %s", price)
	}
	return nil
}

// OpenMarketOrder opens a position at req.Price and charges fee against the
// balance. The order is refused with ErrInsufficientMargin when free margin
// does not cover the required margin plus the fee.
func (l Ledger) OpenMarketOrder(req OpenRequest, fee decimal.Decimal, now time.Time) (Ledger, Position, []Effect, error) {
	if err := validateOrder(req.Side, req.Lot, req.Price); err != nil {
		return l, Position{}, nil, err
	}
	if err := ValidateStops(req.Side, req.Price, req.StopLoss, req.TakeProfit); err != nil {
		return l, Position{}, nil, err
	}
	if fee.IsNegative() {
		fee = decimal.Zero
	}

	spec := l.registry().Lookup(req.Symbol)
	margin := risk.RequiredMargin(spec, req.Lot, req.Price, req.Leverage)
	if risk.IsUnbounded(margin) {
		return l, Position{}, nil, reject(ErrInsufficientMargin, "leverage", "no positive leverage for %s", spec.Code)
	}

	need := margin.Add(fee)
	if l.account.FreeMargin.LessThan(need) {
		return l, Position{}, nil, reject(ErrInsufficientMargin, "",
			"free margin %s < required %s (margin %s + fee %s)", l.account.FreeMargin, need, margin, fee)
	}

	p := Position{
		ID:            id.At(now),
		Symbol:        spec.Code,
		Side:          req.Side,
		Lot:           req.Lot,
		EntryPrice:    req.Price,
		Leverage:      risk.EffectiveLeverage(spec, req.Leverage),
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		OpenTime:      now,
		Margin:        margin,
		Commission:    fee,
		MarkPrice:     req.Price,
		UnrealizedPnL: decimal.Zero,
	}

	positions := make([]Position, len(l.positions), len(l.positions)+1)
	copy(positions, l.positions)
	positions = append(positions, p)

	next := l.with(l.balance.Sub(fee), positions, l.history)
	return next, p, createEffects(p), nil
}

// settle values p at exit and returns the history record for it.
func (l Ledger) settle(p Position, exit decimal.Decimal, now time.Time, reason CloseReason) HistoryRecord {
	realized := risk.PnL(p.Side, p.EntryPrice, exit, p.Lot, l.registry().Lookup(p.Symbol))
	return HistoryRecord{
		ID:          id.At(now),
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Lot:         p.Lot,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   exit,
		RealizedPnL: realized,
		Commission:  p.Commission,
		OpenTime:    p.OpenTime,
		CloseTime:   now,
		Reason:      reason,
	}
}

// Close closes one position at the side-correct price of q: BUY at the bid,
// SELL at the ask. The realized profit is added to the balance, the margin is
// released and the account is recomputed from the remaining positions.
func (l Ledger) Close(positionID string, q market.Quote, now time.Time, reason CloseReason) (Ledger, HistoryRecord, []Effect, error) {
	i := l.indexOf(positionID)
	if i < 0 {
		return l, HistoryRecord{}, nil, fmt.Errorf("close %s: %w", positionID, ErrPositionNotFound)
	}
	p := l.positions[i]
	if !q.Valid() {
		return l, HistoryRecord{}, nil, fmt.Errorf("close %s on %s: %w", positionID, p.Symbol, ErrPriceUnavailable)
	}
	if reason == "" {
		reason = ReasonManual
	}

	h := l.settle(p, risk.MarkPrice(p.Side, q), now, reason)

	positions := make([]Position, 0, len(l.positions)-1)
	positions = append(positions, l.positions[:i]...)
	positions = append(positions, l.positions[i+1:]...)

	next := l.with(l.balance.Add(h.RealizedPnL), positions, appendHistory(l.history, h))
	return next, h, closeEffects(h), nil
}

// CloseAll closes every position matching filter, judged on its unrealized
// profit at the time of the call. quotes is keyed by symbol; a selected
// position without a usable quote fails the whole call with
// ErrPriceUnavailable and nothing is closed. The balance delta of all closes
// is applied in one step.
func (l Ledger) CloseAll(filter CloseFilter, quotes map[string]market.Quote, now time.Time) (Ledger, []HistoryRecord, []Effect, error) {
	var (
		keep     []Position
		selected []Position
	)
	for _, p := range l.positions {
		if filter.match(p) {
			selected = append(selected, p)
		} else {
			keep = append(keep, p)
		}
	}
	if len(selected) == 0 {
		return l, nil, nil, nil
	}

	for _, p := range selected {
		if q, ok := lookupQuote(quotes, p.Symbol); !ok || !q.Valid() {
			return l, nil, nil, fmt.Errorf("close all: %s: %w", p.Symbol, ErrPriceUnavailable)
		}
	}

	delta := decimal.Zero
	closed := make([]HistoryRecord, 0, len(selected))
	var effects []Effect
	for _, p := range selected {
		q, _ := lookupQuote(quotes, p.Symbol)
		h := l.settle(p, risk.MarkPrice(p.Side, q), now, ReasonCloseAll)
		delta = delta.Add(h.RealizedPnL)
		closed = append(closed, h)
		effects = append(effects, closeEffects(h)...)
	}

	next := l.with(l.balance.Add(delta), keep, appendHistory(l.history, closed...))
	return next, closed, effects, nil
}

// Liquidation reports a forced close of every open position.
type Liquidation struct {
	Trigger risk.Decision   `json:"trigger"`
	Closed  []HistoryRecord `json:"closed"`
	// Deficit is the negative balance absorbed by negative balance
	// protection, zero otherwise.
	Deficit decimal.Decimal `json:"deficit"`
	Account Account         `json:"account"`
}

// Liquidate force-closes every open position in open order, each at the
// side-correct price of its symbol's quote or, lacking one, at the price it
// was last marked at. The account is recomputed once after all closes.
func (l Ledger) Liquidate(trigger risk.Decision, quotes map[string]market.Quote, now time.Time) (Ledger, Liquidation, []Effect) {
	liq := Liquidation{Trigger: trigger, Deficit: decimal.Zero}
	if len(l.positions) == 0 {
		liq.Account = l.account
		return l, liq, nil
	}

	balance := l.balance
	var effects []Effect
	for _, p := range l.positions {
		exit := p.MarkPrice
		if q, ok := lookupQuote(quotes, p.Symbol); ok && q.Valid() {
			exit = risk.MarkPrice(p.Side, q)
		}
		h := l.settle(p, exit, now, ReasonLiquidation)
		balance = balance.Add(h.RealizedPnL)
		liq.Closed = append(liq.Closed, h)
		effects = append(effects, closeEffects(h)...)
	}

	if l.opts.NegativeBalanceProtection && balance.IsNegative() {
		liq.Deficit = balance.Neg()
		balance = decimal.Zero
	}

	next := l.with(balance, nil, appendHistory(l.history, liq.Closed...))
	liq.Account = next.account
	return next, liq, effects
}

func appendHistory(history []HistoryRecord, recs ...HistoryRecord) []HistoryRecord {
	out := make([]HistoryRecord, 0, len(history)+len(recs))
	out = append(out, history...)
	return append(out, recs...)
}

func lookupQuote(quotes map[string]market.Quote, symbol string) (market.Quote, bool) {
	if q, ok := quotes[symbol]; ok {
		return q, true
	}
	q, ok := quotes[market.Normalize(symbol)]
	return q, ok
}
