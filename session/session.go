// Package session runs one account's ledger on a single goroutine. Ticks and
// commands are queued on one inbox and applied in arrival order, so the
// ledger is never read or written concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/market"
	"github.com/rustyeddy/marginledger/risk"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoLease is returned by New without a live lease for the account.
	ErrNoLease = errors.New("session needs a live lease for its account")
	// ErrClosed is returned for work submitted after Run has returned.
	ErrClosed = errors.New("session closed")
)

// FeeSchedule supplies the fee charged per opened position.
type FeeSchedule interface {
	Current() decimal.Decimal
}

// Enqueuer accepts persistence effects without blocking.
type Enqueuer interface {
	Enqueue(effects ...ledger.Effect)
}

type Config struct {
	AccountID string
	Balance   decimal.Decimal
	// Leverage applies to orders that do not name one. Zero falls through
	// to the symbol default.
	Leverage decimal.Decimal
	// MaxLeverage is the margin-call ceiling; zero selects
	// risk.DefaultMaxLeverage.
	MaxLeverage               decimal.Decimal
	NegativeBalanceProtection bool
	Registry                  *market.Registry
	// CheckInvariants verifies the accounting identities after every
	// transition and logs any that break.
	CheckInvariants bool
	// Inbox bounds the number of queued ticks and commands.
	Inbox int
}

type Session struct {
	cfg     Config
	lease   *Lease
	fees    FeeSchedule
	out     Enqueuer
	bus     *Bus
	log     zerolog.Logger
	monitor risk.Monitor
	prices  *market.PriceStore
	now     func() time.Time
	// clock is the time of the latest applied tick. Commands are stamped
	// with it so replayed sessions keep to the feed's timeline.
	clock time.Time

	inbox chan func()
	done  chan struct{}

	// state is only touched by the Run goroutine.
	state ledger.Ledger
}

// New builds a session for the account the lease owns. fees and out may be
// nil: no fee is charged and effects are discarded. bus may be nil.
func New(lease *Lease, cfg Config, fees FeeSchedule, out Enqueuer, bus *Bus, log zerolog.Logger) (*Session, error) {
	if !lease.Live() {
		return nil, ErrNoLease
	}
	if cfg.AccountID == "" {
		cfg.AccountID = lease.AccountID()
	}
	if cfg.AccountID != lease.AccountID() {
		return nil, fmt.Errorf("lease is for %q, not %q: %w", lease.AccountID(), cfg.AccountID, ErrNoLease)
	}
	if cfg.Inbox <= 0 {
		cfg.Inbox = 256
	}

	opts := ledger.Options{Registry: cfg.Registry, NegativeBalanceProtection: cfg.NegativeBalanceProtection}
	return &Session{
		cfg:     cfg,
		lease:   lease,
		fees:    fees,
		out:     out,
		bus:     bus,
		log:     log.With().Str("component", "session").Str("account", cfg.AccountID).Logger(),
		monitor: risk.NewMonitor(cfg.MaxLeverage),
		prices:  market.NewPriceStore(),
		now:     func() time.Time { return time.Now().UTC() },
		inbox:   make(chan func(), cfg.Inbox),
		done:    make(chan struct{}),
		state:   ledger.New(cfg.Balance, opts),
	}, nil
}

func (s *Session) AccountID() string { return s.cfg.AccountID }

// Bus returns the bus events are published on, possibly nil.
func (s *Session) Bus() *Bus { return s.bus }

// Run applies queued work until ctx ends or the lease is released.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.log.Info().Str("balance", s.state.Account().Balance.String()).Msg("session started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("session stopped")
			return ctx.Err()
		case job := <-s.inbox:
			if !s.lease.Live() {
				s.log.Warn().Msg("lease released, stopping session")
				return ErrNoLease
			}
			job()
		}
	}
}

// do queues fn on the loop and waits for it. Once queued, fn runs to
// completion even if ctx ends.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.inbox <- job:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (s *Session) fee() decimal.Decimal {
	if s.fees == nil {
		return decimal.Zero
	}
	return s.fees.Current()
}

func (s *Session) enqueue(effects []ledger.Effect) {
	if s.out == nil || len(effects) == 0 {
		return
	}
	s.out.Enqueue(effects...)
}

func (s *Session) publish(t EventType, at time.Time, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{Type: t, Account: s.cfg.AccountID, Time: at, Data: data})
}

func (s *Session) commit(next ledger.Ledger) {
	s.state = next
	if !s.cfg.CheckInvariants {
		return
	}
	if err := s.state.CheckInvariants(); err != nil {
		s.log.Error().Err(err).Msg("accounting invariant broken")
	}
}

// Tick feeds one price update into the session. Unusable quotes are logged
// and dropped. Tick has the shape of feed.TickFunc.
func (s *Session) Tick(ctx context.Context, t market.Tick) error {
	return s.do(ctx, func() { s.applyTick(t) })
}

func (s *Session) applyTick(t market.Tick) {
	t.Symbol = market.Normalize(t.Symbol)
	next, changed, err := s.state.ApplyTick(t.Symbol, t.Quote)
	if err != nil {
		s.log.Debug().Err(err).Str("symbol", t.Symbol).Msg("tick skipped")
		return
	}
	s.prices.Set(t)
	at := s.advance(t.Time)
	if !changed {
		return
	}

	s.commit(next)
	s.log.Debug().Str("symbol", t.Symbol).
		Str("bid", t.Bid.String()).Str("ask", t.Ask.String()).
		Str("equity", s.state.Account().Equity.String()).Msg("tick")
	s.publish(EventAccount, at, s.state.Account())
	s.checkRisk(at)
}

// advance moves the session clock to t, or to the wall clock when the tick
// carries no time. The clock never moves backwards.
func (s *Session) advance(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	if t.After(s.clock) {
		s.clock = t
	}
	return s.clock
}

// stamp is the time commands are recorded at: the latest tick time, or the
// wall clock before any tick has arrived.
func (s *Session) stamp() time.Time {
	if s.clock.IsZero() {
		return s.now()
	}
	return s.clock
}

// checkRisk runs the margin-call monitor. It is only called after a
// tick-driven recompute.
func (s *Session) checkRisk(at time.Time) {
	if len(s.state.Positions()) == 0 {
		return
	}
	acct := s.state.Account()
	d := s.monitor.Evaluate(acct.Equity, acct.MarginUsed)
	if !d.Liquidate {
		return
	}

	next, liq, effects := s.state.Liquidate(d, s.prices.Quotes(), at)
	s.commit(next)
	s.enqueue(effects)

	s.log.Warn().
		Str("reason", string(d.Reason)).
		Str("equity", acct.Equity.String()).
		Str("margin_used", acct.MarginUsed.String()).
		Int("closed", len(liq.Closed)).
		Str("deficit", liq.Deficit.String()).
		Str("balance", liq.Account.Balance.String()).
		Msg("margin call: account liquidated")
	s.publish(EventLiquidation, at, liq)
	s.publish(EventAccount, at, s.state.Account())
}

// OpenOrder is a market order. The fill price comes from the latest tick.
type OpenOrder struct {
	Symbol     string
	Side       market.Side
	Lot        decimal.Decimal
	Leverage   decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
}

// Open fills a market order at the latest quote: BUY at the ask, SELL at
// the bid.
func (s *Session) Open(ctx context.Context, o OpenOrder) (ledger.Position, error) {
	var (
		pos ledger.Position
		err error
	)
	if qerr := s.do(ctx, func() { pos, err = s.open(o) }); qerr != nil {
		return ledger.Position{}, qerr
	}
	return pos, err
}

func (s *Session) open(o OpenOrder) (ledger.Position, error) {
	sym := market.Normalize(o.Symbol)
	tick, err := s.prices.Get(sym)
	if err != nil {
		return ledger.Position{}, fmt.Errorf("open %s: %w", sym, ledger.ErrPriceUnavailable)
	}

	lev := o.Leverage
	if lev.IsZero() {
		lev = s.cfg.Leverage
	}
	req := ledger.OpenRequest{
		Symbol:     sym,
		Side:       o.Side,
		Lot:        o.Lot,
		Price:      risk.FillPrice(o.Side, tick.Quote),
		Leverage:   lev,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
	}

	now := s.stamp()
	next, pos, effects, err := s.state.OpenMarketOrder(req, s.fee(), now)
	if err != nil {
		s.log.Info().Err(err).Str("symbol", sym).Str("side", string(o.Side)).Msg("order rejected")
		return ledger.Position{}, err
	}
	s.commit(next)
	s.enqueue(effects)

	s.log.Info().Str("position_id", pos.ID).Str("symbol", sym).Str("side", string(pos.Side)).
		Str("lot", pos.Lot.String()).Str("price", pos.EntryPrice.String()).
		Str("margin", pos.Margin.String()).Msg("position opened")
	s.publish(EventPositionOpened, now, pos)
	s.publish(EventAccount, now, s.state.Account())
	return pos, nil
}

// Close closes one position at the latest quote for its symbol.
func (s *Session) Close(ctx context.Context, positionID string) (ledger.HistoryRecord, error) {
	var (
		rec ledger.HistoryRecord
		err error
	)
	if qerr := s.do(ctx, func() { rec, err = s.close(positionID) }); qerr != nil {
		return ledger.HistoryRecord{}, qerr
	}
	return rec, err
}

func (s *Session) close(positionID string) (ledger.HistoryRecord, error) {
	p, ok := s.state.Position(positionID)
	if !ok {
		return ledger.HistoryRecord{}, fmt.Errorf("close %s: %w", positionID, ledger.ErrPositionNotFound)
	}
	tick, err := s.prices.Get(p.Symbol)
	if err != nil {
		return ledger.HistoryRecord{}, fmt.Errorf("close %s on %s: %w", positionID, p.Symbol, ledger.ErrPriceUnavailable)
	}

	now := s.stamp()
	next, rec, effects, err := s.state.Close(positionID, tick.Quote, now, ledger.ReasonManual)
	if err != nil {
		return ledger.HistoryRecord{}, err
	}
	s.commit(next)
	s.enqueue(effects)

	s.log.Info().Str("position_id", positionID).Str("symbol", rec.Symbol).
		Str("exit", rec.ExitPrice.String()).Str("pnl", rec.RealizedPnL.String()).Msg("position closed")
	s.publish(EventPositionClosed, now, rec)
	s.publish(EventAccount, now, s.state.Account())
	return rec, nil
}

// CloseAll closes every position selected by filter at the latest quotes.
func (s *Session) CloseAll(ctx context.Context, filter ledger.CloseFilter) ([]ledger.HistoryRecord, error) {
	var (
		recs []ledger.HistoryRecord
		err  error
	)
	if qerr := s.do(ctx, func() { recs, err = s.closeAll(filter) }); qerr != nil {
		return nil, qerr
	}
	return recs, err
}

func (s *Session) closeAll(filter ledger.CloseFilter) ([]ledger.HistoryRecord, error) {
	now := s.stamp()
	next, recs, effects, err := s.state.CloseAll(filter, s.prices.Quotes(), now)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	s.commit(next)
	s.enqueue(effects)

	s.log.Info().Str("filter", string(filter)).Int("closed", len(recs)).Msg("positions closed")
	for _, rec := range recs {
		s.publish(EventPositionClosed, now, rec)
	}
	s.publish(EventAccount, now, s.state.Account())
	return recs, nil
}

func (s *Session) PlacePending(ctx context.Context, req ledger.PendingRequest) (ledger.PendingOrder, error) {
	var (
		order ledger.PendingOrder
		err   error
	)
	qerr := s.do(ctx, func() {
		now := s.stamp()
		var next ledger.Ledger
		next, order, err = s.state.PlacePending(req, now)
		if err != nil {
			return
		}
		s.commit(next)
		s.log.Info().Str("order_id", order.ID).Str("symbol", order.Symbol).Str("type", string(order.Type)).Msg("order placed")
		s.publish(EventOrderPlaced, now, order)
	})
	if qerr != nil {
		return ledger.PendingOrder{}, qerr
	}
	return order, err
}

func (s *Session) CancelPending(ctx context.Context, orderID string) (ledger.PendingOrder, error) {
	var (
		order ledger.PendingOrder
		err   error
	)
	qerr := s.do(ctx, func() {
		var next ledger.Ledger
		next, order, err = s.state.CancelPending(orderID)
		if err != nil {
			return
		}
		s.commit(next)
		s.log.Info().Str("order_id", order.ID).Msg("order cancelled")
		s.publish(EventOrderCancelled, s.stamp(), order)
	})
	if qerr != nil {
		return ledger.PendingOrder{}, qerr
	}
	return order, err
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	AccountID string                  `json:"account_id"`
	Time      time.Time               `json:"time"`
	Account   ledger.Account          `json:"account"`
	Positions []ledger.Position       `json:"positions"`
	Orders    []ledger.PendingOrder   `json:"orders"`
	History   []ledger.HistoryRecord  `json:"history"`
	Quotes    map[string]market.Quote `json:"quotes"`
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		snap = Snapshot{
			AccountID: s.cfg.AccountID,
			Time:      s.stamp(),
			Account:   s.state.Account(),
			Positions: s.state.Positions(),
			Orders:    s.state.PendingOrders(),
			History:   s.state.History(),
			Quotes:    s.prices.Quotes(),
		}
	})
	return snap, err
}
