// Package feed adapts price providers to a single push interface. Every
// adapter delivers ticks for one symbol in the order it received them.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// TickFunc receives one tick. Returning an error stops the feed.
type TickFunc func(ctx context.Context, t market.Tick) error

// Feed pushes ticks for symbols to h until ctx ends or the source fails.
type Feed interface {
	Run(ctx context.Context, symbols []string, h TickFunc) error
}

// message is the JSON push event shared by the websocket and stream feeds:
// {symbol, bid, ask, digits, timestamp}. Prices may be strings or numbers;
// timestamp is unix milliseconds.
type message struct {
	Type      string          `json:"type,omitempty"`
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Digits    int32           `json:"digits"`
	Timestamp int64           `json:"timestamp"`
}

// isTick filters heartbeats and control messages.
func (m message) isTick() bool {
	switch strings.ToLower(m.Type) {
	case "", "price", "tick", "quote":
		return m.Symbol != ""
	}
	return false
}

func (m message) tick() market.Tick {
	ts := time.Now().UTC()
	if m.Timestamp > 0 {
		ts = time.UnixMilli(m.Timestamp).UTC()
	}
	return market.Tick{
		Symbol: market.Normalize(m.Symbol),
		Digits: m.Digits,
		Time:   ts,
		Quote:  market.Quote{Bid: m.Bid, Ask: m.Ask},
	}
}

// filter reports whether a symbol is among those subscribed. An empty
// subscription accepts everything.
type filter map[string]struct{}

func newFilter(symbols []string) filter {
	f := make(filter, len(symbols))
	for _, s := range symbols {
		f[market.Normalize(s)] = struct{}{}
	}
	return f
}

func (f filter) accept(symbol string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[market.Normalize(symbol)]
	return ok
}

// Retry runs f and restarts it after a failure with exponential backoff
// from initial up to maxBackoff, until ctx ends or h itself fails.
func Retry(ctx context.Context, f Feed, symbols []string, h TickFunc, initial, maxBackoff time.Duration, log zerolog.Logger) error {
	var handlerErr error
	wrapped := func(ctx context.Context, t market.Tick) error {
		if err := h(ctx, t); err != nil {
			handlerErr = err
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.RandomizationFactor = 0
	b.Multiplier = 2
	if maxBackoff > 0 {
		b.MaxInterval = maxBackoff
	}
	b.Reset()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := f.Run(ctx, symbols, wrapped)
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if handlerErr != nil {
			return struct{}{}, backoff.Permanent(handlerErr)
		}
		if err == nil {
			err = errors.New("feed ended")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("retry_in", wait).Msg("price feed disconnected")
		}),
	)
	return err
}
