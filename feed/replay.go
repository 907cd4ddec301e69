package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// Event is a scripted command found next to a tick in a replay file.
type Event struct {
	Time time.Time
	Name string
	Args []string
}

// EventFunc handles one scripted event.
type EventFunc func(ctx context.Context, ev Event) error

// Replay feeds ticks from a CSV file.
//
// Formats:
//
//  1. ticks:          time,symbol,bid,ask
//  2. ticks + events: time,symbol,bid,ask,event,arg1,arg2,...
//
// time is RFC 3339 or unix milliseconds. A header row starting with "time" is
// skipped. Each row's tick is delivered before its event, so an OPEN fills
// at that row's prices.
type Replay struct {
	Path    string
	OnEvent EventFunc
	// Pace sleeps between rows; zero replays as fast as the handler allows.
	Pace time.Duration
}

func (r *Replay) Run(ctx context.Context, symbols []string, h TickFunc) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.RunReader(ctx, f, symbols, h)
}

// RunReader replays rows read from in.
func (r *Replay) RunReader(ctx context.Context, in io.Reader, symbols []string, h TickFunc) error {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	accept := newFilter(symbols)
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		// Line of the record in the file; comment lines count.
		line, _ := cr.FieldPos(0)
		header := first
		first = false
		if len(row) == 0 {
			continue
		}
		if header && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		tick, ev, err := parseRow(row)
		if err != nil {
			return fmt.Errorf("replay line %d: %w", line, err)
		}

		if accept.accept(tick.Symbol) {
			if err := h(ctx, tick); err != nil {
				return err
			}
		}
		if ev.Name != "" && r.OnEvent != nil {
			if err := r.OnEvent(ctx, ev); err != nil {
				return fmt.Errorf("replay line %d %s: %w", line, ev.Name, err)
			}
		}

		if r.Pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Pace):
			}
		}
	}
}

func parseRow(row []string) (market.Tick, Event, error) {
	if len(row) < 4 {
		return market.Tick{}, Event{}, fmt.Errorf("need at least 4 cols time,symbol,bid,ask: %v", row)
	}

	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Tick{}, Event{}, fmt.Errorf("bad time %q: %w", row[0], err)
	}
	bid, err := decimal.NewFromString(strings.TrimSpace(row[2]))
	if err != nil {
		return market.Tick{}, Event{}, fmt.Errorf("bad bid %q: %w", row[2], err)
	}
	ask, err := decimal.NewFromString(strings.TrimSpace(row[3]))
	if err != nil {
		return market.Tick{}, Event{}, fmt.Errorf("bad ask %q: %w", row[3], err)
	}

	sym := market.Normalize(row[1])
	tick := market.Tick{
		Symbol: sym,
		Digits: market.Lookup(sym).Digits,
		Time:   ts,
		Quote:  market.Quote{Bid: bid, Ask: ask},
	}

	var ev Event
	if len(row) >= 5 {
		ev.Name = strings.ToUpper(strings.TrimSpace(row[4]))
		ev.Time = ts
		for _, a := range row[5:] {
			ev.Args = append(ev.Args, strings.TrimSpace(a))
		}
	}
	return tick, ev, nil
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
