package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/marginledger/feed"
	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

// Apply runs one scripted replay event. It has the shape of feed.EventFunc.
//
// Events (case-insensitive):
//
//	OPEN:      arg1=symbol arg2=side arg3=lot [arg4=leverage]
//	OPEN_SLTP: arg1=symbol arg2=side arg3=lot arg4=stopLoss arg5=takeProfit
//	CLOSE:     arg1=position id, "#n" for the n-th open position, or "last"
//	CLOSE_ALL: arg1=all|profit|loss (optional)
//
// An order the ledger refuses is logged and the script carries on; malformed
// events and failed lookups stop it.
func (s *Session) Apply(ctx context.Context, ev feed.Event) error {
	err := s.apply(ctx, ev)
	if err != nil && ledger.IsRejection(err) {
		s.log.Info().Err(err).Str("event", ev.Name).Strs("args", ev.Args).Msg("scripted order rejected")
		return nil
	}
	return err
}

func (s *Session) apply(ctx context.Context, ev feed.Event) error {
	switch strings.ToUpper(ev.Name) {
	case "OPEN":
		o, err := parseOpen(ev.Args, false)
		if err != nil {
			return fmt.Errorf("OPEN: %w", err)
		}
		_, err = s.Open(ctx, o)
		return err

	case "OPEN_SLTP":
		o, err := parseOpen(ev.Args, true)
		if err != nil {
			return fmt.Errorf("OPEN_SLTP: %w", err)
		}
		_, err = s.Open(ctx, o)
		return err

	case "CLOSE":
		if len(ev.Args) < 1 || ev.Args[0] == "" {
			return errors.New("CLOSE: missing position")
		}
		return s.closeRef(ctx, ev.Args[0])

	case "CLOSE_ALL":
		arg := ""
		if len(ev.Args) >= 1 {
			arg = strings.ToLower(ev.Args[0])
		}
		filter, ok := ledger.ParseCloseFilter(arg)
		if !ok {
			return fmt.Errorf("CLOSE_ALL: unknown filter %q", ev.Args[0])
		}
		_, err := s.CloseAll(ctx, filter)
		return err

	default:
		return fmt.Errorf("unknown event %q", ev.Name)
	}
}

func (s *Session) closeRef(ctx context.Context, ref string) error {
	var err error
	qerr := s.do(ctx, func() {
		positionID := ref
		open := s.state.Positions()
		switch {
		case strings.EqualFold(ref, "last"):
			if len(open) == 0 {
				err = fmt.Errorf("close last: %w", ledger.ErrPositionNotFound)
				return
			}
			positionID = open[len(open)-1].ID
		case strings.HasPrefix(ref, "#"):
			n, perr := strconv.Atoi(ref[1:])
			if perr != nil || n < 1 {
				err = fmt.Errorf("CLOSE: bad position index %q", ref)
				return
			}
			if n > len(open) {
				err = fmt.Errorf("close %s of %d: %w", ref, len(open), ledger.ErrPositionNotFound)
				return
			}
			positionID = open[n-1].ID
		}
		_, err = s.close(positionID)
	})
	if qerr != nil {
		return qerr
	}
	return err
}

func parseOpen(args []string, withStops bool) (OpenOrder, error) {
	need := 3
	if withStops {
		need = 5
	}
	if len(args) < need {
		if withStops {
			return OpenOrder{}, errors.New("need arg1=symbol arg2=side arg3=lot arg4=stopLoss arg5=takeProfit")
		}
		return OpenOrder{}, errors.New("need arg1=symbol arg2=side arg3=lot")
	}

	o := OpenOrder{Symbol: args[0]}
	if o.Symbol == "" {
		return OpenOrder{}, errors.New("symbol is empty")
	}
	side, err := market.ParseSide(args[1])
	if err != nil {
		return OpenOrder{}, err
	}
	o.Side = side

	lot, err := decimal.NewFromString(args[2])
	if err != nil {
		return OpenOrder{}, fmt.Errorf("bad lot %q: %w", args[2], err)
	}
	o.Lot = lot

	if withStops {
		sl, err := decimal.NewFromString(args[3])
		if err != nil {
			return OpenOrder{}, fmt.Errorf("bad stopLoss %q: %w", args[3], err)
		}
		tp, err := decimal.NewFromString(args[4])
		if err != nil {
			return OpenOrder{}, fmt.Errorf("bad takeProfit %q: %w", args[4], err)
		}
		o.StopLoss = decimal.NewNullDecimal(sl)
		o.TakeProfit = decimal.NewNullDecimal(tp)
		return o, nil
	}

	if len(args) >= 4 && args[3] != "" {
		lev, err := decimal.NewFromString(args[3])
		if err != nil {
			return OpenOrder{}, fmt.Errorf("bad leverage %q: %w", args[3], err)
		}
		o.Leverage = lev
	}
	return o, nil
}
