package journal

import (
	"context"
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/rustyeddy/marginledger/ledger"
	"github.com/shopspring/decimal"
)

// CSVHeader is the first row of a CSV journal.
var CSVHeader = []string{"time", "kind", "position_id", "symbol", "side", "lot", "price", "amount", "reason"}

// CSV appends one row per effect to a file. It remembers what it wrote
// during its lifetime so replays within a run are dropped.
type CSV struct {
	mu   sync.Mutex
	w    *csv.Writer
	f    *os.File
	seen map[string]struct{}
}

func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &CSV{w: w, f: f, seen: make(map[string]struct{})}, nil
}

func (j *CSV) write(kind ledger.EffectKind, positionID string, row []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := string(kind) + "/" + positionID
	if _, ok := j.seen[key]; ok {
		return nil
	}
	if err := j.w.Write(row); err != nil {
		return err
	}
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	j.seen[key] = struct{}{}
	return nil
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (j *CSV) CreatePosition(_ context.Context, p ledger.Position) error {
	return j.write(ledger.EffectCreatePosition, p.ID, []string{
		ts(p.OpenTime), string(ledger.EffectCreatePosition), p.ID, p.Symbol, string(p.Side),
		p.Lot.String(), p.EntryPrice.String(), p.Margin.String(), "",
	})
}

func (j *CSV) ClosePosition(_ context.Context, positionID string, closedAt time.Time) error {
	return j.write(ledger.EffectClosePosition, positionID, []string{
		ts(closedAt), string(ledger.EffectClosePosition), positionID, "", "", "", "", "", "",
	})
}

func (j *CSV) RecordHistory(_ context.Context, h ledger.HistoryRecord) error {
	return j.write(ledger.EffectRecordHistory, h.PositionID, []string{
		ts(h.CloseTime), string(ledger.EffectRecordHistory), h.PositionID, h.Symbol, string(h.Side),
		h.Lot.String(), h.ExitPrice.String(), h.RealizedPnL.String(), string(h.Reason),
	})
}

func (j *CSV) DeductFee(_ context.Context, positionID string, amount decimal.Decimal, at time.Time) error {
	return j.write(ledger.EffectDeductFee, positionID, []string{
		ts(at), string(ledger.EffectDeductFee), positionID, "", "", "", "", amount.String(), "",
	})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		_ = j.f.Close()
		return err
	}
	return j.f.Close()
}
