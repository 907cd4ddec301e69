// Package journal is the durable side of the ledger: it records positions,
// fees and closed trades so a session can be audited after the fact. The
// in-memory ledger stays authoritative; stores only learn what happened.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/marginledger/ledger"
	"github.com/shopspring/decimal"
)

// Store persists ledger effects. Every method is idempotent by position id:
// writing the same position, close, history record or fee twice leaves one
// row.
type Store interface {
	CreatePosition(ctx context.Context, p ledger.Position) error
	ClosePosition(ctx context.Context, positionID string, closedAt time.Time) error
	RecordHistory(ctx context.Context, h ledger.HistoryRecord) error
	DeductFee(ctx context.Context, positionID string, amount decimal.Decimal, at time.Time) error
	Close() error
}

// Fee is one commission deduction.
type Fee struct {
	PositionID string
	Amount     decimal.Decimal
	Time       time.Time
}

// ErrUnknownEffect is returned by Apply for an effect kind it cannot route.
var ErrUnknownEffect = errors.New("unknown effect")

// Apply routes one ledger effect to the matching Store method.
func Apply(ctx context.Context, s Store, e ledger.Effect) error {
	switch e.Kind {
	case ledger.EffectCreatePosition:
		if e.Position == nil {
			return fmt.Errorf("%s %s: missing position", e.Kind, e.PositionID)
		}
		return s.CreatePosition(ctx, *e.Position)
	case ledger.EffectClosePosition:
		return s.ClosePosition(ctx, e.PositionID, e.Time)
	case ledger.EffectRecordHistory:
		if e.History == nil {
			return fmt.Errorf("%s %s: missing history record", e.Kind, e.PositionID)
		}
		return s.RecordHistory(ctx, *e.History)
	case ledger.EffectDeductFee:
		return s.DeductFee(ctx, e.PositionID, e.Amount, e.Time)
	}
	return fmt.Errorf("%q: %w", e.Kind, ErrUnknownEffect)
}

// Reader is implemented by stores that can list what they hold.
type Reader interface {
	OpenPositions(ctx context.Context) ([]ledger.Position, error)
	History(ctx context.Context) ([]ledger.HistoryRecord, error)
	Fees(ctx context.Context) ([]Fee, error)
}
