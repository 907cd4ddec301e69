package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EffectKind names a persistence request emitted by a transition.
type EffectKind string

const (
	EffectCreatePosition EffectKind = "create_position"
	EffectClosePosition  EffectKind = "close_position"
	EffectRecordHistory  EffectKind = "record_history"
	EffectDeductFee      EffectKind = "deduct_fee"
)

// Effect is something the durable store should learn about. Effects are
// idempotent by PositionID: replaying one must not change the store twice.
type Effect struct {
	Kind       EffectKind
	PositionID string
	Time       time.Time

	Position *Position       // EffectCreatePosition
	History  *HistoryRecord  // EffectRecordHistory
	Amount   decimal.Decimal // EffectDeductFee
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectDeductFee:
		return fmt.Sprintf("%s %s %s", e.Kind, e.PositionID, e.Amount)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.PositionID)
	}
}

func createEffects(p Position) []Effect {
	out := []Effect{{Kind: EffectCreatePosition, PositionID: p.ID, Time: p.OpenTime, Position: &p}}
	if p.Commission.IsPositive() {
		out = append(out, Effect{Kind: EffectDeductFee, PositionID: p.ID, Time: p.OpenTime, Amount: p.Commission})
	}
	return out
}

func closeEffects(h HistoryRecord) []Effect {
	return []Effect{
		{Kind: EffectClosePosition, PositionID: h.PositionID, Time: h.CloseTime},
		{Kind: EffectRecordHistory, PositionID: h.PositionID, Time: h.CloseTime, History: &h},
	}
}
