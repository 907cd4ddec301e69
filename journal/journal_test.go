package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readStore interface {
	Store
	Reader
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	openT  = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT = openT.Add(time.Hour)
)

func samplePosition(id string) ledger.Position {
	return ledger.Position{
		ID:         id,
		Symbol:     "EURUSD",
		Side:       market.Buy,
		Lot:        d("1.5"),
		EntryPrice: d("1.10002"),
		Leverage:   d("100"),
		StopLoss:   decimal.NewNullDecimal(d("1.09")),
		OpenTime:   openT,
		Margin:     d("1650.03"),
		Commission: d("2.5"),
		MarkPrice:  d("1.10002"),
	}
}

func sampleHistory(positionID string) ledger.HistoryRecord {
	return ledger.HistoryRecord{
		ID:          "H-" + positionID,
		PositionID:  positionID,
		Symbol:      "EURUSD",
		Side:        market.Buy,
		Lot:         d("1.5"),
		EntryPrice:  d("1.10002"),
		ExitPrice:   d("1.10102"),
		RealizedPnL: d("150"),
		Commission:  d("2.5"),
		OpenTime:    openT,
		CloseTime:   closeT,
		Reason:      ledger.ReasonManual,
	}
}

// exerciseStore runs the same scenario against any Store implementation.
func exerciseStore(t *testing.T, s readStore) {
	t.Helper()
	ctx := context.Background()

	p1 := samplePosition("P1")
	p2 := samplePosition("P2")
	p2.Side = market.Sell
	p2.StopLoss = decimal.NullDecimal{}

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreatePosition(ctx, p1))
		require.NoError(t, s.CreatePosition(ctx, p2))
		require.NoError(t, s.DeductFee(ctx, p1.ID, p1.Commission, openT))
	}

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "P1", open[0].ID)
	assert.Equal(t, market.Buy, open[0].Side)
	assert.True(t, open[0].Lot.Equal(p1.Lot))
	assert.True(t, open[0].EntryPrice.Equal(p1.EntryPrice))
	assert.True(t, open[0].Margin.Equal(p1.Margin))
	assert.True(t, open[0].StopLoss.Valid)
	assert.True(t, open[0].StopLoss.Decimal.Equal(d("1.09")))
	assert.False(t, open[0].TakeProfit.Valid)
	assert.True(t, open[0].OpenTime.Equal(openT))
	assert.Equal(t, market.Sell, open[1].Side)
	assert.False(t, open[1].StopLoss.Valid)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.ClosePosition(ctx, p1.ID, closeT))
		require.NoError(t, s.RecordHistory(ctx, sampleHistory(p1.ID)))
	}
	// a replayed close with a later time must not move the recorded close
	require.NoError(t, s.ClosePosition(ctx, p1.ID, closeT.Add(time.Hour)))

	open, err = s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "P2", open[0].ID)

	hist, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	h := hist[0]
	assert.Equal(t, "H-P1", h.ID)
	assert.Equal(t, "P1", h.PositionID)
	assert.Equal(t, ledger.ReasonManual, h.Reason)
	assert.True(t, h.RealizedPnL.Equal(d("150")))
	assert.True(t, h.ExitPrice.Equal(d("1.10102")))
	assert.True(t, h.CloseTime.Equal(closeT))

	fees, err := s.Fees(ctx)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, "P1", fees[0].PositionID)
	assert.True(t, fees[0].Amount.Equal(d("2.5")))

	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.CreatePosition(ctx, samplePosition("P9")))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "P9", open[0].ID)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `truncate ledger_positions, ledger_history, ledger_fees`)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestApplyRoutesEffects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	p := samplePosition("P1")
	h := sampleHistory("P1")

	effects := []ledger.Effect{
		{Kind: ledger.EffectCreatePosition, PositionID: p.ID, Time: openT, Position: &p},
		{Kind: ledger.EffectDeductFee, PositionID: p.ID, Time: openT, Amount: d("2.5")},
		{Kind: ledger.EffectClosePosition, PositionID: p.ID, Time: closeT},
		{Kind: ledger.EffectRecordHistory, PositionID: p.ID, Time: closeT, History: &h},
	}
	for _, e := range effects {
		require.NoError(t, Apply(ctx, m, e))
	}

	open, _ := m.OpenPositions(ctx)
	assert.Empty(t, open)
	hist, _ := m.History(ctx)
	assert.Equal(t, []ledger.HistoryRecord{h}, hist)
	fees, _ := m.Fees(ctx)
	assert.Len(t, fees, 1)

	assert.ErrorIs(t, Apply(ctx, m, ledger.Effect{Kind: "teleport"}), ErrUnknownEffect)
	assert.Error(t, Apply(ctx, m, ledger.Effect{Kind: ledger.EffectCreatePosition}))
	assert.Error(t, Apply(ctx, m, ledger.Effect{Kind: ledger.EffectRecordHistory}))
}
