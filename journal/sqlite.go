package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) CreatePosition(ctx context.Context, p ledger.Position) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO positions
		(position_id, symbol, side, lot, entry_price, leverage, margin, commission, stop_loss, take_profit, open_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, string(p.Side), p.Lot, p.EntryPrice, p.Leverage, p.Margin,
		p.Commission, p.StopLoss, p.TakeProfit, p.OpenTime.UTC(),
	)
	return err
}

func (j *SQLite) ClosePosition(ctx context.Context, positionID string, closedAt time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE positions SET closed_at = ? WHERE position_id = ? AND closed_at IS NULL`,
		closedAt.UTC(), positionID,
	)
	return err
}

func (j *SQLite) RecordHistory(ctx context.Context, h ledger.HistoryRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO history
		(id, position_id, symbol, side, lot, entry_price, exit_price, realized_pnl, commission, open_time, close_time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.PositionID, h.Symbol, string(h.Side), h.Lot, h.EntryPrice, h.ExitPrice,
		h.RealizedPnL, h.Commission, h.OpenTime.UTC(), h.CloseTime.UTC(), string(h.Reason),
	)
	return err
}

func (j *SQLite) DeductFee(ctx context.Context, positionID string, amount decimal.Decimal, at time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fees (position_id, amount, time) VALUES (?, ?, ?)`,
		positionID, amount, at.UTC(),
	)
	return err
}

// OpenPositions lists positions with no recorded close, oldest first.
func (j *SQLite) OpenPositions(ctx context.Context) ([]ledger.Position, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT position_id, symbol, side, lot, entry_price, leverage, margin, commission, stop_loss, take_profit, open_time
		FROM positions WHERE closed_at IS NULL ORDER BY position_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		var (
			p    ledger.Position
			side string
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &side, &p.Lot, &p.EntryPrice, &p.Leverage, &p.Margin,
			&p.Commission, &p.StopLoss, &p.TakeProfit, &p.OpenTime); err != nil {
			return nil, err
		}
		p.Side = market.Side(side)
		p.MarkPrice = p.EntryPrice
		out = append(out, p)
	}
	return out, rows.Err()
}

// History lists closed trades ordered by close time.
func (j *SQLite) History(ctx context.Context) ([]ledger.HistoryRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, position_id, symbol, side, lot, entry_price, exit_price, realized_pnl, commission, open_time, close_time, reason
		FROM history ORDER BY close_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.HistoryRecord
	for rows.Next() {
		var (
			h            ledger.HistoryRecord
			side, reason string
		)
		if err := rows.Scan(&h.ID, &h.PositionID, &h.Symbol, &side, &h.Lot, &h.EntryPrice, &h.ExitPrice,
			&h.RealizedPnL, &h.Commission, &h.OpenTime, &h.CloseTime, &reason); err != nil {
			return nil, err
		}
		h.Side = market.Side(side)
		h.Reason = ledger.CloseReason(reason)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (j *SQLite) Fees(ctx context.Context) ([]Fee, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT position_id, amount, time FROM fees ORDER BY position_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fee
	for rows.Next() {
		var f Fee
		if err := rows.Scan(&f.PositionID, &f.Amount, &f.Time); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
