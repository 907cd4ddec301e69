package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/market"
	"github.com/shopspring/decimal"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the ledger tables if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (j *Postgres) CreatePosition(ctx context.Context, p ledger.Position) error {
	_, err := j.pool.Exec(ctx, `
		insert into ledger_positions
		(position_id, symbol, side, lot, entry_price, leverage, margin, commission, stop_loss, take_profit, open_time)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (position_id) do nothing`,
		p.ID, p.Symbol, string(p.Side), p.Lot, p.EntryPrice, p.Leverage, p.Margin,
		p.Commission, p.StopLoss, p.TakeProfit, p.OpenTime.UTC(),
	)
	return err
}

func (j *Postgres) ClosePosition(ctx context.Context, positionID string, closedAt time.Time) error {
	_, err := j.pool.Exec(ctx,
		`update ledger_positions set closed_at = $1 where position_id = $2 and closed_at is null`,
		closedAt.UTC(), positionID,
	)
	return err
}

func (j *Postgres) RecordHistory(ctx context.Context, h ledger.HistoryRecord) error {
	_, err := j.pool.Exec(ctx, `
		insert into ledger_history
		(id, position_id, symbol, side, lot, entry_price, exit_price, realized_pnl, commission, open_time, close_time, reason)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (position_id) do nothing`,
		h.ID, h.PositionID, h.Symbol, string(h.Side), h.Lot, h.EntryPrice, h.ExitPrice,
		h.RealizedPnL, h.Commission, h.OpenTime.UTC(), h.CloseTime.UTC(), string(h.Reason),
	)
	return err
}

func (j *Postgres) DeductFee(ctx context.Context, positionID string, amount decimal.Decimal, at time.Time) error {
	_, err := j.pool.Exec(ctx,
		`insert into ledger_fees (position_id, amount, time) values ($1,$2,$3) on conflict (position_id) do nothing`,
		positionID, amount, at.UTC(),
	)
	return err
}

func (j *Postgres) OpenPositions(ctx context.Context) ([]ledger.Position, error) {
	rows, err := j.pool.Query(ctx, `
		select position_id, symbol, side, lot, entry_price, leverage, margin, commission, stop_loss, take_profit, open_time
		from ledger_positions where closed_at is null order by position_id`)
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

func (j *Postgres) History(ctx context.Context) ([]ledger.HistoryRecord, error) {
	rows, err := j.pool.Query(ctx, `
		select id, position_id, symbol, side, lot, entry_price, exit_price, realized_pnl, commission, open_time, close_time, reason
		from ledger_history order by close_time, id`)
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

func (j *Postgres) Fees(ctx context.Context) ([]Fee, error) {
	rows, err := j.pool.Query(ctx, `select position_id, amount, time from ledger_fees order by position_id`)
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

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}
