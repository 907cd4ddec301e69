package journal

// Schema is the SQLite layout. Money and prices are stored as decimal text so
// they read back exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	lot TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	leverage TEXT NOT NULL,
	margin TEXT NOT NULL,
	commission TEXT NOT NULL,
	stop_loss TEXT,
	take_profit TEXT,
	open_time DATETIME NOT NULL,
	closed_at DATETIME
);

CREATE TABLE IF NOT EXISTS history (
	id TEXT NOT NULL,
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	lot TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	commission TEXT NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fees (
	position_id TEXT PRIMARY KEY,
	amount TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_close_time ON history(close_time);
`

// PostgresSchema is the same layout for Postgres, with numeric columns.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_positions (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	lot NUMERIC NOT NULL,
	entry_price NUMERIC NOT NULL,
	leverage NUMERIC NOT NULL,
	margin NUMERIC NOT NULL,
	commission NUMERIC NOT NULL,
	stop_loss NUMERIC,
	take_profit NUMERIC,
	open_time TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ledger_history (
	id TEXT NOT NULL,
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	lot NUMERIC NOT NULL,
	entry_price NUMERIC NOT NULL,
	exit_price NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL,
	commission NUMERIC NOT NULL,
	open_time TIMESTAMPTZ NOT NULL,
	close_time TIMESTAMPTZ NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_fees (
	position_id TEXT PRIMARY KEY,
	amount NUMERIC NOT NULL,
	time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_history_close_time ON ledger_history(close_time);
`
