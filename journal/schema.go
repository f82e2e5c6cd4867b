package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id TEXT NOT NULL UNIQUE,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	realized_pl REAL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	cycle INTEGER NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	high_water_mark REAL NOT NULL,
	drawdown_pct REAL NOT NULL,
	daily_loss_exceeded INTEGER NOT NULL,
	max_drawdown_exceeded INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
