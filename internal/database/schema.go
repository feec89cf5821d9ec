package database

// baseTables creates every table in its current shape on a fresh store. On an older store
// the statements are no-ops for tables that already exist; the migrations bring those
// tables up to date. Indexes live in the migrations because they may reference columns
// an older table does not have yet.
var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id TEXT NOT NULL PRIMARY KEY,
		import_timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		broker TEXT NOT NULL DEFAULT 'unknown',
		account_id TEXT NOT NULL DEFAULT '',
		trade_date TEXT NOT NULL,
		settle_date TEXT,
		symbol TEXT NOT NULL CHECK (symbol <> ''),
		description TEXT,
		asset_category TEXT NOT NULL DEFAULT 'unknown',
		action TEXT,
		quantity REAL NOT NULL,
		trade_price REAL NOT NULL,
		currency TEXT NOT NULL CHECK (currency <> ''),
		proceeds REAL,
		cost REAL,
		commission REAL,
		fees REAL,
		net_amount REAL NOT NULL,
		open_close TEXT,
		cost_basis REAL,
		realized_pl REAL,
		option_symbol TEXT,
		expiry_date TEXT,
		strike_price REAL,
		put_call TEXT,
		multiplier REAL,
		order_id TEXT,
		execution_id TEXT,
		notes TEXT,
		validation_flags TEXT,
		raw_data TEXT,
		import_id TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL CHECK (symbol <> ''),
		description TEXT,
		asset_category TEXT NOT NULL DEFAULT 'unknown',
		currency TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL,
		multiplier REAL NOT NULL DEFAULT 1,
		cost_price REAL,
		cost_basis REAL,
		market_price REAL,
		market_value REAL,
		unrealized_pl REAL,
		realized_pl REAL,
		put_call TEXT,
		strike REAL,
		expiry TEXT,
		statement_date TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (account_id, symbol)
	)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT NOT NULL PRIMARY KEY,
		account_name TEXT,
		account_type TEXT,
		base_currency TEXT,
		balance REAL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS trade_daily_summary (
		trade_date TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		trade_count INTEGER NOT NULL DEFAULT 0,
		realized_pl REAL NOT NULL DEFAULT 0,
		net_amount REAL NOT NULL DEFAULT 0,
		commissions REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (trade_date, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS import_error_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		import_id TEXT,
		trade_id TEXT,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		message TEXT NOT NULL,
		context TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS import_run (
		id TEXT NOT NULL PRIMARY KEY,
		file_name TEXT NOT NULL,
		format TEXT NOT NULL,
		broker TEXT,
		status TEXT NOT NULL,
		rows_processed INTEGER NOT NULL DEFAULT 0,
		inserted INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		anomalies INTEGER NOT NULL DEFAULT 0,
		positions INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		warning_count INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	)`,
}

// dropStatements remove everything Initialize creates, children first.
var dropStatements = []string{
	`DROP TABLE IF EXISTS import_error_log`,
	`DROP TABLE IF EXISTS import_run`,
	`DROP TABLE IF EXISTS trade_daily_summary`,
	`DROP TABLE IF EXISTS positions`,
	`DROP TABLE IF EXISTS accounts`,
	`DROP TABLE IF EXISTS trades`,
	`DROP TABLE IF EXISTS schema_version`,
}
