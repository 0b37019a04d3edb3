package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trading_accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    remote_id TEXT NOT NULL,
    name TEXT NOT NULL,
    login TEXT NOT NULL,
    password_encrypted TEXT NOT NULL,
    server TEXT NOT NULL,
    platform TEXT NOT NULL CHECK (platform IN ('mt4', 'mt5')),
    state TEXT NOT NULL DEFAULT 'DEPLOYING',
    connection_status TEXT NOT NULL DEFAULT 'DISCONNECTED',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON trading_accounts(user_id);

CREATE TABLE IF NOT EXISTS broker_servers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    broker_name TEXT NOT NULL,
    server_name TEXT NOT NULL,
    address TEXT NOT NULL,
    platform TEXT NOT NULL CHECK (platform IN ('mt4', 'mt5')),
    region TEXT NOT NULL DEFAULT 'default',
    reliability REAL NOT NULL DEFAULT 1.0,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    connection_status TEXT NOT NULL DEFAULT 'DISCONNECTED',
    last_checked_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(server_name, platform)
);

CREATE TABLE IF NOT EXISTS risk_settings (
    account_id TEXT PRIMARY KEY,
    max_drawdown REAL NOT NULL,
    max_exposure_per_pair REAL NOT NULL,
    min_equity REAL NOT NULL,
    margin_call_level REAL NOT NULL,
    risk_per_trade REAL NOT NULL,
    max_daily_loss REAL,
    max_weekly_loss REAL,
    max_monthly_loss REAL,
    max_lot_size REAL NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    severity TEXT NOT NULL CHECK (severity IN ('INFO', 'WARNING', 'ERROR')),
    user_id TEXT NOT NULL,
    account_id TEXT,
    metadata TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_account ON audit_events(account_id);
`

// Init creates all tables if missing.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
