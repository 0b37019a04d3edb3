// Package db provides the durable store for accounts, broker servers, risk
// settings and audit events, with user-scoped queries for account data.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// Queries wraps prepared access to the schema.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a Queries instance.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ----------------------------------------
// Trading accounts
// ----------------------------------------

// InsertAccount stores a newly provisioned account.
func (q *Queries) InsertAccount(ctx context.Context, a Account) error {
	if a.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trading_accounts
			(id, user_id, remote_id, name, login, password_encrypted, server, platform, state, connection_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.RemoteID, a.Name, a.Login, a.PasswordEncrypted, a.Server, a.Platform, a.State, a.ConnectionStatus)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccount returns one account scoped to its owner.
func (q *Queries) GetAccount(ctx context.Context, userID, id string) (*Account, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	row := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, remote_id, name, login, password_encrypted, server, platform,
		       state, connection_status, created_at, updated_at
		FROM trading_accounts
		WHERE id = ? AND user_id = ?
	`, id, userID)

	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.RemoteID, &a.Name, &a.Login, &a.PasswordEncrypted,
		&a.Server, &a.Platform, &a.State, &a.ConnectionStatus, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns every account owned by a user.
func (q *Queries) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, remote_id, name, login, password_encrypted, server, platform,
		       state, connection_status, created_at, updated_at
		FROM trading_accounts
		WHERE user_id = ?
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.RemoteID, &a.Name, &a.Login, &a.PasswordEncrypted,
			&a.Server, &a.Platform, &a.State, &a.ConnectionStatus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountState updates lifecycle state and connection status together
// so the DEPLOYED-only-while-CONNECTED invariant is enforced in one place.
func (q *Queries) UpdateAccountState(ctx context.Context, id, state, connectionStatus string) error {
	if state != "DEPLOYED" && connectionStatus == "CONNECTED" {
		return fmt.Errorf("account %s: CONNECTED requires DEPLOYED state, got %s", id, state)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE trading_accounts
		SET state = ?, connection_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, state, connectionStatus, id)
	if err != nil {
		return fmt.Errorf("update account state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes an account row scoped to its owner.
func (q *Queries) DeleteAccount(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	res, err := q.db.ExecContext(ctx, `DELETE FROM trading_accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------
// Broker servers
// ----------------------------------------

// UpsertBrokerServer stores or refreshes a discovered server.
func (q *Queries) UpsertBrokerServer(ctx context.Context, s BrokerServer) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO broker_servers (broker_name, server_name, address, platform, region, reliability, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(server_name, platform) DO UPDATE SET
			broker_name = excluded.broker_name,
			address = excluded.address,
			region = excluded.region,
			is_active = 1
	`, s.BrokerName, s.ServerName, s.Address, s.Platform, s.Region, s.Reliability)
	if err != nil {
		return fmt.Errorf("upsert broker server: %w", err)
	}
	return nil
}

// ListActiveServers returns servers the monitor should probe.
func (q *Queries) ListActiveServers(ctx context.Context) ([]BrokerServer, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, broker_name, server_name, address, platform, region, reliability,
		       is_active, connection_status, last_checked_at
		FROM broker_servers
		WHERE is_active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("list active servers: %w", err)
	}
	defer rows.Close()

	var servers []BrokerServer
	for rows.Next() {
		var s BrokerServer
		if err := rows.Scan(&s.ID, &s.BrokerName, &s.ServerName, &s.Address, &s.Platform, &s.Region,
			&s.Reliability, &s.IsActive, &s.ConnectionStatus, &s.LastCheckedAt); err != nil {
			return nil, fmt.Errorf("scan broker server: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// UpdateServerHealth records a probe outcome: new reliability score,
// connection status, and the check timestamp.
func (q *Queries) UpdateServerHealth(ctx context.Context, id int64, reliability float64, connectionStatus string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE broker_servers
		SET reliability = ?, connection_status = ?, last_checked_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, reliability, connectionStatus, id)
	if err != nil {
		return fmt.Errorf("update server health: %w", err)
	}
	return nil
}

// ----------------------------------------
// Risk settings
// ----------------------------------------

// GetRiskSettings returns the settings row for an account, or ErrNotFound.
func (q *Queries) GetRiskSettings(ctx context.Context, accountID string) (*RiskSettings, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT account_id, max_drawdown, max_exposure_per_pair, min_equity, margin_call_level,
		       risk_per_trade, max_daily_loss, max_weekly_loss, max_monthly_loss, max_lot_size
		FROM risk_settings
		WHERE account_id = ?
	`, accountID)

	var s RiskSettings
	err := row.Scan(&s.AccountID, &s.MaxDrawdown, &s.MaxExposurePerPair, &s.MinEquity, &s.MarginCallLevel,
		&s.RiskPerTrade, &s.MaxDailyLoss, &s.MaxWeeklyLoss, &s.MaxMonthlyLoss, &s.MaxLotSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get risk settings: %w", err)
	}
	return &s, nil
}

// UpsertRiskSettings overwrites the single settings row per account.
func (q *Queries) UpsertRiskSettings(ctx context.Context, s RiskSettings) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO risk_settings
			(account_id, max_drawdown, max_exposure_per_pair, min_equity, margin_call_level,
			 risk_per_trade, max_daily_loss, max_weekly_loss, max_monthly_loss, max_lot_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			max_drawdown = excluded.max_drawdown,
			max_exposure_per_pair = excluded.max_exposure_per_pair,
			min_equity = excluded.min_equity,
			margin_call_level = excluded.margin_call_level,
			risk_per_trade = excluded.risk_per_trade,
			max_daily_loss = excluded.max_daily_loss,
			max_weekly_loss = excluded.max_weekly_loss,
			max_monthly_loss = excluded.max_monthly_loss,
			max_lot_size = excluded.max_lot_size,
			updated_at = CURRENT_TIMESTAMP
	`, s.AccountID, s.MaxDrawdown, s.MaxExposurePerPair, s.MinEquity, s.MarginCallLevel,
		s.RiskPerTrade, s.MaxDailyLoss, s.MaxWeeklyLoss, s.MaxMonthlyLoss, s.MaxLotSize)
	if err != nil {
		return fmt.Errorf("upsert risk settings: %w", err)
	}
	return nil
}

// ----------------------------------------
// Audit events
// ----------------------------------------

// InsertAuditEvents writes a batch of events in one transaction. The batch is
// all-or-nothing so a failed flush can be re-queued without partial rows.
func (q *Queries) InsertAuditEvents(ctx context.Context, events []AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_events (id, event_type, severity, user_id, account_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.EventType, e.Severity, e.UserID, e.AccountID, e.Metadata, e.CreatedAt); err != nil {
			return fmt.Errorf("insert audit event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// ListAuditEvents returns recent events for a user, newest first.
func (q *Queries) ListAuditEvents(ctx context.Context, userID string, limit int) ([]AuditEvent, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, event_type, severity, user_id, COALESCE(account_id, ''), COALESCE(metadata, ''), created_at
		FROM audit_events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Severity, &e.UserID, &e.AccountID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
