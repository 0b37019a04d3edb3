package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testQueries(t *testing.T) *Queries {
	t.Helper()
	database, err := NewInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Init(database.DB); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return NewQueries(database.DB)
}

func TestAccountRoundTrip(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	acct := Account{
		ID: "a1", UserID: "u1", RemoteID: "r1", Name: "demo", Login: "100",
		PasswordEncrypted: "enc:v1:xxx", Server: "Broker-Demo", Platform: "mt5",
		State: "DEPLOYING", ConnectionStatus: "DISCONNECTED",
	}
	if err := q.InsertAccount(ctx, acct); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := q.GetAccount(ctx, "u1", "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Server != "Broker-Demo" || got.Platform != "mt5" {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Other users must not see the row.
	if _, err := q.GetAccount(ctx, "u2", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user get: %v, expected ErrNotFound", err)
	}
}

func TestUpdateAccountStateEnforcesInvariant(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	if err := q.InsertAccount(ctx, Account{
		ID: "a1", UserID: "u1", RemoteID: "r1", Name: "n", Login: "1",
		PasswordEncrypted: "x", Server: "s", Platform: "mt4",
		State: "DEPLOYING", ConnectionStatus: "DISCONNECTED",
	}); err != nil {
		t.Fatal(err)
	}

	// CONNECTED while not DEPLOYED is rejected.
	if err := q.UpdateAccountState(ctx, "a1", "UNDEPLOYED", "CONNECTED"); err == nil {
		t.Fatal("expected invariant violation error")
	}

	if err := q.UpdateAccountState(ctx, "a1", "DEPLOYED", "CONNECTED"); err != nil {
		t.Fatalf("valid transition rejected: %v", err)
	}
}

func TestRiskSettingsUpsertOverwrites(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	if _, err := q.GetRiskSettings(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	s := RiskSettings{
		AccountID: "a1", MaxDrawdown: 0.1, MaxExposurePerPair: 0.05,
		MinEquity: 100, MarginCallLevel: 0.5, RiskPerTrade: 0.02, MaxLotSize: 10,
	}
	if err := q.UpsertRiskSettings(ctx, s); err != nil {
		t.Fatal(err)
	}

	s.MaxDrawdown = 0.2
	if err := q.UpsertRiskSettings(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := q.GetRiskSettings(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxDrawdown != 0.2 {
		t.Fatalf("max_drawdown=%v after overwrite, expected 0.2", got.MaxDrawdown)
	}
}

func TestBrokerServerHealthUpdate(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	if err := q.UpsertBrokerServer(ctx, BrokerServer{
		BrokerName: "ICMarkets", ServerName: "ICMarkets-Demo01",
		Address: "demo01.icmarkets.com:443", Platform: "mt5", Region: "demo", Reliability: 1.0,
	}); err != nil {
		t.Fatal(err)
	}

	servers, err := q.ListActiveServers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 {
		t.Fatalf("len=%d", len(servers))
	}
	if servers[0].LastCheckedAt != nil {
		t.Fatal("fresh server should have no last_checked_at")
	}

	if err := q.UpdateServerHealth(ctx, servers[0].ID, 0.8, "DISCONNECTED"); err != nil {
		t.Fatal(err)
	}
	servers, err = q.ListActiveServers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if servers[0].Reliability != 0.8 || servers[0].LastCheckedAt == nil {
		t.Fatalf("health not recorded: %+v", servers[0])
	}
}

func TestAuditBatchInsert(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	now := time.Now().UTC()
	events := []AuditEvent{
		{ID: "e1", EventType: "account.created", Severity: "INFO", UserID: "u1", AccountID: "a1", CreatedAt: now},
		{ID: "e2", EventType: "connection.lost", Severity: "ERROR", UserID: "u1", AccountID: "a1", CreatedAt: now.Add(time.Second)},
	}
	if err := q.InsertAuditEvents(ctx, events); err != nil {
		t.Fatal(err)
	}

	got, err := q.ListAuditEvents(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].ID != "e2" {
		t.Fatalf("expected newest first, got %s", got[0].ID)
	}

	// Duplicate ids roll the whole batch back.
	err = q.InsertAuditEvents(ctx, []AuditEvent{
		{ID: "e3", EventType: "x", Severity: "INFO", UserID: "u1", CreatedAt: now},
		{ID: "e1", EventType: "x", Severity: "INFO", UserID: "u1", CreatedAt: now},
	})
	if err == nil {
		t.Fatal("expected constraint error")
	}
	got, _ = q.ListAuditEvents(ctx, "u1", 10)
	if len(got) != 2 {
		t.Fatalf("partial batch committed: len=%d", len(got))
	}
}
