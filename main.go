package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"journal-core/internal/api"
	"journal-core/internal/audit"
	"journal-core/internal/conntest"
	"journal-core/internal/discovery"
	"journal-core/internal/events"
	"journal-core/internal/monitor"
	"journal-core/internal/risk"
	"journal-core/pkg/config"
	"journal-core/pkg/crypto"
	"journal-core/pkg/db"
	"journal-core/pkg/ident"
	"journal-core/pkg/metaapi"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ config load failed: %v", err)
	}
	log.Printf("✓ config loaded (port %s, db %s)", cfg.Port, cfg.DBPath)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ db open failed: %v", err)
	}
	defer database.Close()
	if err := db.Init(database.DB); err != nil {
		log.Fatalf("❌ db init failed: %v", err)
	}
	queries := db.NewQueries(database.DB)

	cipher, err := crypto.NewFromEnv("JOURNAL_ENCRYPTION_KEY")
	if err != nil {
		log.Fatalf("❌ encryption key: %v", err)
	}

	clientID, err := ident.ClientID()
	if err != nil {
		log.Printf("⚠️ machine id unavailable, socket frames will be anonymous: %v", err)
	}

	bus := events.NewBus()

	auditLog := audit.NewLogger(queries, cfg.AuditBatchSize, cfg.AuditFlushInterval)
	defer auditLog.Close()

	client, err := metaapi.NewClient(metaapi.Config{
		Token:             cfg.MetaAPIToken,
		BaseURL:           cfg.MetaAPIBaseURL,
		MetricsURL:        cfg.MetaAPIMetricsURL,
		SocketURL:         cfg.MetaAPISocketURL,
		ClientID:          clientID,
		RequestTimeout:    cfg.RequestTimeout,
		MaxRequests:       cfg.MaxRequests,
		RateWindow:        cfg.RateWindow,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectInterval: cfg.ReconnectInterval,
		MaxReconnects:     cfg.MaxReconnects,
	})
	if err != nil {
		log.Fatalf("❌ provisioning client: %v", err)
	}
	defer client.Close()

	client.OnConnectionLost = func(accountID string) {
		log.Printf("⚠️ realtime connection lost for account %s", accountID)
		auditLog.Error(audit.EventConnectionFailed, "system", accountID, "socket gave up reconnecting")
		bus.Publish(events.EventConnectionLost, events.ConnectionPayload{
			AccountID: accountID,
			Status:    string(metaapi.StatusDisconnected),
			Reason:    "reconnect attempts exhausted",
		})
	}

	riskMgr := risk.NewManager(queries)
	var profiles map[string]db.RiskSettings
	if cfg.RiskProfilePath != "" {
		profiles, err = risk.LoadProfiles(cfg.RiskProfilePath)
		if err != nil {
			log.Printf("⚠️ risk profiles not loaded: %v", err)
		} else {
			log.Printf("✓ %d risk profiles loaded from %s", len(profiles), cfg.RiskProfilePath)
		}
	}

	disc := discovery.New(client)

	tester := conntest.New(client, func(ctx context.Context) (time.Duration, error) {
		probe := metaapi.NewSocketClient(metaapi.SocketConfig{
			URL:               cfg.MetaAPISocketURL,
			Token:             cfg.MetaAPIToken,
			ClientID:          clientID,
			HeartbeatInterval: cfg.HeartbeatInterval,
			MaxReconnects:     1,
		})
		defer probe.Disconnect()

		start := time.Now()
		if err := probe.Connect(ctx); err != nil {
			return 0, err
		}
		if err := probe.WaitAuthenticated(ctx); err != nil {
			return 0, err
		}
		return time.Since(start), nil
	})

	serverMonitor := monitor.New(queries, disc, bus, cfg.MonitorInterval)
	serverMonitor.Start()
	defer serverMonitor.Stop()

	server := api.NewServer(bus, queries, client, riskMgr, disc, tester, auditLog, cipher, profiles)
	go func() {
		log.Printf("✓ listening on :%s", cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("❌ api server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ shutdown: %v", err)
	}
}
