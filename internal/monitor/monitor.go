// Package monitor periodically re-validates known broker servers and keeps
// their reliability scores fresh in the database.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"journal-core/internal/events"
	"journal-core/pkg/db"
)

const (
	defaultInterval = 5 * time.Minute
	probeRetries    = 3
	probeRetryDelay = time.Second

	reliabilityReward  = 0.1
	reliabilityPenalty = 0.2
)

// Prober reports whether a server address answers a liveness check.
type Prober interface {
	PingServer(ctx context.Context, address string) bool
}

// Store is the persistence surface the monitor needs.
type Store interface {
	ListActiveServers(ctx context.Context) ([]db.BrokerServer, error)
	UpdateServerHealth(ctx context.Context, id int64, reliability float64, connectionStatus string) error
}

// ServerMonitor probes every active server on a fixed interval, rewarding
// reachable servers and penalizing unreachable ones.
type ServerMonitor struct {
	store    Store
	prober   Prober
	bus      *events.Bus
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// test hook
	sleep func(time.Duration)
}

// New creates a ServerMonitor. A zero interval falls back to 5 minutes.
func New(store Store, prober Prober, bus *events.Bus, interval time.Duration) *ServerMonitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &ServerMonitor{
		store:    store,
		prober:   prober,
		bus:      bus,
		interval: interval,
		sleep:    time.Sleep,
	}
}

// Start launches the background loop. Starting twice warns and does nothing.
func (m *ServerMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		log.Println("⚠️ server monitor already running; ignoring second start")
		return
	}
	m.running = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(ctx)
	log.Printf("✓ server monitor started (interval %s)", m.interval)
}

// Stop halts the loop. Stopping when not running is a no-op.
func (m *ServerMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	log.Println("✓ server monitor stopped")
}

// Running reports whether the loop is active.
func (m *ServerMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *ServerMonitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll probes every active server once and persists the outcome.
func (m *ServerMonitor) CheckAll(ctx context.Context) {
	servers, err := m.store.ListActiveServers(ctx)
	if err != nil {
		log.Printf("❌ server monitor: listing active servers: %v", err)
		return
	}

	for _, srv := range servers {
		if ctx.Err() != nil {
			return
		}
		m.checkOne(ctx, srv)
	}
}

// checkOne probes with retries and adjusts the reliability score. The
// last_checked_at and connection_status columns are updated regardless of
// outcome so stale rows are visible.
func (m *ServerMonitor) checkOne(ctx context.Context, srv db.BrokerServer) {
	alive := false
	for attempt := 1; attempt <= probeRetries; attempt++ {
		if m.prober.PingServer(ctx, srv.Address) {
			alive = true
			break
		}
		if attempt < probeRetries {
			m.sleep(probeRetryDelay)
		}
	}

	reliability := srv.Reliability
	status := "offline"
	if alive {
		reliability += reliabilityReward
		if reliability > 1.0 {
			reliability = 1.0
		}
		status = "online"
	} else {
		reliability -= reliabilityPenalty
		if reliability < 0 {
			reliability = 0
		}
	}

	if err := m.store.UpdateServerHealth(ctx, srv.ID, reliability, status); err != nil {
		log.Printf("❌ server monitor: updating %s: %v", srv.ServerName, err)
		return
	}

	if reliability != srv.Reliability && m.bus != nil {
		m.bus.Publish(events.EventServerHealthChange, events.ConnectionPayload{
			Status: status,
			Reason: srv.ServerName,
		})
	}
	if !alive {
		log.Printf("⚠️ server monitor: %s unreachable, reliability now %.1f", srv.ServerName, reliability)
	}
}
