package metaapi

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"journal-core/pkg/singleflight"
)

// connectTimeout caps how long a pooled connect attempt may take, racing the
// handle's own dial and auth handshake.
const connectTimeout = 30 * time.Second

// ConnectionPool hands out one live socket connection per account id.
// Concurrent callers for the same account coalesce onto a single connect
// attempt; completed handles are reused until explicitly evicted.
type ConnectionPool struct {
	mu      sync.Mutex
	conns   map[string]*SocketClient
	flight  *singleflight.Group[*SocketClient]
	dial    func(accountID string) *SocketClient
	onFatal func(accountID string)
}

// NewConnectionPool creates a pool. dial builds an unconnected client for an
// account; onFatal (optional) fires when a pooled connection exhausts its
// reconnect attempts.
func NewConnectionPool(dial func(accountID string) *SocketClient, onFatal func(accountID string)) *ConnectionPool {
	return &ConnectionPool{
		conns:   make(map[string]*SocketClient),
		flight:  singleflight.NewGroup[*SocketClient](),
		dial:    dial,
		onFatal: onFatal,
	}
}

// Get returns the pooled connection for accountID, establishing it if
// needed. Connecting is bounded by a 30s timeout regardless of the caller's
// context deadline.
func (p *ConnectionPool) Get(ctx context.Context, accountID string) (*SocketClient, error) {
	p.mu.Lock()
	if sc, ok := p.conns[accountID]; ok {
		p.mu.Unlock()
		return sc, nil
	}
	p.mu.Unlock()

	return p.flight.Do(ctx, accountID, func() (*SocketClient, error) {
		connectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		sc := p.dial(accountID)
		sc.OnFatal = func() {
			p.Evict(accountID)
			if p.onFatal != nil {
				p.onFatal(accountID)
			}
		}

		if err := sc.Connect(connectCtx); err != nil {
			return nil, err
		}
		if err := sc.WaitAuthenticated(connectCtx); err != nil {
			_ = sc.Disconnect()
			if connectCtx.Err() != nil {
				return nil, &ConnectionError{Message: fmt.Sprintf("connect to account %s timed out", accountID)}
			}
			return nil, err
		}

		p.mu.Lock()
		p.conns[accountID] = sc
		p.mu.Unlock()

		return sc, nil
	})
}

// Evict removes and closes the pooled connection for accountID, if any.
func (p *ConnectionPool) Evict(accountID string) {
	p.mu.Lock()
	sc, ok := p.conns[accountID]
	delete(p.conns, accountID)
	p.mu.Unlock()
	p.flight.Forget(accountID)

	if ok {
		if err := sc.Disconnect(); err != nil {
			log.Printf("pool: evict %s: %v", accountID, err)
		}
	}
}

// Len returns the number of live pooled connections.
func (p *ConnectionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close disconnects every pooled connection. Used on shutdown.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*SocketClient)
	p.mu.Unlock()

	var failed []string
	for id, sc := range conns {
		if err := sc.Disconnect(); err != nil {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		log.Printf("pool: close errors for accounts: %s", strings.Join(failed, ", "))
	}
}
