package metaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is the JSON envelope exchanged over the duplex socket. Type
// discriminates auth, ping/pong, authenticated, error and domain events.
type Frame struct {
	Type      string          `json:"type"`
	AccountID string          `json:"accountId,omitempty"`
	Token     string          `json:"token,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SocketConfig holds the knobs of a SocketClient.
type SocketConfig struct {
	URL               string // wss://<server>/ws
	Token             string
	AccountID         string
	ClientID          string
	HeartbeatInterval time.Duration // default 30s
	ReconnectInterval time.Duration // default 5s
	MaxReconnects     int           // default 5
}

func (c *SocketConfig) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
}

// SocketClient maintains a persistent duplex connection with heartbeat,
// an outbound queue drained once authenticated, and reconnect-on-close with
// a fixed delay up to a capped attempt count.
type SocketClient struct {
	cfg     SocketConfig
	dialer  *websocket.Dialer
	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	queue         []Frame
	authenticated bool
	reconnects    int
	closed        bool
	authCh        chan error
	reconnTimer   *time.Timer
	stopHeartbeat chan struct{}

	fatalOnce sync.Once

	// OnEvent receives domain frames (anything beyond pong/authenticated/
	// error). Optional.
	OnEvent func(Frame)
	// OnFatal fires exactly once when reconnect attempts are exhausted.
	// Optional.
	OnFatal func()
}

// NewSocketClient builds a client; Connect must be called to open the link.
func NewSocketClient(cfg SocketConfig) *SocketClient {
	cfg.applyDefaults()
	return &SocketClient{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
	}
}

// Connect dials the endpoint, sends the authentication frame before anything
// else, and starts the read and heartbeat loops.
func (s *SocketClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &ConnectionError{Message: "socket client is closed"}
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.authCh = make(chan error, 1)
	s.mu.Unlock()

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return &ConnectionError{Message: "dial " + s.cfg.URL, Err: err}
	}

	auth := Frame{
		Type:      "auth",
		Token:     s.cfg.Token,
		AccountID: s.cfg.AccountID,
		ClientID:  s.cfg.ClientID,
	}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return &ConnectionError{Message: "send auth frame", Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.authenticated = false
	s.stopHeartbeat = make(chan struct{})
	hb := s.stopHeartbeat
	s.mu.Unlock()

	go s.readLoop(conn)
	go s.heartbeatLoop(conn, hb)

	return nil
}

// WaitAuthenticated blocks until the server acknowledges the auth frame,
// reports an error frame, or ctx expires.
func (s *SocketClient) WaitAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	ch := s.authCh
	s.mu.Unlock()
	if ch == nil {
		return &ConnectionError{Message: "not connected"}
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers a frame, queueing it while the link is down or still
// unauthenticated. Queued frames flush in order after authentication.
func (s *SocketClient) Send(f Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &ConnectionError{Message: "socket client is closed"}
	}
	if s.conn == nil || !s.authenticated {
		s.queue = append(s.queue, f)
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.mu.Unlock()

	return s.writeJSON(conn, f)
}

// writeJSON serializes writes; gorilla allows one concurrent writer only.
func (s *SocketClient) writeJSON(conn *websocket.Conn, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (s *SocketClient) readLoop(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		s.dispatch(f)
	}
}

func (s *SocketClient) dispatch(f Frame) {
	switch f.Type {
	case "pong":
		// Heartbeat acknowledged; nothing to do.
	case "authenticated":
		s.onAuthenticated()
	case "error":
		log.Printf("socket error frame: %s", f.Message)
		s.mu.Lock()
		ch := s.authCh
		auth := s.authenticated
		s.mu.Unlock()
		if !auth && ch != nil {
			select {
			case ch <- &AuthenticationError{Message: f.Message}:
			default:
			}
		}
	default:
		if s.OnEvent != nil {
			s.OnEvent(f)
		} else {
			log.Printf("socket: unknown frame type %q", f.Type)
		}
	}
}

func (s *SocketClient) onAuthenticated() {
	s.mu.Lock()
	s.authenticated = true
	s.reconnects = 0
	pending := s.queue
	s.queue = nil
	conn := s.conn
	ch := s.authCh
	s.mu.Unlock()

	if ch != nil {
		select {
		case ch <- nil:
		default:
		}
	}

	for _, f := range pending {
		if err := s.writeJSON(conn, f); err != nil {
			log.Printf("socket: flush queued frame: %v", err)
			return
		}
	}
}

func (s *SocketClient) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.writeJSON(conn, Frame{Type: "ping"}); err != nil {
				log.Printf("socket: heartbeat write: %v", err)
				return
			}
		}
	}
}

func (s *SocketClient) handleDisconnect(conn *websocket.Conn, cause error) {
	_ = conn.Close()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.authenticated = false
		if s.stopHeartbeat != nil {
			close(s.stopHeartbeat)
			s.stopHeartbeat = nil
		}
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	log.Printf("socket disconnected (account %s): %v", s.cfg.AccountID, cause)
	s.scheduleReconnect()
}

func (s *SocketClient) scheduleReconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.reconnects >= s.cfg.MaxReconnects {
		s.mu.Unlock()
		s.fatalOnce.Do(func() {
			log.Printf("socket: giving up after %d reconnect attempts (account %s)", s.cfg.MaxReconnects, s.cfg.AccountID)
			if s.OnFatal != nil {
				s.OnFatal()
			}
		})
		return
	}
	s.reconnects++
	attempt := s.reconnects
	s.reconnTimer = time.AfterFunc(s.cfg.ReconnectInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReconnectInterval*2)
		defer cancel()
		if err := s.Connect(ctx); err != nil {
			log.Printf("socket: reconnect attempt %d/%d failed: %v", attempt, s.cfg.MaxReconnects, err)
			s.scheduleReconnect()
		}
	})
	s.mu.Unlock()
	log.Printf("socket: reconnect attempt %d/%d in %s", attempt, s.cfg.MaxReconnects, s.cfg.ReconnectInterval)
}

// Disconnect tears down the connection, the heartbeat and any pending
// reconnect timer. The client cannot be reused afterwards.
func (s *SocketClient) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.authenticated = false
	if s.reconnTimer != nil {
		s.reconnTimer.Stop()
		s.reconnTimer = nil
	}
	if s.stopHeartbeat != nil {
		close(s.stopHeartbeat)
		s.stopHeartbeat = nil
	}
	s.mu.Unlock()

	if conn != nil {
		_ = s.writeJSON(conn, Frame{Type: "close"})
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close socket: %w", err)
		}
	}
	return nil
}

// Connected reports whether an authenticated link is currently up.
func (s *SocketClient) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.authenticated
}
