// Package conntest runs the pre-connection health check: network, broker,
// credentials, then a live socket handshake. Stages run in order and the
// pipeline stops at the first failure so the caller can show exactly what
// broke.
package conntest

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"journal-core/pkg/metaapi"
)

const (
	internetProbeURL     = "https://www.google.com/generate_204"
	internetProbeTimeout = 5 * time.Second

	brokerLookupRetries = 3
	brokerLookupDelay   = time.Second

	handshakeTimeout = 30 * time.Second
)

// Provider is the remote-client surface the tester needs.
type Provider interface {
	SearchServers(ctx context.Context, query string, platform metaapi.Platform) ([]metaapi.BrokerServer, error)
	ValidateCredentials(ctx context.Context, login, password, server string, platform metaapi.Platform) error
}

// Handshaker opens a duplex connection and waits for authentication,
// returning the observed round-trip time.
type Handshaker func(ctx context.Context) (time.Duration, error)

// Request identifies the account to test.
type Request struct {
	Login    string
	Password string
	Server   string
	Platform metaapi.Platform
}

// Result reports which stages passed. Reason describes the first failure.
type Result struct {
	Internet    bool          `json:"internet"`
	Broker      bool          `json:"broker"`
	Credentials bool          `json:"credentials"`
	Socket      bool          `json:"socket"`
	RTT         time.Duration `json:"rtt,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

// Passed reports whether every stage succeeded.
func (r Result) Passed() bool {
	return r.Internet && r.Broker && r.Credentials && r.Socket
}

// Tester orchestrates the 4-stage check.
type Tester struct {
	provider  Provider
	handshake Handshaker
	httpc     *http.Client
	probeURL  string

	// test hook
	sleep func(time.Duration)
}

// New creates a Tester. handshake may be nil when no socket endpoint is
// configured; the socket stage then fails with a clear reason.
func New(provider Provider, handshake Handshaker) *Tester {
	return &Tester{
		provider:  provider,
		handshake: handshake,
		httpc:     &http.Client{Timeout: internetProbeTimeout},
		probeURL:  internetProbeURL,
		sleep:     time.Sleep,
	}
}

// Run executes the stages in order, short-circuiting on the first failure.
func (t *Tester) Run(ctx context.Context, req Request) Result {
	var res Result

	if !t.checkInternet(ctx) {
		res.Reason = "no internet connectivity"
		return res
	}
	res.Internet = true

	if reason := t.checkBroker(ctx, req); reason != "" {
		res.Reason = reason
		return res
	}
	res.Broker = true

	if err := t.provider.ValidateCredentials(ctx, req.Login, req.Password, req.Server, req.Platform); err != nil {
		res.Reason = "credential validation failed: " + err.Error()
		return res
	}
	res.Credentials = true

	rtt, reason := t.checkSocket(ctx)
	if reason != "" {
		res.Reason = reason
		return res
	}
	res.Socket = true
	res.RTT = rtt

	log.Printf("✓ connection test passed for %s@%s (rtt %s)", req.Login, req.Server, rtt)
	return res
}

func (t *Tester) checkInternet(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

// checkBroker looks the server up in the provider's known-servers list,
// matching by case-insensitive name or address, with retries because the
// search endpoint is flaky under load.
func (t *Tester) checkBroker(ctx context.Context, req Request) string {
	want := strings.ToLower(req.Server)
	var lastErr error

	for attempt := 1; attempt <= brokerLookupRetries; attempt++ {
		servers, err := t.provider.SearchServers(ctx, req.Server, req.Platform)
		if err == nil {
			for _, s := range servers {
				if strings.ToLower(s.Name) == want || strings.ToLower(s.Address) == want {
					return ""
				}
			}
			return "broker server not found: " + req.Server
		}
		lastErr = err
		if attempt < brokerLookupRetries {
			t.sleep(brokerLookupDelay)
		}
	}
	return "broker lookup failed: " + lastErr.Error()
}

func (t *Tester) checkSocket(ctx context.Context) (time.Duration, string) {
	if t.handshake == nil {
		return 0, "no socket endpoint configured"
	}
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	rtt, err := t.handshake(hctx)
	if err != nil {
		return 0, "socket handshake failed: " + err.Error()
	}
	return rtt, ""
}
