package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testToken = "0123456789abcdef0123456789abcdef" // 32 chars

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Token:          testToken,
		BaseURL:        srv.URL,
		MetricsURL:     srv.URL,
		SocketURL:      "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/ws",
		RetryBaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientTokenValidation(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too short", "short-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(Config{Token: tt.token})
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, expected ValidationError", err)
			}
		})
	}
}

func TestCreateAccountValidatesBeforeNetwork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := testClient(t, srv)
	reqs := []NewAccountRequest{
		{Password: "p", Server: "s", Platform: PlatformMT5, Format: "default"},
		{Login: "l", Server: "s", Platform: PlatformMT5, Format: "default"},
		{Login: "l", Password: "p", Platform: PlatformMT5, Format: "default"},
		{Login: "l", Password: "p", Server: "s", Platform: "mt6", Format: "default"},
	}
	for i, req := range reqs {
		_, err := c.CreateAccount(context.Background(), req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("request %d: got %v, expected ValidationError", i, err)
		}
	}
	if hits != 0 {
		t.Fatalf("remote API called %d times for invalid input", hits)
	}
}

func TestCreateAccountSendsAuthToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("auth-token"); got != testToken {
			t.Errorf("auth-token header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(TradingAccount{ID: "acct-1", State: StateDeploying})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	acct, err := c.CreateAccount(context.Background(), NewAccountRequest{
		Login: "100", Password: "pw", Server: "Broker-Demo", Platform: PlatformMT5, Format: "default",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acct.ID != "acct-1" || acct.State != StateDeploying {
		t.Fatalf("unexpected account: %+v", acct)
	}
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", 401, `{"error":"UnauthorizedError","message":"bad token"}`, func(err error) bool {
			var e *AuthenticationError
			return errors.As(err, &e)
		}},
		{"too many requests", 429, `{"error":"TooManyRequestsError","message":"slow down"}`, func(err error) bool {
			var e *RateLimitError
			return errors.As(err, &e)
		}},
		{"validation", 400, `{"error":"ValidationError","message":"bad login"}`, func(err error) bool {
			var e *ValidationError
			return errors.As(err, &e)
		}},
		{"unexpected", 500, `{"error":"InternalServerError","message":"boom"}`, func(err error) bool {
			var e *APIError
			return errors.As(err, &e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := testClient(t, srv)
			_, err := c.GetAccount(context.Background(), "acct-1")
			if !tt.check(err) {
				t.Fatalf("got %T: %v", err, err)
			}
		})
	}
}

func TestRetriesConnectionFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(TradingAccount{ID: "acct-1", State: StateDeployed})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	acct, err := c.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetAccount after retries: %v", err)
	}
	if acct.State != StateDeployed {
		t.Fatalf("state=%s", acct.State)
	}
	if hits != 3 {
		t.Fatalf("hits=%d, expected 3 (two retries)", hits)
	}
}

func TestAuthErrorsAreNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"UnauthorizedError","message":"nope"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.GetAccount(context.Background(), "acct-1")
	var ae *AuthenticationError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v", err)
	}
	if hits != 1 {
		t.Fatalf("hits=%d, auth errors must not retry", hits)
	}
}

func TestSearchServersUsesCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode([]BrokerServer{{Name: "ICMarkets-Demo01", Address: "demo01.icmarkets.com:443"}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	for i := 0; i < 3; i++ {
		servers, err := c.SearchServers(context.Background(), "ICMarkets", PlatformMT5)
		if err != nil {
			t.Fatalf("SearchServers: %v", err)
		}
		if len(servers) != 1 || servers[0].Platform != PlatformMT5 {
			t.Fatalf("unexpected servers: %+v", servers)
		}
	}
	if hits != 1 {
		t.Fatalf("hits=%d, expected 1 (cache should serve repeats)", hits)
	}
}

func TestGetMetricsUsesCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"metrics":{"balance":1000,"equity":990}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	for i := 0; i < 2; i++ {
		m, err := c.GetMetrics(context.Background(), "acct-1")
		if err != nil {
			t.Fatalf("GetMetrics: %v", err)
		}
		if m.Balance != 1000 {
			t.Fatalf("balance=%v", m.Balance)
		}
	}
	if hits != 1 {
		t.Fatalf("hits=%d, expected 1", hits)
	}
}

func TestRateLimiterGatesOperations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TradingAccount{ID: "a"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		Token:       testToken,
		BaseURL:     srv.URL,
		MetricsURL:  srv.URL,
		MaxRequests: 2,
		RateWindow:  time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.GetAccount(ctx, "a"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	_, err = c.GetAccount(ctx, "a")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("got %v, expected RateLimitError", err)
	}
}
