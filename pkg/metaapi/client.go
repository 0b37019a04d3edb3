// Package metaapi implements a resilient client for the remote MetaTrader
// account provisioning and metrics service. Every call funnels through a
// shared sliding-window rate limiter and a per-resource circuit breaker;
// transient connection failures retry with exponential backoff, results are
// cached with per-domain TTLs, and live account connections are pooled one
// per account id.
package metaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"journal-core/pkg/cache"
)

const (
	defaultBaseURL    = "https://mt-provisioning.agiliumtrade.agiliumtrade.ai"
	defaultMetricsURL = "https://metrics-api-v1.agiliumtrade.agiliumtrade.ai"

	defaultRequestTimeout = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second

	statsCacheTTL  = time.Hour
	brokerCacheTTL = time.Hour
	serverCacheTTL = 30 * 24 * time.Hour

	deployPollInterval = 5 * time.Second
)

// Config holds client settings. Token is required and must be at least 32
// characters; everything else has a default.
type Config struct {
	Token      string
	BaseURL    string
	MetricsURL string
	SocketURL  string
	ClientID   string

	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// Rate limiter: max requests per sliding window.
	MaxRequests int
	RateWindow  time.Duration

	// Socket knobs, forwarded to pooled connections.
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	MaxReconnects     int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.MetricsURL == "" {
		c.MetricsURL = defaultMetricsURL
	}
	if c.SocketURL == "" {
		u, err := url.Parse(c.BaseURL)
		if err == nil {
			c.SocketURL = "wss://" + u.Host + "/ws"
		}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = 60
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
}

// Client is the façade over the remote provisioning and metrics APIs.
// Construct one per token with NewClient; it is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	limiter *RateLimiter
	// One breaker per logical resource so a flapping metrics API cannot trip
	// provisioning calls, and vice versa.
	provisioningBreaker *CircuitBreaker
	metricsBreaker      *CircuitBreaker

	pool *ConnectionPool

	statsCache  *cache.Cache[AccountMetrics]
	tradesCache *cache.Cache[[]HistoricalTrade]
	brokerCache *cache.Cache[BrokerInfo]
	serverCache *cache.Cache[[]BrokerServer]

	// OnConnectionLost fires when a pooled socket gives up reconnecting.
	OnConnectionLost func(accountID string)
}

// BrokerInfo describes broker-level features for a server.
type BrokerInfo struct {
	Name              string   `json:"name"`
	Company           string   `json:"company"`
	Platform          Platform `json:"platform"`
	HedgingAllowed    bool     `json:"hedgingAllowed"`
	MaxLeverage       int      `json:"maxLeverage"`
	SupportedSymbols  []string `json:"supportedSymbols,omitempty"`
	MinDepositAmount  float64  `json:"minDeposit"`
	DemoAccountsMaybe bool     `json:"demoAccounts"`
}

// NewClient validates the token and builds a ready client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &ValidationError{Field: "token", Message: "must not be empty"}
	}
	if len(cfg.Token) < 32 {
		return nil, &ValidationError{Field: "token", Message: "must be at least 32 characters"}
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:                 cfg,
		httpClient:          &http.Client{Timeout: cfg.RequestTimeout},
		limiter:             NewRateLimiter(cfg.MaxRequests, cfg.RateWindow, FailFast),
		provisioningBreaker: NewCircuitBreaker(5, 60*time.Second),
		metricsBreaker:      NewCircuitBreaker(5, 60*time.Second),
		statsCache:          cache.New[AccountMetrics](statsCacheTTL),
		tradesCache:         cache.New[[]HistoricalTrade](statsCacheTTL),
		brokerCache:         cache.New[BrokerInfo](brokerCacheTTL),
		serverCache:         cache.New[[]BrokerServer](serverCacheTTL),
	}
	c.pool = NewConnectionPool(c.dialSocket, func(accountID string) {
		if c.OnConnectionLost != nil {
			c.OnConnectionLost(accountID)
		}
	})
	return c, nil
}

func (c *Client) dialSocket(accountID string) *SocketClient {
	return NewSocketClient(SocketConfig{
		URL:               c.cfg.SocketURL,
		Token:             c.cfg.Token,
		AccountID:         accountID,
		ClientID:          c.cfg.ClientID,
		HeartbeatInterval: c.cfg.HeartbeatInterval,
		ReconnectInterval: c.cfg.ReconnectInterval,
		MaxReconnects:     c.cfg.MaxReconnects,
	})
}

// execute is the single funnel for remote calls: rate limiter gate, then the
// breaker, with exponential backoff retries for connection-level failures.
func (c *Client) execute(ctx context.Context, breaker *CircuitBreaker, op func(context.Context) error) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay << (attempt - 1)
			log.Printf("metaapi: retrying in %s (attempt %d/%d): %v", delay, attempt+1, c.cfg.RetryAttempts, err)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = breaker.Execute(ctx, op)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

// doJSON issues a request against the provisioning or metrics host, decodes
// the response into out (when non-nil), and translates remote failures into
// the local error taxonomy.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("auth-token", c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if c.cfg.ClientID != "" {
		req.Header.Set("client-id", c.cfg.ClientID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectionError{Message: method + " " + rawURL, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		var re remoteError
		_ = json.Unmarshal(raw, &re)
		msg := re.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		code := re.ID
		if code == "" {
			code = re.Error
		}
		return translateError(res.StatusCode, code, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{Status: res.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// CreateAccount validates the required fields and provisions a new trading
// account. No network call happens until validation passes.
func (c *Client) CreateAccount(ctx context.Context, req NewAccountRequest) (TradingAccount, error) {
	if req.Format == "" {
		req.Format = "default"
	}
	if err := validateNewAccount(req); err != nil {
		return TradingAccount{}, err
	}

	var created TradingAccount
	err := c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/users/current/accounts", req, &created)
	})
	if err != nil {
		return TradingAccount{}, err
	}
	created.Login = req.Login
	created.Server = req.Server
	created.Platform = req.Platform
	return created, nil
}

func validateNewAccount(req NewAccountRequest) error {
	switch {
	case strings.TrimSpace(req.Login) == "":
		return &ValidationError{Field: "login", Message: "is required"}
	case strings.TrimSpace(req.Password) == "":
		return &ValidationError{Field: "password", Message: "is required"}
	case strings.TrimSpace(req.Server) == "":
		return &ValidationError{Field: "server", Message: "is required"}
	case !req.Platform.Valid():
		return &ValidationError{Field: "platform", Message: "must be mt4 or mt5"}
	}
	return nil
}

// GetAccount fetches the current remote state of an account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (TradingAccount, error) {
	var acct TradingAccount
	err := c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, c.accountURL(accountID), nil, &acct)
	})
	return acct, err
}

// DeployAccount starts the account on the remote service and polls until it
// reports DEPLOYED or ctx expires.
func (c *Client) DeployAccount(ctx context.Context, accountID string) (TradingAccount, error) {
	err := c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.accountURL(accountID)+"/deploy", nil, nil)
	})
	if err != nil {
		return TradingAccount{}, err
	}
	return c.waitForState(ctx, accountID, StateDeployed)
}

// UndeployAccount stops the account and evicts its pooled connection.
func (c *Client) UndeployAccount(ctx context.Context, accountID string) (TradingAccount, error) {
	c.pool.Evict(accountID)
	err := c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.accountURL(accountID)+"/undeploy", nil, nil)
	})
	if err != nil {
		return TradingAccount{}, err
	}
	return c.waitForState(ctx, accountID, StateUndeployed)
}

// RemoveAccount deletes the account remotely after dropping its connection.
func (c *Client) RemoveAccount(ctx context.Context, accountID string) error {
	c.pool.Evict(accountID)
	c.statsCache.Delete(accountID)
	return c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodDelete, c.accountURL(accountID), nil, nil)
	})
}

// waitForState polls the account until it reaches want. The remote state
// machine is eventually consistent after deploy/undeploy commands.
func (c *Client) waitForState(ctx context.Context, accountID string, want AccountState) (TradingAccount, error) {
	ticker := time.NewTicker(deployPollInterval)
	defer ticker.Stop()

	for {
		acct, err := c.GetAccount(ctx, accountID)
		if err != nil {
			return TradingAccount{}, err
		}
		if acct.State == want {
			return acct, nil
		}

		select {
		case <-ctx.Done():
			return acct, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Connect returns the pooled live connection for an account, establishing it
// when absent. Concurrent callers share one connect attempt.
func (c *Client) Connect(ctx context.Context, accountID string) (*SocketClient, error) {
	return c.pool.Get(ctx, accountID)
}

// SearchServers queries the known MT servers list. Results are cached for 30
// days per query and platform; broker server lists change rarely.
func (c *Client) SearchServers(ctx context.Context, query string, platform Platform) ([]BrokerServer, error) {
	key := string(platform) + ":" + strings.ToLower(query)
	if servers, ok := c.serverCache.Get(key); ok {
		return servers, nil
	}

	var servers []BrokerServer
	u := fmt.Sprintf("%s/known-mt-servers/%s/search?query=%s", c.cfg.BaseURL, platform, url.QueryEscape(query))
	err := c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, u, nil, &servers)
	})
	if err != nil {
		return nil, err
	}
	for i := range servers {
		servers[i].Platform = platform
	}
	c.serverCache.Set(key, servers)
	return servers, nil
}

// ValidateCredentials performs the remote dry-run credential check. It never
// creates or deploys an account.
func (c *Client) ValidateCredentials(ctx context.Context, login, password, server string, platform Platform) error {
	body := map[string]string{
		"login":    login,
		"password": password,
		"server":   server,
		"platform": string(platform),
	}
	return c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/known-mt-servers/validate", body, nil)
	})
}

// GetBrokerInfo returns broker features for a server name, cached for 1h.
func (c *Client) GetBrokerInfo(ctx context.Context, server string, platform Platform) (BrokerInfo, error) {
	key := string(platform) + ":" + strings.ToLower(server)
	if info, ok := c.brokerCache.Get(key); ok {
		return info, nil
	}

	var info BrokerInfo
	u := fmt.Sprintf("%s/known-mt-servers/%s/%s/features", c.cfg.BaseURL, platform, url.PathEscape(server))
	err := c.execute(ctx, c.provisioningBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, u, nil, &info)
	})
	if err != nil {
		return BrokerInfo{}, err
	}
	c.brokerCache.Set(key, info)
	return info, nil
}

// GetMetrics fetches account metrics through the metrics API, cached for 1h.
func (c *Client) GetMetrics(ctx context.Context, accountID string) (AccountMetrics, error) {
	if m, ok := c.statsCache.Get(accountID); ok {
		return m, nil
	}

	var wrapper struct {
		Metrics AccountMetrics `json:"metrics"`
	}
	u := fmt.Sprintf("%s/users/current/accounts/%s/metrics", c.cfg.MetricsURL, accountID)
	err := c.execute(ctx, c.metricsBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, u, nil, &wrapper)
	})
	if err != nil {
		return AccountMetrics{}, err
	}
	c.statsCache.Set(accountID, wrapper.Metrics)
	return wrapper.Metrics, nil
}

// GetHistoricalTrades fetches closed trades in [from, to), cached for 1h per
// account and range.
func (c *Client) GetHistoricalTrades(ctx context.Context, accountID string, from, to time.Time) ([]HistoricalTrade, error) {
	key := fmt.Sprintf("%s:%s:%s", accountID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if trades, ok := c.tradesCache.Get(key); ok {
		return trades, nil
	}

	var wrapper struct {
		Trades []HistoricalTrade `json:"trades"`
	}
	u := fmt.Sprintf("%s/users/current/accounts/%s/historical-trades/%s/%s",
		c.cfg.MetricsURL, accountID,
		url.PathEscape(from.UTC().Format(time.RFC3339)),
		url.PathEscape(to.UTC().Format(time.RFC3339)))
	err := c.execute(ctx, c.metricsBreaker, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, u, nil, &wrapper)
	})
	if err != nil {
		return nil, err
	}
	c.tradesCache.Set(key, wrapper.Trades)
	return wrapper.Trades, nil
}

// Close disconnects every pooled connection.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) accountURL(accountID string) string {
	return c.cfg.BaseURL + "/users/current/accounts/" + url.PathEscape(accountID)
}

// RateUsage exposes limiter occupancy for the status endpoint.
func (c *Client) RateUsage() (used, limit int) {
	return c.limiter.Usage()
}

// BreakerStates reports provisioning and metrics breaker states.
func (c *Client) BreakerStates() (provisioning, metrics BreakerState) {
	return c.provisioningBreaker.State(), c.metricsBreaker.State()
}
