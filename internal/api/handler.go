package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"journal-core/internal/audit"
	"journal-core/internal/conntest"
	"journal-core/internal/discovery"
	"journal-core/internal/events"
	"journal-core/internal/risk"
	"journal-core/pkg/db"
	"journal-core/pkg/metaapi"
)

// Remote is the subset of the provisioning client the HTTP layer calls.
type Remote interface {
	CreateAccount(ctx context.Context, req metaapi.NewAccountRequest) (metaapi.TradingAccount, error)
	GetAccount(ctx context.Context, accountID string) (metaapi.TradingAccount, error)
	DeployAccount(ctx context.Context, accountID string) (metaapi.TradingAccount, error)
	UndeployAccount(ctx context.Context, accountID string) (metaapi.TradingAccount, error)
	RemoveAccount(ctx context.Context, accountID string) error
	GetMetrics(ctx context.Context, accountID string) (metaapi.AccountMetrics, error)
	GetHistoricalTrades(ctx context.Context, accountID string, from, to time.Time) ([]metaapi.HistoricalTrade, error)
	RateUsage() (used, limit int)
	BreakerStates() (provisioning, metrics metaapi.BreakerState)
}

// Crypter encrypts account passwords before they reach the database.
type Crypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Server wires HTTP endpoints around the provisioning client and the store.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Queries   *db.Queries
	Remote    Remote
	RiskMgr   *risk.Manager
	Discovery *discovery.ServerDiscovery
	Tester    *conntest.Tester
	Audit     *audit.Logger
	Cipher    Crypter
	Profiles  map[string]db.RiskSettings

	httpSrv *http.Server
}

func NewServer(bus *events.Bus, queries *db.Queries, remote Remote, riskMgr *risk.Manager, disc *discovery.ServerDiscovery, tester *conntest.Tester, auditLog *audit.Logger, cipher Crypter, profiles map[string]db.RiskSettings) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Queries:   queries,
		Remote:    remote,
		RiskMgr:   riskMgr,
		Discovery: disc,
		Tester:    tester,
		Audit:     auditLog,
		Cipher:    cipher,
		Profiles:  profiles,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/accounts", s.listAccounts)
		api.POST("/accounts", s.createAccount)
		api.GET("/accounts/:id", s.getAccount)
		api.DELETE("/accounts/:id", s.removeAccount)
		api.POST("/accounts/:id/deploy", s.deployAccount)
		api.POST("/accounts/:id/undeploy", s.undeployAccount)
		api.GET("/accounts/:id/stats", s.getAccountStats)
		api.GET("/accounts/:id/trades", s.getAccountTrades)

		api.GET("/accounts/:id/risk", s.getRiskSettings)
		api.PUT("/accounts/:id/risk", s.saveRiskSettings)
		api.POST("/accounts/:id/risk/check", s.checkRiskLimits)
		api.POST("/accounts/:id/risk/profile", s.applyRiskProfile)
		api.GET("/risk-profiles", s.listRiskProfiles)

		api.GET("/servers", s.searchServers)
		api.POST("/connection-test", s.testConnection)
		api.GET("/audit", s.listAuditEvents)
	}
}

func (s *Server) health(c *gin.Context) {
	used, limit := s.Remote.RateUsage()
	prov, metr := s.Remote.BreakerStates()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rate": gin.H{
			"used":  used,
			"limit": limit,
		},
		"breakers": gin.H{
			"provisioning": prov.String(),
			"metrics":      metr.String(),
		},
	})
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
