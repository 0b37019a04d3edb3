package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"journal-core/internal/audit"
	"journal-core/internal/conntest"
	"journal-core/internal/events"
	"journal-core/internal/metrics"
	"journal-core/internal/risk"
	"journal-core/pkg/db"
	"journal-core/pkg/metaapi"
)

type createAccountRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=120"`
	Login    string `json:"login" binding:"required,min=1"`
	Password string `json:"password" binding:"required,min=1"`
	Server   string `json:"server" binding:"required,min=1"`
	Platform string `json:"platform" binding:"required,oneof=mt4 mt5"`
	Magic    int    `json:"magic"`
}

type riskSettingsRequest struct {
	MaxDrawdown        float64  `json:"max_drawdown" binding:"required"`
	MaxExposurePerPair float64  `json:"max_exposure_per_pair" binding:"required"`
	MinEquity          float64  `json:"min_equity"`
	MarginCallLevel    float64  `json:"margin_call_level" binding:"required"`
	RiskPerTrade       float64  `json:"risk_per_trade" binding:"required"`
	MaxDailyLoss       *float64 `json:"max_daily_loss"`
	MaxWeeklyLoss      *float64 `json:"max_weekly_loss"`
	MaxMonthlyLoss     *float64 `json:"max_monthly_loss"`
	MaxLotSize         float64  `json:"max_lot_size" binding:"required"`
}

type applyProfileRequest struct {
	Profile string `json:"profile" binding:"required,min=1"`
}

type connectionTestRequest struct {
	Login    string `json:"login" binding:"required,min=1"`
	Password string `json:"password" binding:"required,min=1"`
	Server   string `json:"server" binding:"required,min=1"`
	Platform string `json:"platform" binding:"required,oneof=mt4 mt5"`
}

// userID scopes account data. Identity comes from the reverse proxy in
// front of this service; unauthenticated local use falls back to "local".
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "local"
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondRemoteError maps the client error taxonomy onto HTTP statuses.
func respondRemoteError(c *gin.Context, err error) {
	var (
		validationErr *metaapi.ValidationError
		authErr       *metaapi.AuthenticationError
		rateErr       *metaapi.RateLimitError
		connErr       *metaapi.ConnectionError
		apiErr        *metaapi.APIError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", "account not found")
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &authErr):
		respondError(c, http.StatusUnauthorized, "authentication_failed", authErr.Error())
	case errors.As(err, &rateErr):
		c.Header("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		respondError(c, http.StatusTooManyRequests, "rate_limited", rateErr.Error())
	case errors.Is(err, metaapi.ErrCircuitOpen):
		respondError(c, http.StatusServiceUnavailable, "circuit_open", "provider temporarily unavailable")
	case errors.As(err, &connErr):
		respondError(c, http.StatusBadGateway, "connection_failed", connErr.Error())
	case errors.As(err, &apiErr):
		respondError(c, http.StatusBadGateway, "provider_error", apiErr.Error())
	default:
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	uid := userID(c)

	remote, err := s.Remote.CreateAccount(c.Request.Context(), metaapi.NewAccountRequest{
		Login:    req.Login,
		Password: req.Password,
		Server:   req.Server,
		Platform: metaapi.Platform(req.Platform),
		Name:     req.Name,
		Magic:    req.Magic,
	})
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	encrypted, err := s.Cipher.Encrypt(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", "failed to protect credentials")
		return
	}

	account := db.Account{
		ID:                uuid.New().String(),
		UserID:            uid,
		RemoteID:          remote.ID,
		Name:              req.Name,
		Login:             req.Login,
		PasswordEncrypted: encrypted,
		Server:            req.Server,
		Platform:          req.Platform,
		State:             string(remote.State),
		ConnectionStatus:  string(metaapi.StatusDisconnected),
	}
	if err := s.Queries.InsertAccount(c.Request.Context(), account); err != nil {
		log.Printf("❌ account %s provisioned remotely but not persisted: %v", remote.ID, err)
		respondError(c, http.StatusInternalServerError, "internal", "account created remotely but could not be saved")
		return
	}

	s.Audit.Info(audit.EventAccountCreated, uid, account.ID, "login "+req.Login+" on "+req.Server)
	s.Bus.Publish(events.EventAccountCreated, events.AccountPayload{
		AccountID: account.ID,
		UserID:    uid,
		State:     account.State,
	})

	c.JSON(http.StatusCreated, account)
}

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.Queries.ListAccounts(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if accounts == nil {
		accounts = []db.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) getAccount(c *gin.Context) {
	account, err := s.Queries.GetAccount(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) deployAccount(c *gin.Context) {
	uid := userID(c)
	account, err := s.Queries.GetAccount(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	remote, err := s.Remote.DeployAccount(c.Request.Context(), account.RemoteID)
	if err != nil {
		s.Audit.Error(audit.EventConnectionFailed, uid, account.ID, "deploy failed: "+err.Error())
		respondRemoteError(c, err)
		return
	}

	if err := s.Queries.UpdateAccountState(c.Request.Context(), account.ID, string(remote.State), string(remote.ConnectionStatus)); err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.Audit.Info(audit.EventAccountDeployed, uid, account.ID, "")
	s.Bus.Publish(events.EventAccountDeployed, events.AccountPayload{
		AccountID: account.ID,
		UserID:    uid,
		State:     string(remote.State),
	})

	c.JSON(http.StatusOK, gin.H{"state": remote.State, "connection_status": remote.ConnectionStatus})
}

func (s *Server) undeployAccount(c *gin.Context) {
	uid := userID(c)
	account, err := s.Queries.GetAccount(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	remote, err := s.Remote.UndeployAccount(c.Request.Context(), account.RemoteID)
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	if err := s.Queries.UpdateAccountState(c.Request.Context(), account.ID, string(remote.State), string(metaapi.StatusDisconnected)); err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.Bus.Publish(events.EventAccountUndeployed, events.AccountPayload{
		AccountID: account.ID,
		UserID:    uid,
		State:     string(remote.State),
	})

	c.JSON(http.StatusOK, gin.H{"state": remote.State})
}

func (s *Server) removeAccount(c *gin.Context) {
	uid := userID(c)
	account, err := s.Queries.GetAccount(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	if err := s.Remote.RemoveAccount(c.Request.Context(), account.RemoteID); err != nil {
		respondRemoteError(c, err)
		return
	}
	if err := s.Queries.DeleteAccount(c.Request.Context(), uid, account.ID); err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.Audit.Warning(audit.EventAccountRemoved, uid, account.ID, "login "+account.Login)
	s.Bus.Publish(events.EventAccountRemoved, events.AccountPayload{
		AccountID: account.ID,
		UserID:    uid,
	})

	c.Status(http.StatusNoContent)
}

func (s *Server) getAccountStats(c *gin.Context) {
	account, err := s.Queries.GetAccount(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	stats, err := s.Remote.GetMetrics(c.Request.Context(), account.RemoteID)
	if err != nil {
		respondRemoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getAccountTrades(c *gin.Context) {
	account, err := s.Queries.GetAccount(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, -1, 0)
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		} else {
			respondError(c, http.StatusBadRequest, "bad_request", "from must be RFC3339")
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		} else {
			respondError(c, http.StatusBadRequest, "bad_request", "to must be RFC3339")
			return
		}
	}

	trades, err := s.Remote.GetHistoricalTrades(c.Request.Context(), account.RemoteID, from, to)
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades":  trades,
		"summary": metrics.Summarize(trades),
	})
}

func (s *Server) getRiskSettings(c *gin.Context) {
	account, err := s.Queries.GetAccount(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}
	settings, err := s.RiskMgr.GetSettings(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) saveRiskSettings(c *gin.Context) {
	account, err := s.Queries.GetAccount(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	var req riskSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	settings := db.RiskSettings{
		AccountID:          account.ID,
		MaxDrawdown:        req.MaxDrawdown,
		MaxExposurePerPair: req.MaxExposurePerPair,
		MinEquity:          req.MinEquity,
		MarginCallLevel:    req.MarginCallLevel,
		RiskPerTrade:       req.RiskPerTrade,
		MaxDailyLoss:       req.MaxDailyLoss,
		MaxWeeklyLoss:      req.MaxWeeklyLoss,
		MaxMonthlyLoss:     req.MaxMonthlyLoss,
		MaxLotSize:         req.MaxLotSize,
	}
	if violations := risk.Validate(settings); len(violations) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":       "validation_failed",
			"violations": violations,
		})
		return
	}
	if err := s.RiskMgr.SaveSettings(c.Request.Context(), settings); err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) checkRiskLimits(c *gin.Context) {
	uid := userID(c)
	account, err := s.Queries.GetAccount(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	var snap risk.AccountSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result, err := s.RiskMgr.CheckRiskLimits(c.Request.Context(), account.ID, snap)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if !result.OK {
		s.Audit.Warning(audit.EventRiskBreach, uid, account.ID, result.Reason)
		s.Bus.Publish(events.EventRiskAlert, events.RiskPayload{
			AccountID: account.ID,
			Reason:    result.Reason,
			Value:     result.Value,
			Limit:     result.Limit,
		})
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listRiskProfiles(c *gin.Context) {
	if s.Profiles == nil {
		c.JSON(http.StatusOK, gin.H{"profiles": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": s.Profiles})
}

func (s *Server) applyRiskProfile(c *gin.Context) {
	account, err := s.Queries.GetAccount(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}

	var req applyProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if _, ok := s.Profiles[req.Profile]; !ok {
		respondError(c, http.StatusNotFound, "unknown_profile", "no risk profile named "+req.Profile)
		return
	}

	if err := s.RiskMgr.ApplyProfile(c.Request.Context(), account.ID, s.Profiles, req.Profile); err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	settings, err := s.RiskMgr.GetSettings(c.Request.Context(), account.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) searchServers(c *gin.Context) {
	broker := c.Query("broker")
	if broker == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "broker query parameter is required")
		return
	}
	platform := metaapi.Platform(c.DefaultQuery("platform", "mt5"))
	if !platform.Valid() {
		respondError(c, http.StatusBadRequest, "bad_request", "platform must be mt4 or mt5")
		return
	}

	servers, err := s.Discovery.GetBrokerServers(c.Request.Context(), broker, platform, c.Query("region"))
	if err != nil {
		respondRemoteError(c, err)
		return
	}
	if servers == nil {
		servers = []metaapi.BrokerServer{}
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

func (s *Server) testConnection(c *gin.Context) {
	var req connectionTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result := s.Tester.Run(c.Request.Context(), conntest.Request{
		Login:    req.Login,
		Password: req.Password,
		Server:   req.Server,
		Platform: metaapi.Platform(req.Platform),
	})
	if !result.Passed() {
		s.Audit.Warning(audit.EventConnectionFailed, userID(c), "", result.Reason)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listAuditEvents(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	eventsList, err := s.Queries.ListAuditEvents(c.Request.Context(), userID(c), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if eventsList == nil {
		eventsList = []db.AuditEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": eventsList})
}
