package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ipLimiterRegistry hands out one token-bucket limiter per client IP. The
// map is reset wholesale on an interval instead of tracking per-entry age.
type ipLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPLimiterRegistry(rps rate.Limit, burst int) *ipLimiterRegistry {
	r := &ipLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			r.mu.Lock()
			r.limiters = make(map[string]*rate.Limiter)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *ipLimiterRegistry) get(ip string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[ip]
	r.mu.RUnlock()
	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, exists := r.limiters[ip]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(r.rps, r.burst)
	r.limiters[ip] = limiter
	return limiter
}

// RateLimitMiddleware bounds per-IP request rates: 20 req/s, burst 50.
func RateLimitMiddleware() gin.HandlerFunc {
	registry := newIPLimiterRegistry(rate.Limit(20), 50)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !registry.get(ip).Allow() {
			log.Printf("[RATE_LIMIT] IP %s exceeded rate limit", ip)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "too many requests, please slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware adds unique request ID for tracking
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// TimeoutMiddleware prevents long-running requests from blocking resources
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		// Buffered so the handler goroutine can finish even after the
		// timeout branch has stopped listening.
		finished := make(chan struct{}, 1)
		panicChan := make(chan interface{}, 1)

		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicChan <- p
				}
			}()
			c.Next()
			finished <- struct{}{}
		}()

		select {
		case <-panicChan:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
			c.Abort()
		case <-finished:
			return
		case <-ctx.Done():
			log.Printf("[TIMEOUT] Request timeout: %s %s", c.Request.Method, c.Request.URL.Path)
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":   "request timeout",
				"message": "request took too long to process",
			})
			c.Abort()
		}
	}
}

// RequestLogger logs all API requests with timing and status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		requestID := c.GetString("RequestID")
		if requestID == "" {
			requestID = "unknown-"
		}
		// Client-supplied X-Request-ID can be arbitrarily short.
		if len(requestID) > 8 {
			requestID = requestID[:8]
		}

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()

		log.Printf("[API] %s | %s %s | %d | %v | %s",
			requestID,
			method,
			path,
			statusCode,
			latency,
			clientIP,
		)
	}
}
