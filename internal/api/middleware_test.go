package api

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestShortClientRequestIDIsHandled(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []string{"ab", "", "exactly8", "a-longer-request-id"}
	for _, id := range tests {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		if id != "" {
			req.Header.Set("X-Request-ID", id)
		}
		w := httptest.NewRecorder()
		srv.Router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("X-Request-ID %q: status %d, expected 200", id, w.Code)
		}
	}
}

func TestRequestIDPropagatesToResponse(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "trace-me-123" {
		t.Fatalf("X-Request-ID echoed as %q", got)
	}
}

func TestTimeoutMiddlewareReleasesSlowHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TimeoutMiddleware(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(50 * time.Millisecond)
	})

	baseline := runtime.NumGoroutine()

	const n = 8
	for i := 0; i < n; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
		if w.Code != http.StatusRequestTimeout {
			t.Fatalf("request %d: status %d, expected 408", i, w.Code)
		}
	}

	// The slow handlers must be able to finish and exit once their sleep
	// ends, not stay parked on the completion channel.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline+2 {
		if time.Now().After(deadline) {
			t.Fatalf("%d goroutines still live (baseline %d), handler goroutines leaked",
				runtime.NumGoroutine(), baseline)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
