package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func hit(router *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("Expected burst of 2 to be allowed")
	}
	if rl.Allow("a") {
		t.Errorf("Expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Errorf("Expected other client to be allowed")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	router := newRouter(NewRateLimiter(1, 1).Middleware())

	if code := hit(router, "10.0.0.1"); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if code := hit(router, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Allow("a")
	rl.visitors["a"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.Allow("b")

	if removed := rl.Cleanup(time.Hour); removed != 1 {
		t.Errorf("Expected 1 removed visitor, got %d", removed)
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Errorf("Expected active visitor to be kept")
	}
}

func TestThrottler(t *testing.T) {
	th := NewThrottler(1)

	if !th.Acquire() {
		t.Fatalf("Expected first slot")
	}
	if th.Acquire() {
		t.Errorf("Expected second acquire to fail")
	}
	th.Release()
	if !th.Acquire() {
		t.Errorf("Expected slot after release")
	}
}

func TestManagerWhitelist(t *testing.T) {
	m := NewManager(Config{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
		MaxConcurrent:     10,
		WhitelistedIPs:    []string{"127.0.0.1"},
	})
	router := newRouter(m.Middleware())

	for i := 0; i < 5; i++ {
		if code := hit(router, "127.0.0.1"); code != http.StatusOK {
			t.Fatalf("Expected whitelisted IP to pass, got %d", code)
		}
	}

	hit(router, "10.0.0.2")
	if code := hit(router, "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", code)
	}
}

func TestManagerDisabled(t *testing.T) {
	router := newRouter(NewManager(Config{RequestsPerSecond: 1, Burst: 1}).Middleware())

	for i := 0; i < 5; i++ {
		if code := hit(router, "10.0.0.3"); code != http.StatusOK {
			t.Fatalf("Expected disabled limiter to pass, got %d", code)
		}
	}
}
