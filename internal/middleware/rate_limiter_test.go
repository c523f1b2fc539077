package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
)

func testLimiterConfig() config.RateLimiterConfig {
	return config.RateLimiterConfig{
		CleanupTimeout: 3 * time.Minute,
		GlobalRate:     10,
		GlobalBurst:    10,
		ParamRate:      2,
		ParamBurst:     2,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRateLimiterGlobalBurst(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	mw := rl.Middleware(okHandler())
	ip := "1.2.3.4:1234"

	// Unique sessions each get their own per-param bucket, so the global
	// burst of 10 is what runs out first.
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/api/weather/query?session_id=s"+fmt.Sprint(i), nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d on request %d", w.Result().StatusCode, i+1)
		}
	}

	req := httptest.NewRequest("POST", "/api/weather/query?session_id=s99", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d after the global burst", w.Result().StatusCode)
	}
	var resp map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if !strings.Contains(resp["error"].(string), "Rate limit exceeded") {
		t.Errorf("expected rate limit error, got %v", resp["error"])
	}

	// Dropping the visitor state starts the buckets over.
	rl.ResetVisitors()
	req = httptest.NewRequest("POST", "/api/weather/query?session_id=s99", nil)
	req.RemoteAddr = ip
	w = httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("expected 200 after reset, got %d", w.Result().StatusCode)
	}
}

func TestRateLimiterPerSessionBurst(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	mw := rl.Middleware(okHandler())
	ip := "2.3.4.5:2345"

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/weather/query?session_id=abc", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d on request %d", w.Result().StatusCode, i+1)
		}
	}

	req := httptest.NewRequest("POST", "/api/weather/query?session_id=abc", nil)
	req.RemoteAddr = ip
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d after the per-session burst", w.Result().StatusCode)
	}

	// A different session from the same IP still goes through.
	req = httptest.NewRequest("POST", "/api/weather/query?session_id=xyz", nil)
	req.RemoteAddr = ip
	w = httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("expected 200 for a fresh session, got %d", w.Result().StatusCode)
	}
}

func TestRateLimiterDistinguishesIPs(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	mw := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/weather/query?session_id=abc", nil)
		req.RemoteAddr = "3.4.5.6:1000"
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)
	}

	// Same session name, different IP: separate buckets.
	req := httptest.NewRequest("POST", "/api/weather/query?session_id=abc", nil)
	req.RemoteAddr = "7.8.9.10:1000"
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("expected 200 for a different IP, got %d", w.Result().StatusCode)
	}
}

func TestGetIPHonorsForwardedHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := getIP(req); got != "10.0.0.1" {
		t.Errorf("getIP = %q, want 10.0.0.1", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := getIP(req); got != "203.0.113.7" {
		t.Errorf("getIP = %q, want first forwarded address", got)
	}
}
