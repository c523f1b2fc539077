package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

// paramKey is the query parameter used for per-param rate limiting. Session
// ids get their own buckets so one chatty session cannot starve others
// behind the same IP.
const paramKey = "session_id"

// visitor holds the rate limiter and last seen time for one bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a global per-IP limit plus a tighter per-IP,
// per-session limit. All rates come from configuration.
type RateLimiter struct {
	cfg config.RateLimiterConfig

	muGlobal       sync.Mutex
	globalVisitors map[string]*visitor // key: ip

	muParam       sync.Mutex
	paramVisitors map[string]map[string]*visitor // key: ip -> param value
}

func NewRateLimiter(cfg config.RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		cfg:            cfg,
		globalVisitors: make(map[string]*visitor),
		paramVisitors:  make(map[string]map[string]*visitor),
	}
}

func (rl *RateLimiter) getGlobalLimiter(ip string) *rate.Limiter {
	rl.muGlobal.Lock()
	defer rl.muGlobal.Unlock()
	v, exists := rl.globalVisitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(rl.cfg.GlobalRate/60.0), rl.cfg.GlobalBurst)
		rl.globalVisitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) getParamLimiter(ip, param string) *rate.Limiter {
	rl.muParam.Lock()
	defer rl.muParam.Unlock()
	if _, ok := rl.paramVisitors[ip]; !ok {
		rl.paramVisitors[ip] = make(map[string]*visitor)
	}
	v, exists := rl.paramVisitors[ip][param]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(rl.cfg.ParamRate/60.0), rl.cfg.ParamBurst)
		rl.paramVisitors[ip][param] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanupGlobalVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.muGlobal.Lock()
		for ip, v := range rl.globalVisitors {
			if time.Since(v.lastSeen) > rl.cfg.CleanupTimeout {
				delete(rl.globalVisitors, ip)
			}
		}
		rl.muGlobal.Unlock()
	}
}

func (rl *RateLimiter) cleanupParamVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.muParam.Lock()
		for ip, paramMap := range rl.paramVisitors {
			for param, v := range paramMap {
				if time.Since(v.lastSeen) > rl.cfg.CleanupTimeout {
					delete(paramMap, param)
				}
			}
			if len(paramMap) == 0 {
				delete(rl.paramVisitors, ip)
			}
		}
		rl.muParam.Unlock()
	}
}

// StartCleanup starts background goroutines that drop stale visitor buckets.
func (rl *RateLimiter) StartCleanup() {
	go rl.cleanupGlobalVisitors()
	go rl.cleanupParamVisitors()
}

// ResetVisitors clears all visitor state. Used primarily for testing.
func (rl *RateLimiter) ResetVisitors() {
	rl.muGlobal.Lock()
	for k := range rl.globalVisitors {
		delete(rl.globalVisitors, k)
	}
	rl.muGlobal.Unlock()
	rl.muParam.Lock()
	for k := range rl.paramVisitors {
		delete(rl.paramVisitors, k)
	}
	rl.muParam.Unlock()
}

// getIP extracts the client's IP address, honoring X-Forwarded-For.
func getIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr // fallback
	}
	return ip
}

// Middleware enforces both limits and responds with 429 and a JSON error
// when either is exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getIP(r)
		param := r.URL.Query().Get(paramKey)
		if param == "" {
			// Requests without a session id share one bucket per IP.
			param = "__none__"
		}
		if !rl.getGlobalLimiter(ip).Allow() {
			writeLimitExceeded(w, "Rate limit exceeded: too many requests per minute per user/IP", "Too Many Requests (global limit)")
			return
		}
		if !rl.getParamLimiter(ip, param).Allow() {
			writeLimitExceeded(w, "Rate limit exceeded: too many requests per minute per session per user/IP", "Too Many Requests (per-session limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeLimitExceeded(w http.ResponseWriter, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	resp := model.Response{Error: &errMsg, Message: message}
	_ = json.NewEncoder(w).Encode(resp)
}
