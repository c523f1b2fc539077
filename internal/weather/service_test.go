package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/cache"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

func newTestService(t *testing.T, upstream string) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{}
	cfg.Server.OutboundTimeout = 5 * time.Second
	cfg.Weather.APIURL = upstream
	cfg.Weather.CacheDuration = time.Minute

	log := zap.NewNop().Sugar()
	return New(cfg, cache.NewRedis(client, log), log), mr
}

var testLocation = &model.Location{ID: 7, Name: "Paris", Country: "France", Latitude: 48.85, Longitude: 2.35}

func TestGetCurrentUsesCacheWithinTTL(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"timezone":"Europe/Paris","current":{"temperature_2m":20.0,"weather_code":0}}`))
	}))
	defer srv.Close()

	svc, mr := newTestService(t, srv.URL)
	ctx := context.Background()

	first := svc.GetCurrent(ctx, testLocation)
	if first == nil {
		t.Fatal("expected a document")
	}
	second := svc.GetCurrent(ctx, testLocation)
	if second == nil {
		t.Fatal("expected a cached document")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1 within the TTL window", got)
	}

	cur, ok := ParseCurrent(second)
	if !ok || cur.Temperature != 20 {
		t.Errorf("cached document did not round-trip: %+v", second)
	}

	mr.FastForward(2 * time.Minute)
	if svc.GetCurrent(ctx, testLocation) == nil {
		t.Fatal("expected a refetched document")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("upstream calls = %d, want 2 after expiry", got)
	}
}

func TestGetCurrentRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("wind_speed_unit") != "kmh" {
			t.Errorf("wind_speed_unit = %q, want kmh", q.Get("wind_speed_unit"))
		}
		if q.Get("timezone") != "auto" {
			t.Errorf("timezone = %q, want auto", q.Get("timezone"))
		}
		if q.Get("current") == "" || q.Get("hourly") == "" || q.Get("daily") == "" {
			t.Error("current requests must ask for current, hourly and daily blocks")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":1.0}}`))
	}))
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL)
	if svc.GetCurrent(context.Background(), testLocation) == nil {
		t.Fatal("expected a document")
	}
}

func TestGetWeatherForDateDispatch(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	var lastQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily":{"time":["2025-01-10"],"weather_code":[0]}}`))
	}))
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	past := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if svc.GetWeatherForDate(ctx, testLocation, past) == nil {
		t.Fatal("expected a historical document")
	}
	if got := lastQuery["past_days"]; len(got) == 0 || got[0] != "92" {
		t.Errorf("past dates must request past_days=92, got %v", lastQuery["past_days"])
	}
	if got := lastQuery["start_date"]; len(got) == 0 || got[0] != "2025-01-10" {
		t.Errorf("start_date = %v", lastQuery["start_date"])
	}

	future := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	if svc.GetWeatherForDate(ctx, testLocation, future) == nil {
		t.Fatal("expected a future forecast document")
	}
	if len(lastQuery["past_days"]) != 0 {
		t.Error("future dates must not request past days")
	}
	if got := lastQuery["end_date"]; len(got) == 0 || got[0] != "2025-01-20" {
		t.Errorf("end_date = %v", lastQuery["end_date"])
	}

	today := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if svc.GetWeatherForDate(ctx, testLocation, today) == nil {
		t.Fatal("expected a current document")
	}
	if len(lastQuery["current"]) == 0 {
		t.Error("today must delegate to the current-conditions request")
	}
}

func TestFetchFailureReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc, _ := newTestService(t, srv.URL)
	if got := svc.GetForecast(context.Background(), testLocation, 5); got != nil {
		t.Errorf("expected nil on upstream failure, got %+v", got)
	}
}
