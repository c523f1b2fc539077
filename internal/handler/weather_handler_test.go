package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/cache"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/geo"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/query"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/respond"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/storage"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

// newTestHandler wires the full stack against stub upstreams. The response
// composer runs without an API key, so every answer comes from the
// deterministic formatters.
func newTestHandler(t *testing.T) *WeatherHandler {
	t.Helper()

	geocoder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Query().Get("name") == "Paris":
			_, _ = w.Write([]byte(`{"results":[{"name":"Paris","country":"France","latitude":48.85,"longitude":2.35,"timezone":"Europe/Paris"}]}`))
		case r.URL.Query().Get("localityLanguage") != "":
			_, _ = w.Write([]byte(`{"city":"Quezon City","countryName":"Philippines"}`))
		default:
			_, _ = w.Write([]byte(`{"results":[]}`))
		}
	}))
	t.Cleanup(geocoder.Close)

	weatherAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"timezone":"Europe/Paris","current":{"temperature_2m":7.6,"apparent_temperature":5.0,"relative_humidity_2m":80,"weather_code":3,"wind_speed_10m":10.0,"wind_direction_10m":180}}`))
	}))
	t.Cleanup(weatherAPI.Close)

	mr := miniredis.RunT(t)
	redisClient := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := &config.Config{}
	cfg.Server.OutboundTimeout = 5 * time.Second
	cfg.Geocoding.APIURL = geocoder.URL
	cfg.Geocoding.ReverseFallbackURL = geocoder.URL
	cfg.Weather.APIURL = weatherAPI.URL
	cfg.Weather.CacheDuration = time.Minute
	cfg.Gemini.CacheDuration = time.Minute

	log := zap.NewNop().Sugar()
	store, err := storage.Open(":memory:", false)
	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cacheStore := cache.NewRedis(redisClient, log)
	locations := geo.NewResolver(cfg, store, log)
	weatherSvc := weather.New(cfg, cacheStore, log)
	composer := respond.NewComposer(cfg, cacheStore, log)
	queries := query.NewService(locations, weatherSvc, composer, store, log)

	return NewWeatherHandler(queries, locations, store, log)
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestHandleQuery(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.HandleQuery, "/api/weather/query", `{"query": "What's the weather in Paris?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Message        string         `json:"message"`
		SessionID      string         `json:"session_id"`
		ConversationID int64          `json:"conversation_id"`
		Status         string         `json:"status"`
		Metadata       map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %q, message = %q", resp.Status, resp.Message)
	}
	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
	if resp.ConversationID == 0 {
		t.Error("expected a conversation id")
	}
	if !strings.Contains(resp.Message, "Paris, France") {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Metadata["location"] != "Paris, France" {
		t.Errorf("metadata location = %v", resp.Metadata["location"])
	}
	if resp.Metadata["date"] != "Today" {
		t.Errorf("metadata date = %v", resp.Metadata["date"])
	}
	wx, _ := resp.Metadata["weather"].(map[string]any)
	if wx == nil || wx["temperature"] != float64(8) || wx["condition"] != "Overcast" {
		t.Errorf("metadata weather = %v", resp.Metadata["weather"])
	}
}

func TestHandleQuerySessionContinuity(t *testing.T) {
	h := newTestHandler(t)

	first := postJSON(t, h.HandleQuery, "/api/weather/query", `{"query": "What's the weather in Paris?", "session_id": "sess-1"}`)
	second := postJSON(t, h.HandleQuery, "/api/weather/query", `{"query": "And how windy is it?", "session_id": "sess-1"}`)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}

	var a, b struct {
		ConversationID int64  `json:"conversation_id"`
		Status         string `json:"status"`
		Message        string `json:"message"`
	}
	_ = json.Unmarshal(first.Body.Bytes(), &a)
	_ = json.Unmarshal(second.Body.Bytes(), &b)
	if a.ConversationID != b.ConversationID {
		t.Errorf("conversation ids differ: %d vs %d", a.ConversationID, b.ConversationID)
	}
	// The follow-up has no location of its own; the conversation's last
	// location answers it.
	if b.Status != "success" {
		t.Errorf("follow-up status = %q, message = %q", b.Status, b.Message)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/weather/conversation?session_id=sess-1", nil)
	w := httptest.NewRecorder()
	h.HandleConversation(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("conversation status = %d", w.Code)
	}
	var conv struct {
		Data struct {
			SessionID string `json:"session_id"`
			Messages  []struct {
				Content string `json:"content"`
				IsUser  bool   `json:"is_user"`
			} `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatalf("could not decode conversation: %v", err)
	}
	if len(conv.Data.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(conv.Data.Messages))
	}
	if !conv.Data.Messages[0].IsUser || conv.Data.Messages[1].IsUser {
		t.Error("messages out of order")
	}
}

func TestHandleQueryValidation(t *testing.T) {
	h := newTestHandler(t)

	if w := postJSON(t, h.HandleQuery, "/api/weather/query", `{"query": ""}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty query status = %d, want 422", w.Code)
	}
	long := strings.Repeat("a", 501)
	if w := postJSON(t, h.HandleQuery, "/api/weather/query", `{"query": "`+long+`"}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("oversized query status = %d, want 422", w.Code)
	}
	if w := postJSON(t, h.HandleQuery, "/api/weather/query", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/weather/query", nil)
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}
}

func TestHandleDetectLocation(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(t, h.HandleDetectLocation, "/api/weather/detect-location", `{"latitude": 14.65, "longitude": 121.05}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Name    string `json:"name"`
			Country string `json:"country"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}
	if resp.Data.Name != "Quezon City" || resp.Data.Country != "Philippines" {
		t.Errorf("location = %+v", resp.Data)
	}
	if resp.Message != "Success" {
		t.Errorf("message = %q", resp.Message)
	}

	if w := postJSON(t, h.HandleDetectLocation, "/api/weather/detect-location", `{"latitude": 123.0, "longitude": 0.0}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("out-of-range status = %d, want 422", w.Code)
	}
}

func TestHandleConversationUnknownSession(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/weather/conversation?session_id=missing", nil)
	w := httptest.NewRecorder()
	h.HandleConversation(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Data struct {
			Messages []model.Message `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Messages) != 0 {
		t.Errorf("messages = %d, want empty history", len(resp.Data.Messages))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/weather/conversation", nil)
	w = httptest.NewRecorder()
	h.HandleConversation(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing session status = %d, want 400", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
