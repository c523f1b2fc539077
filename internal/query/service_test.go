package query

import (
	"context"
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
	"github.com/Lester-Fong/weather-forecaster-agent/internal/storage"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

// stubComposer stands in for the generative provider.
type stubComposer struct {
	text string
	ok   bool
}

func (s *stubComposer) Compose(ctx context.Context, query string, loc *model.Location, dateInfo *model.DateInfo, queryType model.QueryType, doc model.Document) (string, bool) {
	return s.text, s.ok
}

var pipelineNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// newTestPipeline wires a full query service against stub upstream servers.
func newTestPipeline(t *testing.T, composer Composer) (*Service, *storage.Store) {
	t.Helper()

	geocoder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("name") == "Paris" {
			_, _ = w.Write([]byte(`{"results":[{"name":"Paris","country":"France","latitude":48.85,"longitude":2.35,"timezone":"Europe/Paris"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(geocoder.Close)

	weatherAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("current") != "" {
			_, _ = w.Write([]byte(`{"timezone":"Europe/Paris","current":{"temperature_2m":8.0,"apparent_temperature":6.5,"relative_humidity_2m":75,"weather_code":3,"wind_speed_10m":14.0,"wind_direction_10m":200}}`))
			return
		}
		_, _ = w.Write([]byte(`{"timezone":"Europe/Paris","daily":{
			"time":["2025-01-15","2025-01-16","2025-01-17","2025-01-18","2025-01-19"],
			"temperature_2m_min":[3,4,5,6,7],
			"temperature_2m_max":[8,9,10,11,12],
			"weather_code":[3,61,0,0,2]
		}}`))
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

	log := zap.NewNop().Sugar()
	store, err := storage.Open(":memory:", false)
	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	locations := geo.NewResolver(cfg, store, log)
	weatherSvc := weather.New(cfg, cache.NewRedis(redisClient, log), log)

	svc := NewService(locations, weatherSvc, composer, store, log)
	svc.now = func() time.Time { return pipelineNow }
	return svc, store
}

func testConversation(t *testing.T, store *storage.Store) *model.Conversation {
	t.Helper()
	conv, err := store.FirstOrCreateConversation(context.Background(), "test-session", "", "")
	if err != nil {
		t.Fatalf("could not create conversation: %v", err)
	}
	return conv
}

func TestProcessQueryTomorrowForecast(t *testing.T) {
	svc, store := newTestPipeline(t, &stubComposer{ok: false})
	conv := testConversation(t, store)

	result := svc.ProcessQuery(context.Background(), "What is the weather in Paris tomorrow?", conv, nil)

	if result.Status != model.StatusSuccess {
		t.Fatalf("status = %s, message = %s", result.Status, result.Message)
	}
	if result.QueryType != model.QueryForecast {
		t.Errorf("query type = %s, want forecast", result.QueryType)
	}
	if result.DateInfo.Type != model.DateSpecific || result.DateInfo.Text != "tomorrow" {
		t.Errorf("date info = %+v", result.DateInfo)
	}
	if result.DateInfo.Formatted != "Thursday, January 16, 2025" {
		t.Errorf("formatted date = %q", result.DateInfo.Formatted)
	}
	if result.Location == nil || result.Location.Name != "Paris" || result.Location.Country != "France" {
		t.Errorf("location = %+v", result.Location)
	}
	// The stub composer fails, so the deterministic formatter answers.
	if !strings.Contains(result.Message, "tomorrow") || !strings.Contains(result.Message, "Paris, France") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestProcessQueryUsesComposerAnswer(t *testing.T) {
	svc, store := newTestPipeline(t, &stubComposer{text: "A lovely day in Paris awaits!", ok: true})
	conv := testConversation(t, store)

	result := svc.ProcessQuery(context.Background(), "What's the weather in Paris?", conv, nil)
	if result.Status != model.StatusSuccess {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Message != "A lovely day in Paris awaits!" {
		t.Errorf("message = %q", result.Message)
	}
	if result.QueryType != model.QueryCurrent {
		t.Errorf("query type = %s, want current", result.QueryType)
	}
}

func TestProcessQueryNoLocation(t *testing.T) {
	svc, store := newTestPipeline(t, &stubComposer{ok: false})
	conv := testConversation(t, store)

	result := svc.ProcessQuery(context.Background(), "Will it rain?", conv, nil)
	if result.Status != model.StatusError {
		t.Fatalf("status = %s, want error", result.Status)
	}
	if !strings.Contains(result.Message, "couldn't determine the location") {
		t.Errorf("message = %q", result.Message)
	}
	if result.Location != nil {
		t.Errorf("location should be nil, got %+v", result.Location)
	}
}

func TestProcessQueryFallsBackToConversationLocation(t *testing.T) {
	svc, store := newTestPipeline(t, &stubComposer{ok: false})
	conv := testConversation(t, store)
	ctx := context.Background()

	loc, err := store.FindOrCreateLocation(ctx, "Paris", "France", 48.85, 2.35, "Europe/Paris")
	if err != nil {
		t.Fatalf("could not seed location: %v", err)
	}
	if err := store.AppendMessage(ctx, &model.Message{
		ConversationID: conv.ID,
		LocationID:     &loc.ID,
		Content:        "earlier answer",
	}); err != nil {
		t.Fatalf("could not seed message: %v", err)
	}

	result := svc.ProcessQuery(ctx, "And how humid is it?", conv, nil)
	if result.Status != model.StatusSuccess {
		t.Fatalf("status = %s, message = %s", result.Status, result.Message)
	}
	if result.Location == nil || result.Location.ID != loc.ID {
		t.Errorf("location = %+v, want the conversation's last location", result.Location)
	}
	if result.QueryType != model.QueryHumidity {
		t.Errorf("query type = %s, want humidity", result.QueryType)
	}
	if !strings.Contains(result.Message, "75%") {
		t.Errorf("message = %q", result.Message)
	}
}

func TestProcessQueryPinnedLocation(t *testing.T) {
	svc, store := newTestPipeline(t, &stubComposer{ok: false})
	conv := testConversation(t, store)
	ctx := context.Background()

	loc, err := store.FindOrCreateLocation(ctx, "Tokyo", "Japan", 35.68, 139.69, "Asia/Tokyo")
	if err != nil {
		t.Fatalf("could not seed location: %v", err)
	}

	// The pinned id wins even though the text names another city.
	result := svc.ProcessQuery(ctx, "What's the weather in Paris?", conv, &loc.ID)
	if result.Status != model.StatusSuccess {
		t.Fatalf("status = %s, message = %s", result.Status, result.Message)
	}
	if result.Location == nil || result.Location.Name != "Tokyo" {
		t.Errorf("location = %+v, want pinned Tokyo", result.Location)
	}
}
