// Package weather fetches weather documents from the upstream provider,
// memoizing every fetch in the TTL cache keyed by (location, type, date).
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/cache"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

const currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,cloud_cover,wind_speed_10m,wind_direction_10m,wind_gusts_10m"
const dailyFields = "weather_code,temperature_2m_max,temperature_2m_min,apparent_temperature_max,apparent_temperature_min,precipitation_sum,precipitation_probability_max,wind_speed_10m_max,wind_gusts_10m_max,wind_direction_10m_dominant"
const historicalDailyFields = "weather_code,temperature_2m_max,temperature_2m_min,apparent_temperature_max,apparent_temperature_min,precipitation_sum,wind_speed_10m_max,wind_gusts_10m_max,wind_direction_10m_dominant"

// Service is the weather data gateway. Upstream failures never propagate:
// every fetch degrades to a nil document, which callers treat as a soft,
// user-visible failure.
type Service struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
	cache   cache.Store
	ttl     time.Duration
	log     *zap.SugaredLogger
	now     func() time.Time
}

func New(cfg *config.Config, store cache.Store, log *zap.SugaredLogger) *Service {
	return &Service{
		client: resty.New().SetTimeout(cfg.Server.OutboundTimeout),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "open-meteo",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
		baseURL: cfg.Weather.APIURL,
		cache:   store,
		ttl:     cfg.Weather.CacheDuration,
		log:     log,
		now:     time.Now,
	}
}

// GetCurrent returns current conditions for a location, including hourly and
// daily blocks so the response composer can build its short-term briefing
// from a single payload.
func (s *Service) GetCurrent(ctx context.Context, loc *model.Location) model.Document {
	key := s.cacheKey(loc.ID, "current", "")
	if doc := s.cached(ctx, key); doc != nil {
		return doc
	}

	doc, err := s.fetch(ctx, map[string]string{
		"latitude":      fmt.Sprintf("%f", loc.Latitude),
		"longitude":     fmt.Sprintf("%f", loc.Longitude),
		"current":       currentFields,
		"hourly":        "temperature_2m,weather_code",
		"daily":         "weather_code,temperature_2m_max,temperature_2m_min",
		"forecast_days": "3",
	})
	if err != nil {
		s.log.Errorw("current weather fetch failed", "location", loc.Label(), "error", err)
		return nil
	}
	s.store(ctx, key, doc)
	return doc
}

// GetForecast returns a multi-day daily forecast.
func (s *Service) GetForecast(ctx context.Context, loc *model.Location, days int) model.Document {
	if days <= 0 {
		days = 5
	}
	key := s.cacheKey(loc.ID, "forecast", "")
	if doc := s.cached(ctx, key); doc != nil {
		return doc
	}

	doc, err := s.fetch(ctx, map[string]string{
		"latitude":      fmt.Sprintf("%f", loc.Latitude),
		"longitude":     fmt.Sprintf("%f", loc.Longitude),
		"daily":         dailyFields,
		"forecast_days": fmt.Sprintf("%d", days),
	})
	if err != nil {
		s.log.Errorw("forecast fetch failed", "location", loc.Label(), "error", err)
		return nil
	}
	s.store(ctx, key, doc)
	return doc
}

// GetWeatherForDate dispatches by the date's relation to now: strictly past
// days go to the historical endpoint, today delegates to current conditions,
// and future days fetch a forecast scoped to that single day.
func (s *Service) GetWeatherForDate(ctx context.Context, loc *model.Location, date time.Time) model.Document {
	now := s.now()
	if isToday(date, now) {
		return s.GetCurrent(ctx, loc)
	}
	if date.Before(now) {
		return s.getHistorical(ctx, loc, date)
	}
	return s.getFutureForecast(ctx, loc, date)
}

func (s *Service) getHistorical(ctx context.Context, loc *model.Location, date time.Time) model.Document {
	day := date.Format("2006-01-02")
	key := s.cacheKey(loc.ID, "historical", day)
	if doc := s.cached(ctx, key); doc != nil {
		return doc
	}

	doc, err := s.fetch(ctx, map[string]string{
		"latitude":   fmt.Sprintf("%f", loc.Latitude),
		"longitude":  fmt.Sprintf("%f", loc.Longitude),
		"daily":      historicalDailyFields,
		"start_date": day,
		"end_date":   day,
		// The forecast endpoint serves up to 92 past days.
		"past_days": "92",
	})
	if err != nil {
		s.log.Errorw("historical weather fetch failed", "location", loc.Label(), "date", day, "error", err)
		return nil
	}
	s.store(ctx, key, doc)
	return doc
}

func (s *Service) getFutureForecast(ctx context.Context, loc *model.Location, date time.Time) model.Document {
	day := date.Format("2006-01-02")
	key := s.cacheKey(loc.ID, "forecast", day)
	if doc := s.cached(ctx, key); doc != nil {
		return doc
	}

	doc, err := s.fetch(ctx, map[string]string{
		"latitude":   fmt.Sprintf("%f", loc.Latitude),
		"longitude":  fmt.Sprintf("%f", loc.Longitude),
		"daily":      dailyFields,
		"start_date": day,
		"end_date":   day,
	})
	if err != nil {
		s.log.Errorw("future forecast fetch failed", "location", loc.Label(), "date", day, "error", err)
		return nil
	}
	s.store(ctx, key, doc)
	return doc
}

// fetch performs one provider call through the circuit breaker and decodes
// the body as an opaque document.
func (s *Service) fetch(ctx context.Context, params map[string]string) (model.Document, error) {
	params["timezone"] = "auto"
	params["temperature_unit"] = "celsius"
	params["wind_speed_unit"] = "kmh"

	result, err := s.breaker.Execute(func() (any, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(s.baseURL + "/forecast")
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("weather api status %d: %s", resp.StatusCode(), resp.String())
		}
		var doc model.Document
		if err := json.Unmarshal(resp.Body(), &doc); err != nil {
			return nil, fmt.Errorf("decoding weather payload: %w", err)
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(model.Document), nil
}

func (s *Service) cacheKey(locationID int64, typ, date string) string {
	return fmt.Sprintf("weather:%d:%s:%s", locationID, typ, date)
}

func (s *Service) cached(ctx context.Context, key string) model.Document {
	raw, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Warnw("dropping undecodable cache entry", "key", key, "error", err)
		return nil
	}
	return doc
}

func (s *Service) store(ctx context.Context, key string, doc model.Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	s.cache.Put(ctx, key, raw, s.ttl)
}

func isToday(date, now time.Time) bool {
	return date.Year() == now.Year() && date.YearDay() == now.YearDay()
}
