// Package query orchestrates the understanding pipeline: date extraction,
// intent classification, location resolution, weather retrieval and response
// composition.
package query

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/dates"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/geo"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/respond"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/storage"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

const (
	noLocationMessage = "I couldn't determine the location you're asking about. Could you please specify a city or place? You can also allow location access in your browser for me to provide weather for your current location."
	noWeatherMessage  = "Sorry, I couldn't retrieve the weather information at this time."
)

// Composer generates a conversational answer from a weather document. A false
// return means the deterministic fallback should be used instead.
type Composer interface {
	Compose(ctx context.Context, query string, loc *model.Location, dateInfo *model.DateInfo, queryType model.QueryType, doc model.Document) (string, bool)
}

type Service struct {
	locations *geo.Resolver
	weather   *weather.Service
	composer  Composer
	store     *storage.Store
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewService(locations *geo.Resolver, weatherSvc *weather.Service, composer Composer, store *storage.Store, log *zap.SugaredLogger) *Service {
	return &Service{
		locations: locations,
		weather:   weatherSvc,
		composer:  composer,
		store:     store,
		log:       log,
		now:       time.Now,
	}
}

// ProcessQuery runs one query through the full pipeline. locationID, when
// set, pins the location and overrides anything mentioned in the text.
func (s *Service) ProcessQuery(ctx context.Context, queryText string, conv *model.Conversation, locationID *int64) *model.QueryResult {
	now := s.now()

	dateInfo := dates.Extract(queryText, now)
	dateInfo.Formatted = dateInfo.Date.Format("Monday, January 2, 2006")
	queryType := Classify(queryText, dateInfo, now)

	loc := s.resolveLocation(ctx, queryText, conv, locationID)
	if loc == nil {
		return &model.QueryResult{
			Status:    model.StatusError,
			Message:   noLocationMessage,
			QueryType: queryType,
			DateInfo:  dateInfo,
		}
	}

	doc, isCurrent := s.fetchWeather(ctx, loc, queryType, dateInfo, now)
	if doc == nil {
		return &model.QueryResult{
			Status:    model.StatusError,
			Message:   noWeatherMessage,
			Location:  loc,
			QueryType: queryType,
			DateInfo:  dateInfo,
		}
	}

	message, ok := s.composer.Compose(ctx, queryText, loc, dateInfo, queryType, doc)
	if !ok {
		message = respond.FallbackMessage(queryType, doc, loc, dateInfo, isCurrent, now)
	}

	return &model.QueryResult{
		Status:    model.StatusSuccess,
		Message:   message,
		Location:  loc,
		Data:      doc,
		QueryType: queryType,
		DateInfo:  dateInfo,
	}
}

// resolveLocation applies the location priority chain: an explicit pinned id,
// then a place named in the text, then the conversation's most recent
// location. nil means all three came up empty.
func (s *Service) resolveLocation(ctx context.Context, queryText string, conv *model.Conversation, locationID *int64) *model.Location {
	if locationID != nil {
		loc, err := s.locations.FindByID(ctx, *locationID)
		if err == nil {
			return loc
		}
		s.log.Warnw("pinned location not found", "location_id", *locationID, "error", err)
	}

	if text, ok := geo.ExtractLocationText(queryText); ok {
		name, country := geo.SplitCountry(text)
		if candidates := s.locations.SearchLocations(ctx, name, 1, country); len(candidates) > 0 {
			loc, err := s.locations.FindOrCreate(ctx, candidates[0])
			if err == nil {
				return loc
			}
			s.log.Errorw("location save failed", "name", candidates[0].Name, "error", err)
		}
	}

	if conv != nil {
		loc, err := s.store.LatestLocation(ctx, conv.ID)
		if err == nil {
			return loc
		}
	}
	return nil
}

// fetchWeather picks the retrieval call for the classified intent. Metric
// intents about a specific non-today date need the dated endpoint; everything
// else reads current conditions or the multi-day forecast.
func (s *Service) fetchWeather(ctx context.Context, loc *model.Location, queryType model.QueryType, dateInfo *model.DateInfo, now time.Time) (model.Document, bool) {
	switch queryType {
	case model.QueryForecast:
		return s.weather.GetForecast(ctx, loc, 5), false
	case model.QueryTemperature, model.QueryPrecipitation, model.QueryWind, model.QueryHumidity:
		if dateInfo.Type == model.DateSpecific && !sameDay(dateInfo.Date, now) {
			return s.weather.GetWeatherForDate(ctx, loc, dateInfo.Date), false
		}
		return s.weather.GetCurrent(ctx, loc), true
	default:
		return s.weather.GetCurrent(ctx, loc), true
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
