// Package geo resolves free-text and coordinate location references against
// geocoding providers, backed by the persistent location table.
package geo

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/storage"
)

// Candidate is a geocoding result that has not yet been materialized as a
// stored location.
type Candidate struct {
	Name     string  `json:"name"`
	Country  string  `json:"country"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone"`
}

// Resolver searches and reverse-geocodes locations. Provider failures never
// escape: each call degrades to an empty result and the next fallback.
type Resolver struct {
	client      *resty.Client
	searchURL   string
	fallbackURL string
	store       *storage.Store
	log         *zap.SugaredLogger
}

func NewResolver(cfg *config.Config, store *storage.Store, log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		client:      resty.New().SetTimeout(cfg.Server.OutboundTimeout),
		searchURL:   cfg.Geocoding.APIURL,
		fallbackURL: cfg.Geocoding.ReverseFallbackURL,
		store:       store,
		log:         log,
	}
}

// openMeteoResults is the geocoding API response shape shared by text search
// and coordinate search.
type openMeteoResults struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

func (r *openMeteoResults) candidates() []Candidate {
	out := make([]Candidate, 0, len(r.Results))
	for _, res := range r.Results {
		name := res.Name
		if name == "" {
			name = "Unknown"
		}
		country := res.Country
		if country == "" {
			country = "Unknown"
		}
		tz := res.Timezone
		if tz == "" {
			tz = "UTC"
		}
		out = append(out, Candidate{
			Name:     name,
			Country:  country,
			Lat:      res.Latitude,
			Lon:      res.Longitude,
			Timezone: tz,
		})
	}
	return out
}

// SearchLocations queries the geocoding provider by name. Twice the requested
// limit is fetched so downstream filtering still has enough candidates. The
// first result is the resolver's choice; there is no fuzzy scoring.
func (r *Resolver) SearchLocations(ctx context.Context, text string, limit int, country string) []Candidate {
	params := map[string]string{
		"name":     text,
		"count":    fmt.Sprintf("%d", limit*2),
		"language": "en",
		"format":   "json",
	}
	if country != "" {
		params["country"] = country
	}

	var payload openMeteoResults
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&payload).
		Get(r.searchURL + "/search")
	if err != nil {
		r.log.Errorw("geocoding search failed", "query", text, "error", err)
		return nil
	}
	if !resp.IsSuccess() {
		r.log.Errorw("geocoding search error", "query", text, "status", resp.StatusCode(), "body", resp.String())
		return nil
	}
	return payload.candidates()
}

// ReverseGeocode resolves coordinates to location candidates. It tries the
// primary provider, then the fallback provider, and finally synthesizes a
// generic "Your Location" candidate, so the result is never empty.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lon float64) []Candidate {
	if cands := r.reverseOpenMeteo(ctx, lat, lon); len(cands) > 0 {
		return cands
	}
	if cands := r.reverseBigDataCloud(ctx, lat, lon); len(cands) > 0 {
		return cands
	}

	r.log.Infow("using generic location for coordinates", "lat", lat, "lon", lon)
	return []Candidate{{
		Name:     "Your Location",
		Country:  "Current Position",
		Lat:      lat,
		Lon:      lon,
		Timezone: "UTC",
	}}
}

func (r *Resolver) reverseOpenMeteo(ctx context.Context, lat, lon float64) []Candidate {
	var payload openMeteoResults
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":  fmt.Sprintf("%f", lat),
			"longitude": fmt.Sprintf("%f", lon),
			"count":     "1",
			"language":  "en",
			"format":    "json",
		}).
		SetResult(&payload).
		Get(r.searchURL + "/search")
	if err != nil {
		r.log.Errorw("reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
		return nil
	}
	if !resp.IsSuccess() {
		r.log.Errorw("reverse geocoding error", "lat", lat, "lon", lon, "status", resp.StatusCode())
		return nil
	}
	cands := payload.candidates()
	if len(cands) == 0 {
		r.log.Warnw("no reverse geocoding results", "lat", lat, "lon", lon)
	}
	return cands
}

func (r *Resolver) reverseBigDataCloud(ctx context.Context, lat, lon float64) []Candidate {
	var payload struct {
		City                 string `json:"city"`
		Locality             string `json:"locality"`
		PrincipalSubdivision string `json:"principalSubdivision"`
		CountryName          string `json:"countryName"`
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":         fmt.Sprintf("%f", lat),
			"longitude":        fmt.Sprintf("%f", lon),
			"localityLanguage": "en",
		}).
		SetResult(&payload).
		Get(r.fallbackURL)
	if err != nil {
		r.log.Errorw("fallback reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
		return nil
	}
	if !resp.IsSuccess() {
		r.log.Errorw("fallback reverse geocoding error", "lat", lat, "lon", lon, "status", resp.StatusCode())
		return nil
	}
	if payload.City == "" && payload.Locality == "" {
		r.log.Warnw("no fallback reverse geocoding results", "lat", lat, "lon", lon)
		return nil
	}

	name := payload.City
	if name == "" {
		name = payload.Locality
	}
	if name == "" {
		name = payload.PrincipalSubdivision
	}
	country := payload.CountryName
	if country == "" {
		country = "Unknown"
	}
	// This provider does not report a timezone; default to UTC.
	return []Candidate{{Name: name, Country: country, Lat: lat, Lon: lon, Timezone: "UTC"}}
}

// FindOrCreate materializes a candidate as a stored location, deduplicating
// on rounded coordinates first and (name, country) second.
func (r *Resolver) FindOrCreate(ctx context.Context, c Candidate) (*model.Location, error) {
	return r.store.FindOrCreateLocation(ctx, c.Name, c.Country, c.Lat, c.Lon, c.Timezone)
}

// FindByID resolves an explicitly supplied location id.
func (r *Resolver) FindByID(ctx context.Context, id int64) (*model.Location, error) {
	return r.store.FindLocationByID(ctx, id)
}
