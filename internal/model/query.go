package model

import "time"

// QueryType is the classified purpose of a weather query.
type QueryType string

const (
	QueryCurrent       QueryType = "current"
	QueryForecast      QueryType = "forecast"
	QueryTemperature   QueryType = "temperature"
	QueryPrecipitation QueryType = "precipitation"
	QueryWind          QueryType = "wind"
	QueryHumidity      QueryType = "humidity"
)

// DateType tags how a date was extracted from the query text.
type DateType string

const (
	DateSpecific DateType = "specific" // one exact day
	DateRange    DateType = "range"    // a span, e.g. "this weekend"
	DateDefault  DateType = "default"  // no date mentioned, use now
)

// DateInfo is the result of date extraction. Extraction is total: when no
// date-like text is found, Type is DateDefault with Text "now".
type DateInfo struct {
	Date      time.Time  `json:"date"`
	Type      DateType   `json:"type"`
	Text      string     `json:"text"`
	RangeEnd  *time.Time `json:"range_end,omitempty"`
	Formatted string     `json:"formatted,omitempty"`
}

// Document is an opaque upstream weather payload. Its shape depends on the
// provider variant: Open-Meteo style carries current/daily/hourly keys,
// OpenWeatherMap style carries main/weather/list keys.
type Document map[string]any

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusWarning = "warning"
)

// QueryResult is the assembled outcome of one processed query.
type QueryResult struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Location  *Location `json:"location"`
	Data      Document  `json:"data"`
	QueryType QueryType `json:"query_type"`
	DateInfo  *DateInfo `json:"date_info"`
}

// Response is the generic JSON envelope returned by the HTTP handlers.
type Response struct {
	Data    any     `json:"data,omitempty"`
	Error   *string `json:"error,omitempty"`
	Message string  `json:"message"`
}
