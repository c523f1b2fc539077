package query

import (
	"strings"
	"time"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

// Keyword groups checked in a fixed priority order. The first group with a
// match decides the type, so "will it rain this week" classifies as forecast
// even though it also mentions rain.
var intentKeywords = []struct {
	queryType model.QueryType
	words     []string
}{
	{model.QueryForecast, []string{"forecast", "week", "next few days", "5 day", "five day"}},
	{model.QueryTemperature, []string{"temperature", "hot", "cold", "warm", "cool", "degrees"}},
	{model.QueryPrecipitation, []string{"rain", "snow", "precipitation", "raining", "snowing", "thunderstorm", "storm"}},
	{model.QueryWind, []string{"wind", "windy", "breeze", "gust"}},
	{model.QueryHumidity, []string{"humid", "humidity", "moisture"}},
}

// Classify decides the query type from keyword matches, falling back to a
// date-based rule: a specific date later than today means the user wants a
// forecast even without forecast wording.
func Classify(query string, dateInfo *model.DateInfo, now time.Time) model.QueryType {
	q := strings.ToLower(query)

	for _, group := range intentKeywords {
		for _, w := range group.words {
			if strings.Contains(q, w) {
				return group.queryType
			}
		}
	}

	if dateInfo != nil && dateInfo.Type == model.DateSpecific {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if dateInfo.Date.After(midnight) {
			return model.QueryForecast
		}
	}

	return model.QueryCurrent
}
