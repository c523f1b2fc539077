package respond

import (
	"fmt"
	"strings"
	"time"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

// buildBriefing renders the weather document into the plain-text context block
// handed to the language model. Times are expressed in the document's own
// timezone so "next hours" lines read naturally for the location.
func buildBriefing(doc model.Document, now time.Time) string {
	local := now.In(weather.DocTimezone(doc))

	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT_TIME: %s (Hour: %d, Timezone: %s)\n\n",
		strings.ToLower(local.Format("3:04 PM")), local.Hour(), local.Location())

	if cur, ok := weather.ParseCurrent(doc); ok {
		b.WriteString("Current Conditions:\n")
		fmt.Fprintf(&b, "- Temperature: %d°C (feels like %d°C)\n", round(cur.Temperature), round(cur.FeelsLike))
		fmt.Fprintf(&b, "- Conditions: %s\n", cur.Condition)
		fmt.Fprintf(&b, "- Humidity: %d%%\n", round(cur.Humidity))
		fmt.Fprintf(&b, "- Wind speed: %d km/h", round(cur.WindSpeedKmh))
		if cur.HasWindDirection {
			fmt.Fprintf(&b, " from the %s", weather.WindDirection(cur.WindDirectionDeg))
		}
		b.WriteString("\n")
		if cur.HasRange {
			fmt.Fprintf(&b, "- Today's range: %d°C to %d°C\n", round(cur.MinTemp), round(cur.MaxTemp))
		}
		b.WriteString("\n")
	}

	b.WriteString("Next 5 Hours:\n")
	hours := weather.NextHours(doc, now, 5)
	if len(hours) == 0 {
		for i := 1; i <= 5; i++ {
			t := local.Add(time.Duration(i) * time.Hour)
			fmt.Fprintf(&b, "- %s: Forecast not available\n", strings.ToLower(t.Format("3PM")))
		}
	} else {
		for _, h := range hours {
			fmt.Fprintf(&b, "- %s: %s", h.Label, weatherEmoji(h.Condition))
			if h.Condition != "" {
				fmt.Fprintf(&b, " %s", h.Condition)
			}
			if h.HasTemp {
				fmt.Fprintf(&b, ", %d°C", round(h.Temperature))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	if days := weather.ParseDaily(doc); len(days) > 0 {
		b.WriteString("Daily Forecast:\n")
		for _, day := range days {
			fmt.Fprintf(&b, "- %s:\n", day.Date.Format("Monday, January 2"))
			if day.HasTemps {
				fmt.Fprintf(&b, "  - Temperature: %d°C to %d°C\n", round(day.MinTemp), round(day.MaxTemp))
			}
			if day.Condition != "" {
				fmt.Fprintf(&b, "  - Conditions: %s\n", day.Condition)
			}
			if day.HasPrecipProb {
				fmt.Fprintf(&b, "  - Chance of precipitation: %d%%\n", round(day.PrecipProbability*100))
			}
			if day.HasWind {
				fmt.Fprintf(&b, "  - Max wind speed: %d km/h\n", round(day.WindSpeedKmh))
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// weatherEmoji maps a condition description to a display emoji for the
// hourly cards the model is asked to emit.
func weatherEmoji(condition string) string {
	c := strings.ToLower(condition)
	switch {
	case strings.Contains(c, "thunder"):
		return "⛈️"
	case strings.Contains(c, "snow"):
		return "❄️"
	case strings.Contains(c, "rain") || strings.Contains(c, "shower") || strings.Contains(c, "drizzle"):
		return "🌧️"
	case strings.Contains(c, "fog") || strings.Contains(c, "mist") || strings.Contains(c, "haze"):
		return "🌫️"
	case strings.Contains(c, "overcast"):
		return "☁️"
	case strings.Contains(c, "cloud"):
		return "⛅"
	case strings.Contains(c, "clear") || strings.Contains(c, "sun"):
		return "☀️"
	default:
		return "🌡️"
	}
}
