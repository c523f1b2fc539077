package respond

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

// FallbackMessage produces the deterministic, templated answer used whenever
// the generative provider is unavailable. isCurrent selects the live-value
// variant for the metric intents; the future variant aggregates over the
// forecast window.
func FallbackMessage(queryType model.QueryType, doc model.Document, loc *model.Location, dateInfo *model.DateInfo, isCurrent bool, now time.Time) string {
	switch queryType {
	case model.QueryForecast:
		return formatForecast(doc, loc, dateInfo, now)
	case model.QueryTemperature:
		return formatTemperature(doc, loc, dateInfo, isCurrent)
	case model.QueryPrecipitation:
		return formatPrecipitation(doc, loc, dateInfo, isCurrent)
	case model.QueryWind:
		return formatWind(doc, loc, dateInfo, isCurrent)
	case model.QueryHumidity:
		return formatHumidity(doc, loc, dateInfo, isCurrent)
	default:
		return formatCurrent(doc, loc)
	}
}

func formatCurrent(doc model.Document, loc *model.Location) string {
	cur, ok := weather.ParseCurrent(doc)
	if !ok {
		return fmt.Sprintf("Sorry, I couldn't get the current weather for %s.", loc.Name)
	}
	return fmt.Sprintf("Current weather in %s: %s. Temperature is %d°C (feels like %d°C). Humidity is %d%% with wind speed of %d km/h.",
		loc.Label(), cur.Condition, round(cur.Temperature), round(cur.FeelsLike), round(cur.Humidity), round(cur.WindSpeedKmh))
}

func formatForecast(doc model.Document, loc *model.Location, dateInfo *model.DateInfo, now time.Time) string {
	days := weather.ParseDaily(doc)
	if len(days) == 0 {
		return fmt.Sprintf("Sorry, I couldn't get the forecast for %s.", loc.Name)
	}

	if dateInfo != nil && dateInfo.Type == model.DateSpecific {
		day, found := findDay(days, dateInfo.Date)
		if !found {
			return fmt.Sprintf("Sorry, I don't have forecast data for %s in %s.", dateInfo.Text, loc.Name)
		}
		return fmt.Sprintf("Weather forecast for %s in %s: Expect %s conditions with temperatures between %d°C and %d°C.",
			dayName(dateInfo.Date, now), loc.Label(), strings.ToLower(day.Condition), round(day.MinTemp), round(day.MaxTemp))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "5-day weather forecast for %s:\n\n", loc.Label())
	for i, day := range days {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "%s: %s, %d°C (min: %d°C, max: %d°C)\n",
			titleDayName(day.Date, now), day.Condition, round(day.AvgTemp), round(day.MinTemp), round(day.MaxTemp))
	}
	return b.String()
}

func formatTemperature(doc model.Document, loc *model.Location, dateInfo *model.DateInfo, isCurrent bool) string {
	if isCurrent {
		cur, ok := weather.ParseCurrent(doc)
		if !ok {
			return fmt.Sprintf("Sorry, I couldn't get the temperature information for %s.", loc.Name)
		}
		msg := fmt.Sprintf("Current temperature in %s is %d°C (feels like %d°C).",
			loc.Label(), round(cur.Temperature), round(cur.FeelsLike))
		if cur.HasRange {
			msg += fmt.Sprintf(" Today's range is from %d°C to %d°C.", round(cur.MinTemp), round(cur.MaxTemp))
		}
		return msg
	}

	dateName := dateInfo.Date.Format("Monday, January 2")
	if day, found := findDay(weather.ParseDaily(doc), dateInfo.Date); found && day.HasTemps {
		return fmt.Sprintf("Temperature forecast for %s in %s: Average temperature will be around %d°C with a range from %d°C to %d°C.",
			dateName, loc.Label(), round(day.AvgTemp), round(day.MinTemp), round(day.MaxTemp))
	}
	if cur, ok := weather.ParseCurrent(doc); ok {
		return fmt.Sprintf("Temperature for %s in %s is %d°C.", dateName, loc.Label(), round(cur.Temperature))
	}
	return fmt.Sprintf("Sorry, I couldn't get the temperature information for %s.", loc.Name)
}

func formatPrecipitation(doc model.Document, loc *model.Location, dateInfo *model.DateInfo, isCurrent bool) string {
	if isCurrent {
		cur, ok := weather.ParseCurrent(doc)
		if !ok {
			return fmt.Sprintf("Sorry, I couldn't get the precipitation information for %s.", loc.Name)
		}
		msg := fmt.Sprintf("Currently in %s: %s.", loc.Label(), precipitationStatus(cur.ConditionGroup, cur.Condition))
		if cur.HasRain {
			msg += fmt.Sprintf(" Rainfall in the last hour: %.1f mm.", cur.RainLastHourMm)
		}
		if cur.HasSnow {
			msg += fmt.Sprintf(" Snowfall in the last hour: %.1f mm.", cur.SnowLastHourMm)
		}
		if !cur.HasRain && !cur.HasSnow && cur.HasPrecipitation && cur.PrecipitationMm > 0 {
			msg += fmt.Sprintf(" Precipitation in the last hour: %.1f mm.", cur.PrecipitationMm)
		}
		return msg
	}

	dateName := dateInfo.Date.Format("Monday, January 2")
	day, found := findDay(weather.ParseDaily(doc), dateInfo.Date)
	if !found {
		return fmt.Sprintf("Sorry, I couldn't get the precipitation information for %s.", loc.Name)
	}
	status := precipitationStatus(day.ConditionGroup, day.Condition)
	pop := 0
	if day.HasPrecipProb {
		pop = round(day.PrecipProbability * 100)
	}
	msg := fmt.Sprintf("Precipitation forecast for %s in %s: %s with %d%% chance of precipitation.",
		dateName, loc.Label(), status, pop)
	if day.RainMm > 0 {
		msg += fmt.Sprintf(" Expected rainfall: %.1f mm.", day.RainMm)
	}
	if day.SnowMm > 0 {
		msg += fmt.Sprintf(" Expected snowfall: %.1f mm.", day.SnowMm)
	}
	return msg
}

func formatWind(doc model.Document, loc *model.Location, dateInfo *model.DateInfo, isCurrent bool) string {
	if isCurrent {
		cur, ok := weather.ParseCurrent(doc)
		if !ok || !cur.HasWindDirection {
			return fmt.Sprintf("Sorry, I couldn't get the wind information for %s.", loc.Name)
		}
		msg := fmt.Sprintf("Current wind in %s is %d km/h from the %s.",
			loc.Label(), round(cur.WindSpeedKmh), weather.WindDirection(cur.WindDirectionDeg))
		if cur.HasGust {
			msg += fmt.Sprintf(" Gusts up to %d km/h.", round(cur.GustKmh))
		}
		return msg
	}

	dateName := dateInfo.Date.Format("Monday, January 2")
	day, found := findDay(weather.ParseDaily(doc), dateInfo.Date)
	if !found || !day.HasWind || !day.HasWindDir {
		return fmt.Sprintf("Sorry, I couldn't get the wind information for %s.", loc.Name)
	}
	msg := fmt.Sprintf("Wind forecast for %s in %s: Average wind speed of %d km/h from the %s.",
		dateName, loc.Label(), round(day.WindSpeedKmh), weather.WindDirection(day.WindDirectionDeg))
	if day.HasGust {
		msg += fmt.Sprintf(" Gusts up to %d km/h possible.", round(day.GustKmh))
	}
	return msg
}

func formatHumidity(doc model.Document, loc *model.Location, dateInfo *model.DateInfo, isCurrent bool) string {
	if isCurrent {
		cur, ok := weather.ParseCurrent(doc)
		if !ok {
			return fmt.Sprintf("Sorry, I couldn't get the humidity information for %s.", loc.Name)
		}
		return fmt.Sprintf("Current humidity in %s is %d%%.", loc.Label(), round(cur.Humidity))
	}

	dateName := dateInfo.Date.Format("Monday, January 2")
	if day, found := findDay(weather.ParseDaily(doc), dateInfo.Date); found && day.HasHumidity {
		return fmt.Sprintf("Humidity forecast for %s in %s: Average humidity will be around %d%%.",
			dateName, loc.Label(), round(day.Humidity))
	}
	if cur, ok := weather.ParseCurrent(doc); ok {
		return fmt.Sprintf("Humidity for %s in %s is %d%%.", dateName, loc.Label(), round(cur.Humidity))
	}
	return fmt.Sprintf("Sorry, I couldn't get the humidity information for %s.", loc.Name)
}

// precipitationStatus turns a coarse condition group into precipitation
// wording. The description is only consulted for unrecognized groups.
func precipitationStatus(group, description string) string {
	switch strings.ToLower(group) {
	case "rain", "drizzle":
		return "Raining"
	case "snow":
		return "Snowing"
	case "thunderstorm":
		return "Thunderstorms"
	case "clear":
		return "No precipitation"
	case "clouds":
		return "Cloudy with no precipitation"
	case "mist", "fog", "haze":
		return group + " with no precipitation"
	default:
		if description != "" {
			return description
		}
		return group
	}
}

func findDay(days []weather.DayForecast, date time.Time) (weather.DayForecast, bool) {
	want := date.Format("2006-01-02")
	for _, day := range days {
		if day.Date.Format("2006-01-02") == want {
			return day, true
		}
	}
	return weather.DayForecast{}, false
}

func dayName(date, now time.Time) string {
	switch {
	case sameDay(date, now):
		return "today"
	case sameDay(date, now.AddDate(0, 0, 1)):
		return "tomorrow"
	default:
		return date.Format("Monday, January 2")
	}
}

func titleDayName(date, now time.Time) string {
	switch {
	case sameDay(date, now):
		return "Today"
	case sameDay(date, now.AddDate(0, 0, 1)):
		return "Tomorrow"
	default:
		return date.Format("Monday, Jan 2")
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func round(v float64) int {
	return int(math.Round(v))
}
