package weather

import (
	"time"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

// The gateway hands payloads around as opaque documents; the parsers below
// are the only code that knows the two supported provider shapes. Shape is
// decided by key presence (current/daily/hourly vs main/list), never by a
// provider tag.

// CurrentConditions is the normalized view of a current-weather payload.
// All wind speeds are km/h; temperatures are °C.
type CurrentConditions struct {
	Temperature      float64
	FeelsLike        float64
	Humidity         float64
	WindSpeedKmh     float64
	WindDirectionDeg float64
	HasWindDirection bool
	GustKmh          float64
	HasGust          bool
	PrecipitationMm  float64
	HasPrecipitation bool
	RainLastHourMm   float64
	HasRain          bool
	SnowLastHourMm   float64
	HasSnow          bool
	Condition        string
	ConditionGroup   string // coarse bucket (Clear, Clouds, Rain, ...) for precipitation wording
	MinTemp          float64
	MaxTemp          float64
	HasRange         bool
}

// DayForecast is one normalized day of a daily forecast series.
type DayForecast struct {
	Date              time.Time
	MinTemp           float64
	MaxTemp           float64
	HasTemps          bool
	AvgTemp           float64
	Condition         string
	ConditionGroup    string
	PrecipProbability float64
	HasPrecipProb     bool
	RainMm            float64
	SnowMm            float64
	WindSpeedKmh      float64
	HasWind           bool
	WindDirectionDeg  float64
	HasWindDir        bool
	GustKmh           float64
	HasGust           bool
	Humidity          float64
	HasHumidity       bool
}

// HourForecast is one normalized hour of upcoming forecast.
type HourForecast struct {
	Time        time.Time
	Label       string // "7am", "2pm"
	Temperature float64
	HasTemp     bool
	Condition   string
}

const msToKmh = 3.6

// ParseCurrent normalizes a current-weather document. The second return is
// false when neither supported shape is present.
func ParseCurrent(doc model.Document) (*CurrentConditions, bool) {
	if cur := getMap(doc, "current"); cur != nil {
		return parseOpenMeteoCurrent(cur), true
	}
	if main := getMap(doc, "main"); main != nil {
		return parseOpenWeatherCurrent(doc, main), true
	}
	return nil, false
}

func parseOpenMeteoCurrent(cur map[string]any) *CurrentConditions {
	c := &CurrentConditions{}
	c.Temperature, _ = numAt(cur, "temperature_2m")
	c.FeelsLike, _ = numAt(cur, "apparent_temperature")
	c.Humidity, _ = numAt(cur, "relative_humidity_2m")
	// Open-Meteo is queried with wind_speed_unit=kmh, so no conversion here.
	c.WindSpeedKmh, _ = numAt(cur, "wind_speed_10m")
	c.WindDirectionDeg, c.HasWindDirection = numAt(cur, "wind_direction_10m")
	c.GustKmh, c.HasGust = numAt(cur, "wind_gusts_10m")
	c.PrecipitationMm, c.HasPrecipitation = numAt(cur, "precipitation")
	if code, ok := numAt(cur, "weather_code"); ok {
		c.Condition = ConditionFromCode(int(code))
		c.ConditionGroup = conditionGroupFromCode(int(code))
	}
	return c
}

func parseOpenWeatherCurrent(doc model.Document, main map[string]any) *CurrentConditions {
	c := &CurrentConditions{}
	c.Temperature, _ = numAt(main, "temp")
	c.FeelsLike, _ = numAt(main, "feels_like")
	c.Humidity, _ = numAt(main, "humidity")
	minTemp, okMin := numAt(main, "temp_min")
	maxTemp, okMax := numAt(main, "temp_max")
	if okMin && okMax {
		c.MinTemp, c.MaxTemp, c.HasRange = minTemp, maxTemp, true
	}

	if wind := getMap(doc, "wind"); wind != nil {
		if speed, ok := numAt(wind, "speed"); ok {
			c.WindSpeedKmh = speed * msToKmh
		}
		c.WindDirectionDeg, c.HasWindDirection = numAt(wind, "deg")
		if gust, ok := numAt(wind, "gust"); ok {
			c.GustKmh, c.HasGust = gust*msToKmh, true
		}
	}
	if weather := firstMap(doc, "weather"); weather != nil {
		c.Condition = titleCase(strAt(weather, "description"))
		c.ConditionGroup = strAt(weather, "main")
	}
	if rain := getMap(doc, "rain"); rain != nil {
		c.RainLastHourMm, c.HasRain = numAt(rain, "1h")
	}
	if snow := getMap(doc, "snow"); snow != nil {
		c.SnowLastHourMm, c.HasSnow = numAt(snow, "1h")
	}
	return c
}

// ParseDaily normalizes a multi-day forecast series from either shape.
// Returns nil when the document carries no daily data.
func ParseDaily(doc model.Document) []DayForecast {
	if daily := getMap(doc, "daily"); daily != nil {
		return parseOpenMeteoDaily(daily)
	}
	if list := getSlice(doc, "list"); list != nil {
		return parseOpenWeatherDaily(list)
	}
	return nil
}

func parseOpenMeteoDaily(daily map[string]any) []DayForecast {
	times := getSlice(daily, "time")
	out := make([]DayForecast, 0, len(times))
	for i, t := range times {
		raw, _ := t.(string)
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			continue
		}
		day := DayForecast{Date: date}

		minT, okMin := numIndex(daily, "temperature_2m_min", i)
		maxT, okMax := numIndex(daily, "temperature_2m_max", i)
		if okMin && okMax {
			day.MinTemp, day.MaxTemp, day.HasTemps = minT, maxT, true
			day.AvgTemp = (minT + maxT) / 2
		}
		// The provider has used both spellings across API versions.
		code, ok := numIndex(daily, "weather_code", i)
		if !ok {
			code, ok = numIndex(daily, "weathercode", i)
		}
		if ok {
			day.Condition = ConditionFromCode(int(code))
			day.ConditionGroup = conditionGroupFromCode(int(code))
		} else {
			day.Condition = "varied"
		}
		if p, ok := numIndex(daily, "precipitation_probability_max", i); ok {
			day.PrecipProbability, day.HasPrecipProb = p/100, true
		}
		if sum, ok := numIndex(daily, "precipitation_sum", i); ok {
			day.RainMm = sum
		}
		if w, ok := numIndex(daily, "wind_speed_10m_max", i); ok {
			day.WindSpeedKmh, day.HasWind = w, true
		}
		if d, ok := numIndex(daily, "wind_direction_10m_dominant", i); ok {
			day.WindDirectionDeg, day.HasWindDir = d, true
		}
		if g, ok := numIndex(daily, "wind_gusts_10m_max", i); ok {
			day.GustKmh, day.HasGust = g, true
		}
		out = append(out, day)
	}
	return out
}

// parseOpenWeatherDaily groups the provider's 3-hourly list into days.
func parseOpenWeatherDaily(list []any) []DayForecast {
	type bucket struct {
		date       time.Time
		temps      []float64
		minTemp    float64
		maxTemp    float64
		hasMin     bool
		hasMax     bool
		conditions []string
		pops       []float64
		rainMm     float64
		snowMm     float64
		speeds     []float64
		dirs       []float64
		maxGust    float64
		hasGust    bool
		humidities []float64
	}

	var order []string
	buckets := make(map[string]*bucket)

	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ts, ok := numAt(entry, "dt")
		if !ok {
			continue
		}
		when := time.Unix(int64(ts), 0).UTC()
		key := when.Format("2006-01-02")
		b, seen := buckets[key]
		if !seen {
			b = &bucket{date: time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, time.UTC)}
			buckets[key] = b
			order = append(order, key)
		}

		if main := getMap(entry, "main"); main != nil {
			if t, ok := numAt(main, "temp"); ok {
				b.temps = append(b.temps, t)
			}
			if t, ok := numAt(main, "temp_min"); ok && (!b.hasMin || t < b.minTemp) {
				b.minTemp, b.hasMin = t, true
			}
			if t, ok := numAt(main, "temp_max"); ok && (!b.hasMax || t > b.maxTemp) {
				b.maxTemp, b.hasMax = t, true
			}
			if h, ok := numAt(main, "humidity"); ok {
				b.humidities = append(b.humidities, h)
			}
		}
		if weather := firstMap(entry, "weather"); weather != nil {
			b.conditions = append(b.conditions, strAt(weather, "main"))
		}
		if p, ok := numAt(entry, "pop"); ok {
			b.pops = append(b.pops, p)
		}
		if rain := getMap(entry, "rain"); rain != nil {
			if mm, ok := numAt(rain, "3h"); ok {
				b.rainMm += mm
			}
		}
		if snow := getMap(entry, "snow"); snow != nil {
			if mm, ok := numAt(snow, "3h"); ok {
				b.snowMm += mm
			}
		}
		if wind := getMap(entry, "wind"); wind != nil {
			if s, ok := numAt(wind, "speed"); ok {
				b.speeds = append(b.speeds, s)
			}
			if d, ok := numAt(wind, "deg"); ok {
				b.dirs = append(b.dirs, d)
			}
			if g, ok := numAt(wind, "gust"); ok && (!b.hasGust || g > b.maxGust) {
				b.maxGust, b.hasGust = g, true
			}
		}
	}

	out := make([]DayForecast, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		day := DayForecast{Date: b.date, RainMm: b.rainMm, SnowMm: b.snowMm}
		if len(b.temps) > 0 {
			day.AvgTemp = mean(b.temps)
		}
		if b.hasMin && b.hasMax {
			day.MinTemp, day.MaxTemp, day.HasTemps = b.minTemp, b.maxTemp, true
		}
		day.Condition = MostCommonCondition(b.conditions)
		day.ConditionGroup = day.Condition
		if len(b.pops) > 0 {
			day.PrecipProbability, day.HasPrecipProb = mean(b.pops), true
		}
		if len(b.speeds) > 0 {
			day.WindSpeedKmh, day.HasWind = mean(b.speeds)*msToKmh, true
		}
		if len(b.dirs) > 0 {
			day.WindDirectionDeg, day.HasWindDir = mean(b.dirs), true
		}
		if b.hasGust {
			day.GustKmh, day.HasGust = b.maxGust*msToKmh, true
		}
		if len(b.humidities) > 0 {
			day.Humidity, day.HasHumidity = mean(b.humidities), true
		}
		out = append(out, day)
	}
	return out
}

// NextHours extracts up to n upcoming hourly entries aligned to the current
// hour in the location's timezone. Returns nil when no hourly data exists.
func NextHours(doc model.Document, now time.Time, n int) []HourForecast {
	tz := DocTimezone(doc)
	local := now.In(tz)
	currentHour := local.Hour()
	hourStart := time.Date(local.Year(), local.Month(), local.Day(), currentHour, 0, 0, 0, tz)

	if hourly := getMap(doc, "hourly"); hourly != nil {
		times := getSlice(hourly, "time")
		start := -1
		for i, t := range times {
			raw, _ := t.(string)
			parsed, err := time.ParseInLocation("2006-01-02T15:04", raw, tz)
			if err != nil {
				continue
			}
			if parsed.Hour() == currentHour && sameDay(parsed, local) {
				start = i
				break
			}
		}
		if start < 0 {
			return nil
		}
		var out []HourForecast
		for i := start; i < start+n && i < len(times); i++ {
			raw, _ := times[i].(string)
			parsed, err := time.ParseInLocation("2006-01-02T15:04", raw, tz)
			if err != nil {
				continue
			}
			h := HourForecast{Time: parsed, Label: hourLabel(parsed)}
			h.Temperature, h.HasTemp = numIndex(hourly, "temperature_2m", i)
			code, ok := numIndex(hourly, "weather_code", i)
			if !ok {
				code, ok = numIndex(hourly, "weathercode", i)
			}
			if ok {
				h.Condition = ConditionFromCode(int(code))
			} else {
				h.Condition = "Unknown"
			}
			out = append(out, h)
		}
		return out
	}

	if list := getSlice(doc, "list"); list != nil {
		var out []HourForecast
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ts, ok := numAt(entry, "dt")
			if !ok {
				continue
			}
			when := time.Unix(int64(ts), 0).In(tz)
			if when.Before(hourStart) {
				continue
			}
			h := HourForecast{Time: when, Label: hourLabel(when)}
			if main := getMap(entry, "main"); main != nil {
				h.Temperature, h.HasTemp = numAt(main, "temp")
			}
			if weather := firstMap(entry, "weather"); weather != nil {
				h.Condition = titleCase(strAt(weather, "description"))
			}
			if h.Condition == "" {
				h.Condition = "Unknown"
			}
			out = append(out, h)
			if len(out) >= n {
				break
			}
		}
		return out
	}
	return nil
}

// DocTimezone reads the payload's timezone key, defaulting to UTC.
func DocTimezone(doc model.Document) *time.Location {
	name, _ := doc["timezone"].(string)
	if name == "" {
		return time.UTC
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return tz
}

// conditionGroupFromCode buckets a weather code the way the OpenWeatherMap
// shape reports its coarse "main" condition.
func conditionGroupFromCode(code int) string {
	switch {
	case code == 0 || code == 1:
		return "Clear"
	case code == 2 || code == 3:
		return "Clouds"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return "Rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "Snow"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}

func hourLabel(t time.Time) string {
	return t.Format("3pm")
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - 'a' + 'A'
	}
	return string(r)
}

// --- loose document access helpers ---

func getMap(doc map[string]any, key string) map[string]any {
	m, _ := doc[key].(map[string]any)
	return m
}

func getSlice(doc map[string]any, key string) []any {
	s, _ := doc[key].([]any)
	return s
}

func firstMap(doc map[string]any, key string) map[string]any {
	s := getSlice(doc, key)
	if len(s) == 0 {
		return nil
	}
	m, _ := s[0].(map[string]any)
	return m
}

func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func numAt(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return num(v)
}

func numIndex(m map[string]any, key string, i int) (float64, bool) {
	s := getSlice(m, key)
	if i < 0 || i >= len(s) {
		return 0, false
	}
	return num(s[i])
}

func strAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
