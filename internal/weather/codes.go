package weather

import "math"

// conditionByCode maps Open-Meteo WMO weather codes to human-readable
// condition text. Both the prompt briefing and the deterministic formatters
// rely on this exact table.
var conditionByCode = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Freezing drizzle",
	57: "Freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Freezing rain",
	67: "Freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Snow showers",
	86: "Snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with hail",
	99: "Thunderstorm with hail",
}

// ConditionFromCode translates a provider weather code to condition text.
// Unknown codes map to "Unknown conditions".
func ConditionFromCode(code int) string {
	if text, ok := conditionByCode[code]; ok {
		return text
	}
	return "Unknown conditions"
}

var compassPoints = [16]string{
	"North", "North-Northeast", "Northeast", "East-Northeast",
	"East", "East-Southeast", "Southeast", "South-Southeast",
	"South", "South-Southwest", "Southwest", "West-Southwest",
	"West", "West-Northwest", "Northwest", "North-Northwest",
}

// WindDirection converts degrees to one of 16 compass points.
func WindDirection(degrees float64) string {
	idx := int(math.Round(degrees/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

// MostCommonCondition returns the most frequent condition in order of first
// appearance; ties keep the earlier-seen value.
func MostCommonCondition(conditions []string) string {
	counts := make(map[string]int, len(conditions))
	best := ""
	bestCount := 0
	for _, c := range conditions {
		counts[c]++
		if counts[c] > bestCount {
			best = c
			bestCount = counts[c]
		}
	}
	return best
}
