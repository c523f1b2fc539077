package geo

import (
	"regexp"
	"strings"
)

// locationPatterns are tried in order against the raw query; the first
// pattern whose capture survives the stopword filter wins. Order is part of
// the contract, so earlier phrasings beat later ones on the same input.
var locationPatterns = []*regexp.Regexp{
	// "in/at/for/of X"
	regexp.MustCompile(`(?i)\b(?:in|at|for|of)\s+([A-Za-z\s',]+?)(?:\s|$|\?|\.|,|;|tomorrow|today|next|this|on|the weather)`),
	// "X weather" / "X forecast"
	regexp.MustCompile(`(?i)\b([A-Za-z\s',]+?)(?:\s+weather\b|\s+forecast\b)`),
	// "weather in/at/for X"
	regexp.MustCompile(`(?i)\bweather\s+(?:in|at|for)\s+([A-Za-z\s',]+)(?:\s|$|\?|\.)`),
	// "planning to <verb> in X"
	regexp.MustCompile(`(?i)\bplanning to [a-z]+\s+in\s+([A-Za-z\s',]+?)(?:\s|$|\?|\.|,|;|tomorrow|today)`),
	// "going to X"
	regexp.MustCompile(`(?i)\bgoing to\s+([A-Za-z\s',]+?)(?:\s|$|\?|\.|,|;|tomorrow|today)`),
	// "visit/visiting X"
	regexp.MustCompile(`(?i)\b(?:visit|visiting)\s+([A-Za-z\s',]+?)(?:\s|$|\?|\.|,|;|tomorrow|today)`),
	// "X City" suffix forms ("Batangas City", "New York City")
	regexp.MustCompile(`(?i)\b([A-Za-z\s']+\s+City)(?:\s|$|\?|\.|,|;|tomorrow|today)`),
}

// stopwords are frequent query words that a pattern can capture but that are
// never locations.
var stopwords = map[string]struct{}{
	"the": {}, "weather": {}, "forecast": {}, "current": {},
	"today": {}, "tomorrow": {}, "week": {}, "weekend": {},
}

var countrySuffix = regexp.MustCompile(`,\s*([A-Za-z\s]+)$`)

// ExtractLocationText pulls a location candidate out of free text. A matched
// candidate that fails the stopword or length filter falls through to the
// next pattern rather than ending the search.
func ExtractLocationText(query string) (string, bool) {
	for _, pattern := range locationPatterns {
		m := pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		candidate = strings.TrimRight(candidate, ",;.!? ")

		if _, stop := stopwords[strings.ToLower(candidate)]; stop {
			continue
		}
		if len(candidate) <= 2 {
			continue
		}
		return candidate, true
	}
	return "", false
}

// SplitCountry strips a trailing ", Country" segment off a location candidate
// and returns it as a search filter. The heuristic is deliberately simple and
// can misfire on comma-bearing place names; disambiguation wins on balance.
func SplitCountry(text string) (searchText, country string) {
	m := countrySuffix.FindStringSubmatch(text)
	if m == nil {
		return text, ""
	}
	country = strings.TrimSpace(m[1])
	searchText = strings.TrimSpace(strings.Replace(text, m[0], "", 1))
	return searchText, country
}
