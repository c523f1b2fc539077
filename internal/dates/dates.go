// Package dates extracts a target date or date range from free-text weather
// queries using an ordered rule cascade. Rule order is part of the contract:
// the first rule that matches wins, and the trailing default rule makes
// extraction total.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

var (
	relativeWeekPattern = regexp.MustCompile(`\b(this|next)\s+(week(?:end)?|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	numericDatePattern  = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})(?:[/\-.](\d{2,4}))?\b`)

	namedDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:on|for|this)\s+([a-z]+\s+\d{1,2}(?:st|nd|rd|th)?(?:,\s+\d{4})?)\b`),
		regexp.MustCompile(`\b(\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?[a-z]+(?:\s+\d{4})?)\b`),
	}

	ordinalSuffix = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Extract finds the date reference in query relative to now. It never returns
// nil: with no date-like text the result has type "default" and text "now".
func Extract(query string, now time.Time) *model.DateInfo {
	lc := strings.ToLower(query)
	today := startOfDay(now)

	switch {
	case strings.Contains(lc, "today"):
		return &model.DateInfo{Date: today, Type: model.DateSpecific, Text: "today"}
	case strings.Contains(lc, "tomorrow"):
		return &model.DateInfo{Date: today.AddDate(0, 0, 1), Type: model.DateSpecific, Text: "tomorrow"}
	case strings.Contains(lc, "day after tomorrow"), strings.Contains(lc, "after tomorrow"):
		return &model.DateInfo{Date: today.AddDate(0, 0, 2), Type: model.DateSpecific, Text: "day after tomorrow"}
	}

	if m := relativeWeekPattern.FindStringSubmatch(lc); m != nil {
		return relativeDate(m[1], m[2], now)
	}

	if m := numericDatePattern.FindStringSubmatch(lc); m != nil {
		if info := numericDate(m, now); info != nil {
			return info
		}
	}

	for _, pattern := range namedDatePatterns {
		m := pattern.FindStringSubmatch(lc)
		if m == nil {
			continue
		}
		if date, ok := parseNamedDate(m[1], now); ok {
			return &model.DateInfo{Date: date, Type: model.DateSpecific, Text: m[1]}
		}
	}

	return &model.DateInfo{Date: now, Type: model.DateDefault, Text: "now"}
}

// relativeDate resolves "(this|next) (weekend|week|<weekday>)". "this" allows
// today to count as the target day; "next" always moves forward.
func relativeDate(prefix, unit string, now time.Time) *model.DateInfo {
	strict := prefix == "next"

	switch unit {
	case "weekend":
		date := upcomingWeekday(now, time.Saturday, strict)
		end := date.AddDate(0, 0, 1) // Sunday
		return &model.DateInfo{
			Date:     date,
			Type:     model.DateRange,
			Text:     prefix + " weekend",
			RangeEnd: &end,
		}
	case "week":
		date := upcomingWeekday(now, time.Monday, strict)
		end := date.AddDate(0, 0, 6) // Sunday
		return &model.DateInfo{
			Date:     date,
			Type:     model.DateRange,
			Text:     prefix + " week",
			RangeEnd: &end,
		}
	default:
		return &model.DateInfo{
			Date: upcomingWeekday(now, weekdays[unit], strict),
			Type: model.DateSpecific,
			Text: prefix + " " + unit,
		}
	}
}

func upcomingWeekday(now time.Time, target time.Weekday, strict bool) time.Time {
	days := (int(target) - int(now.Weekday()) + 7) % 7
	if days == 0 && strict {
		days = 7
	}
	return startOfDay(now).AddDate(0, 0, days)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// numericDate parses D/M/Y forms. Invalid calendar dates (day 40, month 13)
// return nil so the cascade moves on instead of failing.
func numericDate(m []string, now time.Time) *model.DateInfo {
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	// time.Date normalizes out-of-range components; reject anything that
	// did not round-trip.
	if date.Day() != day || int(date.Month()) != month || date.Year() != year {
		return nil
	}
	return &model.DateInfo{Date: date, Type: model.DateSpecific, Text: m[0]}
}

// parseNamedDate handles forms like "march 5", "5th of march" and
// "january 15, 2026". Yearless dates resolve within the current year.
func parseNamedDate(text string, now time.Time) (time.Time, bool) {
	cleaned := ordinalSuffix.ReplaceAllString(text, "$1")
	cleaned = strings.ReplaceAll(cleaned, " of ", " ")

	if date, err := dateparse.ParseIn(cleaned, now.Location()); err == nil && date.Year() > 1 {
		return date, true
	}
	withYear := cleaned + " " + strconv.Itoa(now.Year())
	if date, err := dateparse.ParseIn(withYear, now.Location()); err == nil {
		return date, true
	}
	return time.Time{}, false
}
