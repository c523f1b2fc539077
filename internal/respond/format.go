package respond

import (
	"regexp"
	"strings"
)

var (
	lineBreakRuns = regexp.MustCompile(`(\r\n|\r|\n){2,}`)
	sentenceEnds  = regexp.MustCompile(`([.!?])\s+`)
	extraBreaks   = regexp.MustCompile(`\n{3,}`)
	listMarkers   = regexp.MustCompile(`\n?(\d+\.\s|[•\-*]\s)`)
)

// formatResponseText normalizes generated text for display: paragraph breaks
// between sentences, list markers on their own line, no runs of blank lines.
func formatResponseText(text string) string {
	text = lineBreakRuns.ReplaceAllString(text, "\n\n")
	text = sentenceEnds.ReplaceAllString(text, "${1}\n\n")
	text = extraBreaks.ReplaceAllString(text, "\n\n")
	text = listMarkers.ReplaceAllString(text, "\n${1}")
	return strings.TrimSpace(text)
}
