package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// ParseFailed is returned by ParseResultCount when no count is present.
const ParseFailed = -1

var resultCountPattern = regexp.MustCompile(`Suchergebnis .* ([\d.]+|keine)[^0-9.]*(?i:treffer)`)

// ParseResultCount extracts the number of hits from a result page, e.g.
// "Suchergebnis : 1.234 Treffer". "keine Treffer" yields 0.
func ParseResultCount(text string) int {
	m := resultCountPattern.FindStringSubmatch(text)
	if m == nil {
		return ParseFailed
	}
	if m[1] == "keine" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ".", ""))
	if err != nil {
		return ParseFailed
	}
	return n
}
