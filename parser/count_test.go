package parser

import (
	"strconv"
	"strings"
	"testing"
)

func TestParseResultCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"42-Treffer!", 42},
		{"5 \ttreffer", 5},
		{"keine Treffer", 0},
		{"keine  treffer", 0},
		{"1.234 Treffer", 1234},
		{"0", ParseFailed},
		{"Treffer", ParseFailed},
	}
	for _, tt := range tests {
		got := ParseResultCount("<h2>Suchergebnis : " + tt.text + "</h2>")
		if got != tt.want {
			t.Fatalf("ParseResultCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestParseResultCountNoHeading(t *testing.T) {
	if got := ParseResultCount("<html><body>42 Treffer</body></html>"); got != ParseFailed {
		t.Fatalf("count without heading = %d, want %d", got, ParseFailed)
	}
}

func TestParseResultCountThousandsRoundTrip(t *testing.T) {
	for _, n := range []int{0, 7, 999, 1000, 12345, 1234567} {
		text := "Suchergebnis : " + withThousands(n) + " Treffer"
		if got := ParseResultCount(text); got != n {
			t.Fatalf("ParseResultCount(%q) = %d, want %d", text, got, n)
		}
	}
}

func withThousands(n int) string {
	s := strconv.Itoa(n)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ".")
}
