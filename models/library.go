// Package models defines the data structures shared by the crawler and the search pool.
package models

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Hit count sentinels reported by a library search.
const (
	HitsUnknown     = -255 // no search has run yet
	HitsParseFailed = -1   // result page did not contain a recognisable count
	HitsNoEndpoint  = -3   // no search endpoint could be resolved
	HitsNoResponse  = -4   // the endpoint did not answer after retries
)

// placeholderURL stands in for libraries listed without any address.
const placeholderURL = "NoURL"

var wwwLabel = regexp.MustCompile(`^www\d*$`)

// Library is one electronic catalog, possibly shared by several cities.
type Library struct {
	SourceURL  string
	SearchURL  string
	Cities     []string
	Title      string
	LastSearch int
}

// NewLibrary builds a library from the address found on a region page.
func NewLibrary(sourceURL string, cities []string) *Library {
	if sourceURL == "" {
		sourceURL = placeholderURL
	}
	if strings.Contains(sourceURL, "http//") {
		slog.Info("removed stray scheme from library url", slog.String("url", sourceURL))
		sourceURL = strings.ReplaceAll(sourceURL, "http//", "")
	}

	copied := make([]string, len(cities))
	copy(copied, cities)

	lib := &Library{
		SourceURL:  sourceURL,
		Cities:     copied,
		LastSearch: HitsUnknown,
	}
	lib.RegenerateTitle()
	return lib
}

// RegenerateTitle derives the display title from the search URL when one is
// known, otherwise from the source URL.
func (l *Library) RegenerateTitle() {
	if l.SearchURL != "" {
		l.Title = l.titleFromURL(l.SearchURL)
		return
	}
	l.Title = l.titleFromURL(l.SourceURL)
}

func (l *Library) titleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		u = &url.URL{Path: raw}
	}

	host := u.Host
	labels := strings.Split(host, ".")
	segments := strings.Split(u.Path, "/")

	switch {
	case len(labels) >= 2 && labels[len(labels)-2] != "onleihe":
		return labels[len(labels)-2]
	case len(u.Path) >= 3 && len(segments) > 1 && segments[1] != "":
		return segments[1]
	}

	if len(labels) >= 3 {
		sub := labels[len(labels)-3]
		if sub != "" && !wwwLabel.MatchString(sub) {
			return sub
		}
	}
	if len(l.Cities) > 0 {
		title := l.Cities[0]
		if len(l.Cities) > 1 {
			title += "..."
		}
		return title
	}
	if host != "" {
		return host
	}
	return raw
}

// Merge absorbs the cities of other, keeping first-seen order.
func (l *Library) Merge(other *Library) {
	if other == nil || other == l {
		return
	}
	l.Cities = append(l.Cities, other.Cities...)
}

// HasEndpoint reports whether a search endpoint is known.
func (l *Library) HasEndpoint() bool {
	return l.SearchURL != ""
}

func (l *Library) String() string {
	return fmt.Sprintf("Library(%q, %s)", l.Title, l.SourceURL)
}
