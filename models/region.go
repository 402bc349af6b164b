package models

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrMalformedRegionURL is returned when a directory link does not carry an
// `id=<int>#<name>` fragment.
var ErrMalformedRegionURL = errors.New("malformed region url")

var regionURLPattern = regexp.MustCompile(`id=(\d+)#([a-zA-Z]+)`)

// Region groups the libraries of one federal state.
type Region struct {
	ID        int
	Name      string
	Libraries []*Library
}

// NewRegion builds a region with a normalized name.
func NewRegion(id int, name string, libraries ...*Library) *Region {
	return &Region{
		ID:        id,
		Name:      NormalizeRegionName(name),
		Libraries: libraries,
	}
}

// NormalizeRegionName capitalizes the first letter, lowercases the rest and
// replaces spaces with underscores.
func NormalizeRegionName(name string) string {
	if name == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(name)
	normalized := string(unicode.ToUpper(first)) + strings.ToLower(name[size:])
	return strings.ReplaceAll(normalized, " ", "_")
}

// ParseRegionURL creates a region from a directory link such as
// `/index.php?id=43#badenwuerttemberg`.
func ParseRegionURL(href string) (*Region, error) {
	m := regionURLPattern.FindStringSubmatch(href)
	if m == nil {
		slog.Error("cannot create region from url", slog.String("url", href))
		return nil, fmt.Errorf("%w: %q", ErrMalformedRegionURL, href)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		slog.Error("cannot create region from url", slog.String("url", href), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedRegionURL, href, err)
	}
	return NewRegion(id, m[2]), nil
}

// Library returns the first library whose title matches key case-insensitively.
func (r *Region) Library(title string) *Library {
	for _, lib := range r.Libraries {
		if strings.EqualFold(lib.Title, title) {
			return lib
		}
	}
	return nil
}

// FixSearchURL overrides the search endpoint of the library titled title, if present.
func (r *Region) FixSearchURL(title, searchURL string) bool {
	lib := r.Library(title)
	if lib == nil {
		return false
	}
	lib.SearchURL = searchURL
	return true
}

// Remove drops the library titled title. It reports whether one was removed.
func (r *Region) Remove(title string) bool {
	for i, lib := range r.Libraries {
		if strings.EqualFold(lib.Title, title) {
			r.Libraries = append(r.Libraries[:i], r.Libraries[i+1:]...)
			return true
		}
	}
	return false
}

// GroupByTitle merges libraries sharing a title (case-insensitive). The first
// library of each group survives and collects the cities of the others.
func (r *Region) GroupByTitle() {
	index := make(map[string]*Library, len(r.Libraries))
	grouped := make([]*Library, 0, len(r.Libraries))
	for _, lib := range r.Libraries {
		key := strings.ToLower(lib.Title)
		if keeper, ok := index[key]; ok {
			keeper.Merge(lib)
			continue
		}
		index[key] = lib
		grouped = append(grouped, lib)
	}
	r.Libraries = grouped
}

func (r *Region) String() string {
	return fmt.Sprintf("Region(%2d, %s)", r.ID, r.Name)
}
