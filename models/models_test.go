package models

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLibraryTitle(t *testing.T) {
	tests := []struct {
		url    string
		cities []string
		want   string
	}{
		{url: "https://www4.onleihe.de/thuebibnet/frontend/welcome", want: "thuebibnet"},
		{url: "http://www.nbib24.de/", want: "nbib24"},
		{url: "http://test.url/", want: "test"},
		{url: "https://voebb.onleihe.de/", want: "voebb"},
		{url: "https://www2.onleihe.de/", cities: []string{"Aalen"}, want: "Aalen"},
		{url: "http://onleihe.de/", cities: []string{"Berlin", "Potsdam"}, want: "Berlin..."},
		{url: "http://onleihe.de/", want: "onleihe.de"},
		{url: "", want: "NoURL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			lib := NewLibrary(tt.url, tt.cities)
			if lib.Title != tt.want {
				t.Fatalf("title for %q = %q, want %q", tt.url, lib.Title, tt.want)
			}
			if lib.LastSearch != HitsUnknown {
				t.Fatalf("new library last search = %d, want %d", lib.LastSearch, HitsUnknown)
			}
		})
	}
}

func TestLibraryRepairsStrayScheme(t *testing.T) {
	lib := NewLibrary("http://http//www.stadtbuecherei.de/", nil)
	if lib.SourceURL != "http://www.stadtbuecherei.de/" {
		t.Fatalf("source url = %q", lib.SourceURL)
	}
	if lib.Title != "stadtbuecherei" {
		t.Fatalf("title = %q", lib.Title)
	}
}

func TestLibraryTitlePrefersSearchURL(t *testing.T) {
	lib := NewLibrary("http://www.stadt-a.de/", []string{"A"})
	lib.SearchURL = "https://www2.onleihe.de/verbund/frontend/search,0-0.html"
	lib.RegenerateTitle()
	if lib.Title != "verbund" {
		t.Fatalf("title = %q, want verbund", lib.Title)
	}
}

func TestLibraryCopiesCities(t *testing.T) {
	cities := []string{"A", "B"}
	lib := NewLibrary("http://stadt.de/", cities)
	cities[0] = "changed"
	if lib.Cities[0] != "A" {
		t.Fatalf("library must not alias caller slice")
	}
}

func TestParseRegionURL(t *testing.T) {
	region, err := ParseRegionURL("/index.php?id=43#badenwuerttemberg")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if region.ID != 43 || region.Name != "Badenwuerttemberg" {
		t.Fatalf("got %v", region)
	}

	for _, bad := range []string{"no_correct_url", "id=wrong#11", "3#badenwuerttemberg"} {
		if _, err := ParseRegionURL(bad); !errors.Is(err, ErrMalformedRegionURL) {
			t.Fatalf("ParseRegionURL(%q) error = %v, want ErrMalformedRegionURL", bad, err)
		}
	}
}

func TestNormalizeRegionName(t *testing.T) {
	tests := map[string]string{
		"berlin":            "Berlin",
		"NORDRHEINWESTFALEN": "Nordrheinwestfalen",
		"sachsen anhalt":    "Sachsen_anhalt",
		"":                  "",
	}
	for in, want := range tests {
		if got := NormalizeRegionName(in); got != want {
			t.Fatalf("NormalizeRegionName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegionGroupByTitle(t *testing.T) {
	region := NewRegion(1, "test",
		NewLibrary("http://www.verbund.de/a", []string{"A"}),
		NewLibrary("http://www.other.de/", []string{"O"}),
		NewLibrary("http://VERBUND.de/b", []string{"B", "C"}),
	)
	region.GroupByTitle()

	if len(region.Libraries) != 2 {
		t.Fatalf("libraries = %d, want 2", len(region.Libraries))
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, region.Libraries[0].Cities); diff != "" {
		t.Fatalf("cities mismatch (-want +got):\n%s", diff)
	}
	if region.Libraries[1].Title != "other" {
		t.Fatalf("order not preserved: %v", region.Libraries)
	}
}

func TestRegionLookupFixRemove(t *testing.T) {
	region := NewRegion(2, "bayern",
		NewLibrary("http://www.alpha.de/", nil),
		NewLibrary("http://www.beta.de/", nil),
	)

	if region.Library("ALPHA") == nil {
		t.Fatalf("lookup should be case-insensitive")
	}
	if region.Library("gamma") != nil {
		t.Fatalf("unknown title should return nil")
	}
	if !region.FixSearchURL("beta", "https://beta.example/search") {
		t.Fatalf("fix should report success")
	}
	if got := region.Library("beta").SearchURL; got != "https://beta.example/search" {
		t.Fatalf("search url = %q", got)
	}
	if region.FixSearchURL("gamma", "x") {
		t.Fatalf("fix for unknown title should report false")
	}
	if !region.Remove("alpha") || len(region.Libraries) != 1 {
		t.Fatalf("remove failed: %v", region.Libraries)
	}
	if region.Remove("alpha") {
		t.Fatalf("second remove should report false")
	}
}

func TestIndexLookups(t *testing.T) {
	shared := NewLibrary("http://www.shared.de/", nil)
	index := NewIndex(
		NewRegion(1, "berlin", shared),
		NewRegion(2, "hessen", NewLibrary("http://www.shared.de/x", nil), NewLibrary("http://www.kassel.de/", nil)),
	)

	if index.RegionByID(2) == nil || index.RegionByID(9) != nil {
		t.Fatalf("RegionByID mismatch")
	}
	if index.RegionByName("HESSEN") == nil {
		t.Fatalf("RegionByName should be case-insensitive")
	}
	if index.Library("shared") != shared {
		t.Fatalf("Library should return first match")
	}
	if got := len(index.Libraries()); got != 3 {
		t.Fatalf("libraries = %d, want 3", got)
	}
	jobs := index.Jobs()
	if len(jobs) != 3 || jobs[2].Region != "Hessen" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestParseMediaType(t *testing.T) {
	m, err := ParseMediaType("ebook")
	if err != nil || m != EBook {
		t.Fatalf("ParseMediaType(ebook) = %v, %v", m, err)
	}
	if m.String() != "eBook" {
		t.Fatalf("String = %q", m.String())
	}
	if _, err := ParseMediaType("vinyl"); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}
