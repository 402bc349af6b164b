package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-onleihe/models"
	"github.com/jarcoal/httpmock"
)

const searchURL = "https://www2.onleihe.de/verbund/frontend/search,0-0-0-0-0-0-0-0-0-0-0.html"

// searchResponder answers the simple and the extended search command with
// different bodies and records the submitted forms.
func searchResponder(simple, extended string, forms *[]url.Values) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		if err := req.ParseForm(); err != nil {
			return nil, err
		}
		if forms != nil {
			*forms = append(*forms, req.PostForm)
		}
		body := simple
		if req.PostForm.Get("cmdId") == "701" {
			body = extended
		}
		return htmlResponder(body)(req)
	}
}

func newTestSearcher(t *testing.T) (*Searcher, *httpmock.MockTransport) {
	t.Helper()
	cfg := testConfig(t)
	s, transport := newTestSession(t, cfg)
	return NewSearcher(cfg, s, NewResolver(cfg, s)), transport
}

func libraryWithEndpoint() *models.Library {
	lib := models.NewLibrary("http://www.stadt-a.de/", []string{"A"})
	lib.SearchURL = searchURL
	return lib
}

func TestSearchParsesHitCount(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	var forms []url.Values
	transport.RegisterResponder("POST", searchURL,
		searchResponder("<h2>Suchergebnis : 1.042 Treffer</h2>", "", &forms))

	lib := libraryWithEndpoint()
	hits, err := searcher.Search(context.Background(), lib, "Tolkien", models.EBook, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != 1042 || lib.LastSearch != 1042 {
		t.Fatalf("hits = %d, last = %d; want 1042", hits, lib.LastSearch)
	}
	if len(forms) != 1 {
		t.Fatalf("posts = %d, want 1", len(forms))
	}
	form := forms[0]
	want := map[string]string{
		"pMediaType": "400001",
		"pText":      "Tolkien",
		"Suchen":     "Suche",
		"cmdId":      "703",
		"sk":         "1000",
		"pPageLimit": "100",
	}
	for k, v := range want {
		if got := form.Get(k); got != v {
			t.Fatalf("form %s = %q, want %q", k, got, v)
		}
	}
}

func TestSearchFallsBackToExtendedSearch(t *testing.T) {
	tests := []struct {
		name     string
		extended string
		want     int
	}{
		{name: "extended finds none", extended: "Suchergebnis : keine Treffer", want: 0},
		{name: "extended also unparsable", extended: "<p>Wartung</p>", want: models.HitsParseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher, transport := newTestSearcher(t)
			var forms []url.Values
			transport.RegisterResponder("POST", searchURL, searchResponder("<p>unexpected layout</p>", tt.extended, &forms))

			lib := libraryWithEndpoint()
			hits, err := searcher.Search(context.Background(), lib, "x", models.AllMedia, false)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if hits != tt.want || lib.LastSearch != tt.want {
				t.Fatalf("hits = %d, last = %d; want %d", hits, lib.LastSearch, tt.want)
			}
			if len(forms) != 2 || forms[1].Get("cmdId") != "701" {
				t.Fatalf("expected a second post with cmdId 701, got %v", forms)
			}
		})
	}
}

func TestSearchNoEndpoint(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	searcher.cfg.ResolveLevel = 0
	transport.RegisterResponder("GET", "http://www.stadt-a.de/", htmlResponder("<p>nothing to see</p>"))

	lib := models.NewLibrary("http://www.stadt-a.de/", nil)
	hits, err := searcher.Search(context.Background(), lib, "x", models.AllMedia, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != models.HitsNoEndpoint || lib.LastSearch != models.HitsNoEndpoint {
		t.Fatalf("hits = %d, want %d", hits, models.HitsNoEndpoint)
	}
}

func TestSearchResolvesEndpointFirst(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	transport.RegisterResponder("GET", "http://www.stadt-a.de/",
		htmlResponder(`<form method="post" action="`+searchURL+`"><input id="searchtext"></form>`))
	transport.RegisterResponder("POST", searchURL, searchResponder("Suchergebnis : 7 Treffer", "", nil))

	lib := models.NewLibrary("http://www.stadt-a.de/", nil)
	hits, err := searcher.Search(context.Background(), lib, "x", models.EAudio, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != 7 {
		t.Fatalf("hits = %d, want 7", hits)
	}
	if lib.SearchURL != searchURL {
		t.Fatalf("search url = %q", lib.SearchURL)
	}
}

func TestSearchNoResponse(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	transport.RegisterResponder("POST", searchURL, httpmock.NewErrorResponder(io.EOF))

	lib := libraryWithEndpoint()
	hits, err := searcher.Search(context.Background(), lib, "x", models.AllMedia, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != models.HitsNoResponse || lib.LastSearch != models.HitsNoResponse {
		t.Fatalf("hits = %d, want %d", hits, models.HitsNoResponse)
	}
}

func TestSearchPropagatesUnknownErrors(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	transport.RegisterResponder("POST", searchURL, httpmock.NewStringResponder(http.StatusInternalServerError, "oops"))

	lib := libraryWithEndpoint()
	_, err := searcher.Search(context.Background(), lib, "x", models.AllMedia, false)
	var status ErrHTTPStatus
	if !errors.As(err, &status) || status.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want ErrHTTPStatus 500", err)
	}
	if lib.LastSearch != models.HitsParseFailed {
		t.Fatalf("last = %d, want %d", lib.LastSearch, models.HitsParseFailed)
	}
}

func TestSearchResolverErrorRecordsLastSearch(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	transport.RegisterResponder("GET", "http://www.stadt-a.de/", httpmock.NewStringResponder(http.StatusInternalServerError, "oops"))

	lib := models.NewLibrary("http://www.stadt-a.de/", nil)
	if _, err := searcher.Search(context.Background(), lib, "x", models.AllMedia, false); err == nil {
		t.Fatalf("expected resolver error")
	}
	if lib.LastSearch != models.HitsNoEndpoint {
		t.Fatalf("last = %d, want %d", lib.LastSearch, models.HitsNoEndpoint)
	}
	if got := transport.GetCallCountInfo()["POST "+searchURL]; got != 0 {
		t.Fatalf("search posted %d times without an endpoint", got)
	}
}

func TestSearchSavesRawPage(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	body := "<h2>Suchergebnis : 3 Treffer</h2>"
	transport.RegisterResponder("POST", searchURL, searchResponder(body, "", nil))

	lib := libraryWithEndpoint()
	if _, err := searcher.Search(context.Background(), lib, "x", models.AllMedia, true); err != nil {
		t.Fatalf("search: %v", err)
	}

	saved, err := os.ReadFile(filepath.Join(searcher.cfg.RawPageDir, lib.Title+"_703.html"))
	if err != nil {
		t.Fatalf("read saved page: %v", err)
	}
	if string(saved) != body {
		t.Fatalf("saved = %q, want %q", saved, body)
	}
}

func TestRawPageName(t *testing.T) {
	if got := RawPageName("Frankfurt/Main...", 701); got != "Frankfurt_Main..._701.html" {
		t.Fatalf("RawPageName = %q", got)
	}
}

func TestSetSearchResultsPerPage(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	var amount string
	transport.RegisterResponder("POST", "https://www2.onleihe.de/verbund/frontend/mediaList,0-0.html",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseForm(); err != nil {
				return nil, err
			}
			amount = req.PostForm.Get("elementsPerPage")
			return htmlResponder("ok")(req)
		})

	pageURL, _ := url.Parse(searchURL)
	resultPage := &Page{
		URL: pageURL,
		Body: []byte(`<form method="post" action="mediaList,0-0.html">
			<select id="elementsPerPage" name="elementsPerPage"><option>10</option></select>
		</form>`),
	}

	page, err := searcher.SetSearchResultsPerPage(context.Background(), 100, resultPage)
	if err != nil {
		t.Fatalf("set results per page: %v", err)
	}
	if string(page.Body) != "ok" || amount != "100" {
		t.Fatalf("body = %q, amount = %q", page.Body, amount)
	}

	_, err = searcher.SetSearchResultsPerPage(context.Background(), 100, &Page{URL: pageURL, Body: []byte("<p></p>")})
	var structure ErrStructure
	if !errors.As(err, &structure) {
		t.Fatalf("err = %v, want ErrStructure", err)
	}
}

func TestSearchSetsResultsPerPage(t *testing.T) {
	searcher, transport := newTestSearcher(t)
	searcher.cfg.ResultsPerPage = 50
	transport.RegisterResponder("POST", searchURL, searchResponder(`<h2>Suchergebnis : 120 Treffer</h2>
		<form method="post" action="search,0-0-0-0-0-0-0-0-0-0-0.html">
			<select id="elementsPerPage" name="elementsPerPage"></select>
		</form>`, "", nil))

	hits, err := searcher.Search(context.Background(), libraryWithEndpoint(), "x", models.AllMedia, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != 120 {
		t.Fatalf("hits = %d, want 120", hits)
	}
	if got := transport.GetCallCountInfo()["POST "+searchURL]; got != 2 {
		t.Fatalf("posts = %d, want search plus page size", got)
	}
}
