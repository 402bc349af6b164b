package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-onleihe/config"
	"github.com/aluiziolira/go-onleihe/models"
	"github.com/aluiziolira/go-onleihe/parser"
)

// Search command identifiers understood by the onleihe frontend.
const (
	SimpleSearchCmd   = 703
	ExtendedSearchCmd = 701
)

const searchPageLimit = 100

// Searcher runs keyword searches against a library's endpoint.
type Searcher struct {
	cfg      *config.Config
	session  *Session
	resolver *Resolver
}

// NewSearcher returns a searcher that resolves missing endpoints with resolver.
func NewSearcher(cfg *config.Config, session *Session, resolver *Resolver) *Searcher {
	return &Searcher{cfg: cfg, session: session, resolver: resolver}
}

// Search queries lib for text within category and returns the hit count, or
// one of the models.Hits* sentinels. The result is stored in lib.LastSearch.
// Errors are only returned for failures that are neither a missing endpoint
// nor an unreachable host; LastSearch then holds HitsNoEndpoint when
// resolution failed and HitsParseFailed when the search request did.
func (s *Searcher) Search(ctx context.Context, lib *models.Library, text string, category models.MediaType, saveRaw bool) (int, error) {
	if !lib.HasEndpoint() {
		if _, err := s.resolver.Resolve(ctx, lib); err != nil {
			return s.fail(lib, models.HitsNoEndpoint, err)
		}
	}
	if !lib.HasEndpoint() {
		slog.Info("no search url available",
			slog.String("library", lib.Title),
			slog.String("search", text),
		)
		return s.finish(lib, models.HitsNoEndpoint), nil
	}

	hits, page, err := s.postSearch(ctx, lib, SimpleSearchCmd, text, category, saveRaw)
	if errors.Is(err, ErrNoResponse) {
		return s.finish(lib, models.HitsNoResponse), nil
	}
	if err != nil {
		return s.fail(lib, models.HitsParseFailed, err)
	}

	if hits == parser.ParseFailed {
		hits, page, err = s.postSearch(ctx, lib, ExtendedSearchCmd, text, category, saveRaw)
		if errors.Is(err, ErrNoResponse) {
			return s.finish(lib, models.HitsNoResponse), nil
		}
		if err != nil {
			return s.fail(lib, models.HitsParseFailed, err)
		}
	}

	if s.cfg.ResultsPerPage > 0 && hits > 0 {
		if _, err := s.SetSearchResultsPerPage(ctx, s.cfg.ResultsPerPage, page); err != nil {
			slog.Debug("results per page not changed",
				slog.String("library", lib.Title),
				slog.Any("error", err),
			)
		}
	}
	return s.finish(lib, hits), nil
}

func (s *Searcher) finish(lib *models.Library, hits int) int {
	lib.LastSearch = hits
	s.session.Metrics.IncSearch(outcomeLabel(hits))
	return hits
}

// fail records the sentinel of the step that failed and returns err.
func (s *Searcher) fail(lib *models.Library, hits int, err error) (int, error) {
	lib.LastSearch = hits
	s.session.Metrics.IncSearch("error")
	return 0, err
}

func outcomeLabel(hits int) string {
	switch {
	case hits > 0:
		return "hits"
	case hits == 0:
		return "zero"
	case hits == models.HitsParseFailed:
		return "parse_failed"
	case hits == models.HitsNoEndpoint:
		return "no_endpoint"
	case hits == models.HitsNoResponse:
		return "no_response"
	}
	return "other"
}

func (s *Searcher) postSearch(ctx context.Context, lib *models.Library, cmd int, text string, category models.MediaType, saveRaw bool) (int, *Page, error) {
	form := url.Values{
		"pMediaType": {strconv.Itoa(int(category))},
		"pText":      {text},
		"Suchen":     {"Suche"},
		"cmdId":      {strconv.Itoa(cmd)},
		"sk":         {"1000"},
		"pPageLimit": {strconv.Itoa(searchPageLimit)},
	}
	page, err := s.session.Post(ctx, lib.SearchURL, form, s.cfg.MaxRetries)
	if err != nil {
		return 0, nil, err
	}

	hits := parser.ParseResultCount(string(page.Body))
	debug := hits == parser.ParseFailed && slog.Default().Enabled(ctx, slog.LevelDebug)
	if saveRaw || s.cfg.SaveRawPages || debug {
		if err := s.saveRawPage(lib, cmd, page.Body); err != nil {
			slog.Warn("save result page",
				slog.String("library", lib.Title),
				slog.Any("error", err),
			)
		}
	}
	return hits, page, nil
}

// RawPageName is the file name used for a saved result page.
func RawPageName(title string, cmd int) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, title)
	return fmt.Sprintf("%s_%d.html", safe, cmd)
}

func (s *Searcher) saveRawPage(lib *models.Library, cmd int, body []byte) error {
	dir := s.cfg.RawPageDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create page dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, RawPageName(lib.Title, cmd)), body, 0o644)
}

// SetSearchResultsPerPage posts amount to the page-size form found on a
// result page so the server remembers it for the session.
func (s *Searcher) SetSearchResultsPerPage(ctx context.Context, amount int, resultPage *Page) (*Page, error) {
	if resultPage == nil {
		return nil, fmt.Errorf("no result page given")
	}
	doc, err := parser.ParseDocument(resultPage.Body)
	if err != nil {
		return nil, err
	}
	target, ok := parser.FormPostTarget(doc.Selection, resultsPerPageUI, resultPage.URL)
	if !ok {
		where := "result page"
		if resultPage.URL != nil {
			where = resultPage.URL.String()
		}
		return nil, ErrStructure{
			Where: where,
			Err:   errors.New("no form with select#elementsPerPage"),
		}
	}
	return s.session.Post(ctx, target, url.Values{"elementsPerPage": {strconv.Itoa(amount)}}, s.cfg.MaxRetries)
}
