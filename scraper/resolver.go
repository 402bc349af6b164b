package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-onleihe/config"
	"github.com/aluiziolira/go-onleihe/models"
	"github.com/aluiziolira/go-onleihe/parser"
)

// Strategy looks for a search endpoint on a fetched landing page. Find
// returns "" when the page offers nothing the strategy recognises.
type Strategy struct {
	Name  string
	Level int
	Find  func(ctx context.Context, page *Page) (string, error)
}

var (
	searchTextInput  = &parser.Query{Tag: "input", Attrs: parser.Attrs{"id": parser.Equals("searchtext")}}
	onleiheLink      = parser.Query{Tag: "a", Attrs: parser.Attrs{"href": parser.Matches(regexp.MustCompile(`.*onleihe[^/]*\.de.*`))}}
	extendedLink     = parser.Query{Tag: "a", Attrs: parser.Attrs{"title": parser.Equals("Erweiterte Suche")}}
	resultsPerPageUI = &parser.Query{Tag: "select", Attrs: parser.Attrs{"id": parser.Equals("elementsPerPage")}}
)

// Resolver finds the POST target of a library's search form.
type Resolver struct {
	cfg        *config.Config
	session    *Session
	strategies []Strategy
}

// NewResolver returns a resolver using the fixed strategy order: the search
// form on the landing page, a link into the onleihe domain, the extended
// search link and finally a secondary page on the same site.
func NewResolver(cfg *config.Config, session *Session) *Resolver {
	r := &Resolver{cfg: cfg, session: session}
	r.strategies = []Strategy{
		{Name: "search-form", Level: 0, Find: r.findSearchForm},
		{Name: "onleihe-link", Level: 1, Find: r.findOnleiheLink},
		{Name: "extended-search", Level: 2, Find: r.findExtendedSearch},
		{Name: "secondary-page", Level: 2, Find: r.findSecondaryPage},
	}
	return r
}

// Resolve resolves lib at the configured level.
func (r *Resolver) Resolve(ctx context.Context, lib *models.Library) (bool, error) {
	return r.ResolveLevel(ctx, lib, r.cfg.ResolveLevel)
}

// ResolveLevel runs every strategy up to level in order and stores the first
// endpoint found in lib.SearchURL. An unreachable landing page is a plain
// failure; other fetch errors are returned.
func (r *Resolver) ResolveLevel(ctx context.Context, lib *models.Library, level int) (bool, error) {
	source, err := url.Parse(lib.SourceURL)
	if err != nil || !source.IsAbs() {
		slog.Info("library has no usable address",
			slog.String("library", lib.Title),
			slog.String("url", lib.SourceURL),
		)
		return false, nil
	}

	page, err := r.session.Get(ctx, lib.SourceURL, r.cfg.MaxRetries)
	if errors.Is(err, ErrNoResponse) {
		r.session.Metrics.IncResolution("unreachable")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load landing page of %s: %w", lib.Title, err)
	}

	for _, st := range r.strategies {
		if st.Level > level {
			continue
		}
		target, err := st.Find(ctx, page)
		if err != nil {
			return false, fmt.Errorf("%s strategy for %s: %w", st.Name, lib.Title, err)
		}
		if target != "" {
			lib.SearchURL = target
			r.session.Metrics.IncResolution(st.Name)
			slog.Debug("search endpoint found",
				slog.String("library", lib.Title),
				slog.String("strategy", st.Name),
				slog.String("url", target),
			)
			return true, nil
		}
		if st.Level == 0 && level >= 1 {
			slog.Info("no search form on the start page",
				slog.String("library", lib.Title),
			)
		}
	}

	r.session.Metrics.IncResolution("none")
	slog.Warn("no search url found",
		slog.String("library", lib.Title),
		slog.String("url", page.URL.String()),
	)
	return false, nil
}

// ResolveRegion resolves every library of region that has no endpoint yet,
// or all of them when force is set. With newTitle the titles are derived
// again afterwards. Failures are logged per library and do not stop the
// region. It returns the number of libraries resolved.
func (r *Resolver) ResolveRegion(ctx context.Context, region *models.Region, newTitle, force bool) (int, error) {
	resolved := 0
	for _, lib := range region.Libraries {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if force || !lib.HasEndpoint() {
			ok, err := r.Resolve(ctx, lib)
			if err != nil {
				slog.Error("resolve search url",
					slog.String("region", region.Name),
					slog.String("library", lib.Title),
					slog.String("category", errorTypeLabel(err)),
					slog.Any("error", err),
				)
			}
			if ok {
				resolved++
			}
		}
		if newTitle {
			lib.RegenerateTitle()
		}
	}
	return resolved, nil
}

func (r *Resolver) findSearchForm(_ context.Context, page *Page) (string, error) {
	doc, err := parser.ParseDocument(page.Body)
	if err != nil {
		return "", err
	}
	target, _ := parser.FormPostTarget(doc.Selection, searchTextInput, page.URL)
	return target, nil
}

func (r *Resolver) findOnleiheLink(ctx context.Context, page *Page) (string, error) {
	return r.followAndFindForm(ctx, page, func(doc *goquery.Document) *goquery.Selection {
		return parser.FindFirst(doc.Selection, onleiheLink, nil)
	})
}

func (r *Resolver) findExtendedSearch(_ context.Context, page *Page) (string, error) {
	doc, err := parser.ParseDocument(page.Body)
	if err != nil {
		return "", err
	}
	link := parser.FindFirst(doc.Selection, extendedLink, nil)
	if link == nil {
		return "", nil
	}
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", nil
	}
	target, _ := parser.ResolveHref(page.URL, href)
	return target, nil
}

// findSecondaryPage follows a link to another page and looks for the search
// form there. Same-site links are preferred, those mentioning a search first.
// An off-site link is only followed when the page has no same-site link.
func (r *Resolver) findSecondaryPage(ctx context.Context, page *Page) (string, error) {
	return r.followAndFindForm(ctx, page, func(doc *goquery.Document) *goquery.Selection {
		var first, search, offSite *goquery.Selection
		doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			target, ok := parser.ResolveHref(page.URL, href)
			if !ok {
				return true
			}
			if !sameSite(page.URL, target) {
				if offSite == nil && isWebLink(page.URL, target) {
					offSite = a
				}
				return true
			}
			if first == nil {
				first = a
			}
			if strings.Contains(strings.ToLower(href+" "+a.Text()), "such") {
				search = a
				return false
			}
			return true
		})
		switch {
		case search != nil:
			return search
		case first != nil:
			return first
		}
		return offSite
	})
}

func (r *Resolver) followAndFindForm(ctx context.Context, page *Page, pick func(*goquery.Document) *goquery.Selection) (string, error) {
	doc, err := parser.ParseDocument(page.Body)
	if err != nil {
		return "", err
	}
	link := pick(doc)
	if link == nil {
		return "", nil
	}
	href, _ := link.Attr("href")
	next, ok := parser.ResolveHref(page.URL, href)
	if !ok {
		return "", nil
	}

	followed, err := r.session.Get(ctx, next, r.cfg.MaxRetries)
	if errors.Is(err, ErrNoResponse) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return r.findSearchForm(ctx, followed)
}

// isWebLink reports whether target is an http(s) page on another host.
func isWebLink(base *url.URL, target string) bool {
	u, err := url.Parse(target)
	if err != nil || base == nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && !strings.EqualFold(u.Hostname(), base.Hostname())
}

// sameSite reports whether target is on base's host and is not base itself.
func sameSite(base *url.URL, target string) bool {
	u, err := url.Parse(target)
	if err != nil || base == nil {
		return false
	}
	if !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return false
	}
	u.Fragment = ""
	current := *base
	current.Fragment = ""
	return u.String() != current.String()
}
