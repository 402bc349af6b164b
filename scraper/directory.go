package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-onleihe/config"
	"github.com/aluiziolira/go-onleihe/models"
	"github.com/aluiziolira/go-onleihe/parser"
)

const regionPagePath = "index.php?id="

// Directory discovers regions and their libraries from the onleihe.net
// directory pages.
type Directory struct {
	cfg      *config.Config
	session  *Session
	resolver *Resolver
}

// NewDirectory returns a directory crawler. resolver may be nil when
// endpoints are not resolved during discovery.
func NewDirectory(cfg *config.Config, session *Session, resolver *Resolver) *Directory {
	return &Directory{cfg: cfg, session: session, resolver: resolver}
}

func (d *Directory) pageURL(path string) (string, error) {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	target, ok := parser.ResolveHref(base, path)
	if !ok {
		return "", fmt.Errorf("invalid directory path %q", path)
	}
	return target, nil
}

func (d *Directory) load(ctx context.Context, path string) (*goquery.Document, error) {
	target, err := d.pageURL(path)
	if err != nil {
		return nil, err
	}
	page, err := d.session.Get(ctx, target, d.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", target, err)
	}
	return parser.ParseDocument(page.Body)
}

// LoadRegions reads the map of federal states. Duplicate links are dropped
// and the regions keep document order. A malformed link aborts discovery.
func (d *Directory) LoadRegions(ctx context.Context) ([]*models.Region, error) {
	doc, err := d.load(ctx, d.cfg.DirectoryPath)
	if err != nil {
		return nil, err
	}

	seenHref := make(map[string]bool)
	seenID := make(map[int]bool)
	var regions []*models.Region
	var parseErr error
	doc.Find(`area[alt="Zum Wunschformular"]`).EachWithBreak(func(_ int, area *goquery.Selection) bool {
		href, ok := area.Attr("href")
		if !ok {
			parseErr = ErrStructure{Where: "directory", Err: errors.New("area without href")}
			return false
		}
		if seenHref[href] {
			return true
		}
		seenHref[href] = true

		region, err := models.ParseRegionURL(href)
		if err != nil {
			parseErr = err
			return false
		}
		if seenID[region.ID] {
			slog.Debug("duplicate region id", slog.Int("id", region.ID), slog.String("url", href))
			return true
		}
		seenID[region.ID] = true
		regions = append(regions, region)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	slog.Debug("regions loaded", slog.Int("count", len(regions)))
	return regions, nil
}

// LoadLibraries replaces region.Libraries with the libraries listed on the
// region page. Links sharing an address become one library holding every
// linked city.
func (d *Directory) LoadLibraries(ctx context.Context, region *models.Region) error {
	doc, err := d.load(ctx, regionPagePath+strconv.Itoa(region.ID))
	if err != nil {
		return fmt.Errorf("region %s: %w", region.Name, err)
	}

	table := doc.Find("table.contenttable").First()
	if table.Length() == 0 {
		return ErrStructure{Where: region.Name, Err: errors.New("no table.contenttable")}
	}

	var order []string
	cities := make(map[string][]string)
	var structErr error
	table.Find(`a[target="_blank"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			html, _ := goquery.OuterHtml(a)
			structErr = ErrStructure{Where: region.Name, Err: fmt.Errorf("link without href: %s", html)}
			return false
		}
		if _, seen := cities[href]; !seen {
			order = append(order, href)
		}
		cities[href] = append(cities[href], strings.TrimSpace(a.Text()))
		return true
	})
	if structErr != nil {
		return structErr
	}

	libraries := make([]*models.Library, 0, len(order))
	for _, href := range order {
		libraries = append(libraries, models.NewLibrary(href, cities[href]))
	}
	region.Libraries = libraries
	slog.Debug("libraries loaded",
		slog.String("region", region.Name),
		slog.Int("count", len(libraries)),
	)
	return nil
}

// LoadAll builds an index from the web: regions, then their libraries. With
// resolve the endpoints are looked up region by region; with group the
// libraries sharing a title are merged.
func (d *Directory) LoadAll(ctx context.Context, group, resolve bool) (*models.Index, error) {
	regions, err := d.LoadRegions(ctx)
	if err != nil {
		return nil, err
	}
	index := models.NewIndex(regions...)
	for _, region := range index.Regions {
		if err := d.LoadLibraries(ctx, region); err != nil {
			return nil, err
		}
		if resolve && d.resolver != nil {
			if _, err := d.resolver.ResolveRegion(ctx, region, false, false); err != nil {
				return nil, err
			}
		}
		if group {
			region.GroupByTitle()
		}
	}
	return index, nil
}
