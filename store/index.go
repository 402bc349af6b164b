// Package store persists the library index as JSON.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aluiziolira/go-onleihe/models"
)

type libraryDoc struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	SearchURL *string  `json:"search_url"`
	Cities    []string `json:"cities"`
}

type regionDoc struct {
	Name         string                `json:"name"`
	ID           int                   `json:"id"`
	Bibliotheken map[string]libraryDoc `json:"bibliotheken"`
}

// MarshalIndex encodes index keyed by region name and library title. When
// two libraries of a region share a title only the first is kept.
func MarshalIndex(index *models.Index) ([]byte, error) {
	doc := make(map[string]regionDoc, len(index.Regions))
	for _, region := range index.Regions {
		libs := make(map[string]libraryDoc, len(region.Libraries))
		for _, lib := range region.Libraries {
			if _, dup := libs[lib.Title]; dup {
				slog.Warn("duplicate library title not saved",
					slog.String("region", region.Name),
					slog.String("library", lib.Title),
					slog.String("url", lib.SourceURL),
				)
				continue
			}
			entry := libraryDoc{
				Name:   lib.Title,
				URL:    lib.SourceURL,
				Cities: lib.Cities,
			}
			if lib.Cities == nil {
				entry.Cities = []string{}
			}
			if lib.HasEndpoint() {
				searchURL := lib.SearchURL
				entry.SearchURL = &searchURL
			}
			libs[lib.Title] = entry
		}
		doc[region.Name] = regionDoc{Name: region.Name, ID: region.ID, Bibliotheken: libs}
	}
	return json.MarshalIndent(doc, "", "    ")
}

// UnmarshalIndex decodes data written by MarshalIndex. Regions are ordered by
// id and libraries by title; titles are derived again from the addresses.
func UnmarshalIndex(data []byte) (*models.Index, error) {
	var doc map[string]regionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	regions := make([]*models.Region, 0, len(doc))
	for key, rd := range doc {
		name := rd.Name
		if name == "" {
			name = key
		}
		region := models.NewRegion(rd.ID, name)

		titles := make([]string, 0, len(rd.Bibliotheken))
		for title := range rd.Bibliotheken {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		for _, title := range titles {
			ld := rd.Bibliotheken[title]
			lib := models.NewLibrary(ld.URL, ld.Cities)
			if ld.SearchURL != nil {
				lib.SearchURL = *ld.SearchURL
				lib.RegenerateTitle()
			}
			if ld.Name != "" && !strings.EqualFold(ld.Name, lib.Title) {
				slog.Debug("stored title differs from derived title",
					slog.String("stored", ld.Name),
					slog.String("derived", lib.Title),
				)
			}
			region.Libraries = append(region.Libraries, lib)
		}
		regions = append(regions, region)
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })
	return models.NewIndex(regions...), nil
}

// SaveIndex writes index to path, replacing any previous file.
func SaveIndex(path string, index *models.Index) error {
	data, err := MarshalIndex(index)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}
	slog.Debug("index saved", slog.String("path", path), slog.Int("regions", len(index.Regions)))
	return nil
}

// LoadIndex reads an index saved by SaveIndex.
func LoadIndex(path string) (*models.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	index, err := UnmarshalIndex(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return index, nil
}
