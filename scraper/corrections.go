package scraper

import (
	"log/slog"

	"github.com/aluiziolira/go-onleihe/models"
)

const onleiheSearchPath = "/frontend/search,0-0-0-0-0-0-0-0-0-0-0.html"

// Correction overrides the endpoint of a library the resolver gets wrong.
type Correction struct {
	Region    string // empty matches every region
	Title     string
	SearchURL string
}

// Corrections are known endpoints for libraries whose sites defeat the
// resolver. Entries are applied in order; later ones win.
var Corrections = []Correction{
	{Title: "libell-e", SearchURL: "https://www2.onleihe.de/libell-e-nord" + onleiheSearchPath},
	{Region: "Badenwuerttemberg", Title: "libell-e", SearchURL: "https://www2.onleihe.de/libell-e-sued" + onleiheSearchPath},
	{Region: "Rheinlandpfalz", Title: "libell-e", SearchURL: "https://www2.onleihe.de/libell-e-sued" + onleiheSearchPath},
	{Region: "Badenwuerttemberg", Title: "meine-medienwelt", SearchURL: "https://www1.onleihe.de/heilbronn" + onleiheSearchPath},
	{Region: "Sachsen", Title: "grossenhain", SearchURL: "https://www2.onleihe.de/bibo-on" + onleiheSearchPath},
	{Region: "Schleswigholstein", Title: "amt-buechen", SearchURL: "https://www2.onleihe.de/bibo-on" + onleiheSearchPath},
	{Region: "Nordrheinwestfalen", Title: "stadtdo", SearchURL: "https://www2.onleihe.de/dortmund" + onleiheSearchPath},
	{Region: "Sachsenanhalt", Title: "Sangerhausen", SearchURL: "https://biblio24.onleihe.de/verbund_sachsen_anhalt/frontend/welcome,51-0-0-100-0-0-1-0-0-0-0.html"},
	{Region: "Berlin", Title: "voebb24", SearchURL: "https://voebb.onleihe.de/berlin" + onleiheSearchPath},
}

// Removals name libraries that are dropped from a region entirely.
var Removals = []Correction{
	{Region: "Badenwuerttemberg", Title: "baden"},
}

// ApplyCorrections patches every region of index with the static tables and
// returns the number of changes made.
func ApplyCorrections(index *models.Index) int {
	changed := 0
	for _, region := range index.Regions {
		for _, c := range Corrections {
			if c.Region != "" && c.Region != region.Name {
				continue
			}
			if region.FixSearchURL(c.Title, c.SearchURL) {
				changed++
				slog.Debug("search url corrected",
					slog.String("region", region.Name),
					slog.String("library", c.Title),
				)
			}
		}
		for _, c := range Removals {
			if c.Region == region.Name && region.Remove(c.Title) {
				changed++
				slog.Debug("library removed",
					slog.String("region", region.Name),
					slog.String("library", c.Title),
				)
			}
		}
	}
	return changed
}
