package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aluiziolira/go-onleihe/models"
	"github.com/jedib0t/go-pretty/v6/table"
)

const maxCities = 5

func printTable(out io.Writer, results []*models.SearchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"#", "Hits", "Library", "Region", "Cities"})
	for i, r := range results {
		t.AppendRow(table.Row{i + 1, hitLabel(r.HitCount), r.Library.Title, r.Region, cityList(r.Library.Cities)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func hitLabel(hits int) string {
	switch hits {
	case models.HitsParseFailed:
		return "unreadable"
	case models.HitsNoEndpoint:
		return "no search"
	case models.HitsNoResponse:
		return "offline"
	case models.HitsUnknown:
		return "-"
	}
	return fmt.Sprint(hits)
}

func cityList(cities []string) string {
	if len(cities) > maxCities {
		return strings.Join(cities[:maxCities], ",") + ",..."
	}
	return strings.Join(cities, ",")
}

func printSummary(out io.Writer, run *models.RunResult, outputFile string) {
	duration := run.EndTime.Sub(run.StartTime).Round(time.Millisecond)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendRows([]table.Row{
		{"Search", run.Query},
		{"Category", run.Category.String()},
		{"Libraries", len(run.Results)},
		{"Failed", run.ErrorCount},
		{"Requests", run.RequestCount},
		{"Retries", run.RetryCount},
		{"Duration", duration},
	})
	if len(run.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", fmt.Sprint(run.ErrorsByType)})
	}
	if outputFile != "" {
		t.AppendRow(table.Row{"Output file", outputFile})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
