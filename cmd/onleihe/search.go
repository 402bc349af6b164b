package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-onleihe/models"
	"github.com/aluiziolira/go-onleihe/pipeline"
	"github.com/aluiziolira/go-onleihe/scraper"
	"github.com/spf13/cobra"
)

func init() {
	flags := searchCmd.Flags()
	flags.StringP("search", "s", "", "Keywords to search for in every library")
	flags.StringP("category", "c", models.AllMedia.String(),
		"Media category: "+strings.Join(models.MediaTypeNames(), ", "))
	flags.IntP("top", "t", -1, "Number of results to print (<= 0 prints all)")
	flags.Int("threads", 4, "Number of parallel searches (<= 0 searches sequentially)")
	flags.String("output", "", "Write every result to this file")
	flags.String("format", "", "Output format: csv, json, or dual (default csv when --output is set)")
	flags.Bool("save-pages", false, "Save every result page")
	_ = searchCmd.MarkFlagRequired("search")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search -s <keywords> [-c <category>] [-t <top>]",
	Short: "Searches every library and prints the ones with the most hits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("search")
		categoryName, _ := cmd.Flags().GetString("category")
		top, _ := cmd.Flags().GetInt("top")

		category, err := models.ParseMediaType(categoryName)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := a.search(cmd.Context(), text, category)
		if err != nil {
			return err
		}
		printTable(os.Stdout, pipeline.Top(pipeline.Rank(run.Results), top))
		printSummary(os.Stdout, run, a.cfg.OutputFile)
		return nil
	},
}

func (a *app) search(ctx context.Context, text string, category models.MediaType) (*models.RunResult, error) {
	index, err := a.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	var writer pipeline.OutputWriter
	if a.cfg.OutputFormat != "" {
		writer, err = pipeline.NewWriter(a.cfg.OutputFormat, a.cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("creating writer: %w", err)
		}
		defer func() {
			if err := writer.Close(); err != nil {
				slog.Error("close writer", slog.Any("error", err))
			}
		}()
	}

	searcher := scraper.NewSearcher(a.cfg, a.session, a.resolver)
	search := func(ctx context.Context, lib *models.Library) (int, error) {
		return searcher.Search(ctx, lib, text, category, a.cfg.SaveRawPages)
	}

	jobs := index.Jobs()
	slog.Info("starting search",
		slog.String("search", text),
		slog.String("category", category.String()),
		slog.Int("libraries", len(jobs)),
		slog.Int("threads", a.cfg.Threads),
	)

	run := &models.RunResult{Query: text, Category: category, StartTime: time.Now()}
	p := pipeline.NewPipeline(ctx, search, writer)
	p.Start(a.cfg.Threads)
	if a.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}
	if err := p.Process(jobs...); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Close(); err != nil {
		return nil, fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if writer != nil {
		if err := writer.Validate(); err != nil {
			return nil, fmt.Errorf("output validation failed: %w", err)
		}
	}

	run.EndTime = time.Now()
	run.Results = p.Results()
	run.RequestCount = a.session.RequestCount()
	run.RetryCount = a.session.RetryCount()
	run.ErrorsByType = make(map[string]int)
	for _, r := range run.Results {
		if r.Err != nil {
			run.ErrorCount++
			run.ErrorsByType[scraper.ErrorTypeLabel(r.Err)]++
		}
	}
	return run, nil
}
