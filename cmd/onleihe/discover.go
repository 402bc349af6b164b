package main

import (
	"log/slog"

	"github.com/aluiziolira/go-onleihe/scraper"
	"github.com/aluiziolira/go-onleihe/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover [--loadonline] [-j <index.json>]",
	Short: "Builds the library index: loads it, applies corrections, resolves search endpoints and saves it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		index, err := a.loadIndex(ctx)
		if err != nil {
			return err
		}

		changed := scraper.ApplyCorrections(index)
		slog.Info("manual corrections applied", slog.Int("changes", changed))

		resolved := 0
		for _, region := range index.Regions {
			n, err := a.resolver.ResolveRegion(ctx, region, true, false)
			if err != nil {
				return err
			}
			resolved += n
			region.GroupByTitle()
		}
		slog.Info("search endpoints resolved",
			slog.Int("resolved", resolved),
			slog.Int("libraries", len(index.Libraries())),
		)

		if err := store.SaveIndex(a.cfg.IndexFile, index); err != nil {
			return err
		}
		slog.Info("index saved", slog.String("path", a.cfg.IndexFile))
		return nil
	},
}
