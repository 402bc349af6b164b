package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-onleihe/config"
	"github.com/aluiziolira/go-onleihe/models"
	"github.com/aluiziolira/go-onleihe/scraper"
	"github.com/aluiziolira/go-onleihe/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// app wires the crawler components for one command run.
type app struct {
	cfg        *config.Config
	loadOnline bool
	session    *scraper.Session
	resolver   *scraper.Resolver
	directory  *scraper.Directory
	metrics    *http.Server
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user actually set, in that order.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()

	path, _ := flags.GetString("config")
	file, found, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if found {
		if err := file.Apply(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyFlags(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"ONLEIHE_THREADS", &cfg.Threads},
		{"ONLEIHE_LEVEL", &cfg.ResolveLevel},
		{"ONLEIHE_MAX_RETRIES", &cfg.MaxRetries},
	}
	for _, e := range ints {
		value, ok, err := config.EnvInt(e.key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.key, err)
		}
		if ok {
			*e.dst = value
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"ONLEIHE_BASE_URL", &cfg.BaseURL},
		{"ONLEIHE_INDEX", &cfg.IndexFile},
		{"ONLEIHE_OUTPUT", &cfg.OutputFile},
		{"ONLEIHE_METRICS_ADDR", &cfg.MetricsAddr},
	}
	for _, e := range strs {
		if value, ok := config.EnvString(e.key); ok {
			*e.dst = value
		}
	}

	if value, ok, err := config.EnvBool("ONLEIHE_SAVE_PAGES"); err != nil {
		return fmt.Errorf("invalid ONLEIHE_SAVE_PAGES: %w", err)
	} else if ok {
		cfg.SaveRawPages = value
	}
	return nil
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("json") {
		cfg.IndexFile, _ = flags.GetString("json")
	}
	if flags.Changed("level") {
		cfg.ResolveLevel, _ = flags.GetInt("level")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("threads") {
		cfg.Threads, _ = flags.GetInt("threads")
	}
	if flags.Changed("output") {
		cfg.OutputFile, _ = flags.GetString("output")
	}
	if flags.Changed("save-pages") {
		cfg.SaveRawPages, _ = flags.GetBool("save-pages")
	}
	if flags.Changed("format") {
		format, _ := flags.GetString("format")
		cfg.OutputFormat = strings.ToLower(format)
	}
	if cfg.OutputFile != "" && cfg.OutputFormat == "" {
		cfg.OutputFormat = "csv"
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	loadOnline, _ := cmd.Flags().GetBool("loadonline")

	metrics := scraper.NewMetrics()
	session, err := scraper.NewSession(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("initialising session: %w", err)
	}
	resolver := scraper.NewResolver(cfg, session)

	a := &app{
		cfg:        cfg,
		loadOnline: loadOnline,
		session:    session,
		resolver:   resolver,
		directory:  scraper.NewDirectory(cfg, session, resolver),
	}

	if cfg.MetricsAddr != "" {
		a.metrics = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	return a, nil
}

func (a *app) close() {
	if a.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

// loadIndex reads the index from the web when requested, otherwise from the
// index file.
func (a *app) loadIndex(ctx context.Context) (*models.Index, error) {
	if a.loadOnline {
		slog.Info("loading regions and libraries", slog.String("base_url", a.cfg.BaseURL))
		return a.directory.LoadAll(ctx, true, false)
	}
	slog.Info("loading index", slog.String("path", a.cfg.IndexFile))
	return store.LoadIndex(a.cfg.IndexFile)
}
