package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-onleihe/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "onleihe",
	Short:         "onleihe searches every library of the German onleihe network.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "onleihe.json5", "JSON5 config file; <name>.local.json5 overrides it")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.StringP("json", "j", "", "Path to the library index file")
	flags.Bool("loadonline", false, "Load regions and libraries from the web instead of the index file")
	flags.Int("level", defaults.ResolveLevel, "Endpoint resolution level (0-2)")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
