package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// File mirrors Config for JSON5 configuration files. Unset fields keep the
// value already present in the Config they are applied to.
type File struct {
	BaseURL          *string `json:"base_url"`
	DirectoryPath    *string `json:"directory_path"`
	Threads          *int    `json:"threads"`
	Delay            *string `json:"delay"`
	RandomDelay      *string `json:"random_delay"`
	Timeout          *string `json:"timeout"`
	MaxRetries       *int    `json:"max_retries"`
	RetryBackoff     *string `json:"retry_backoff"`
	RetryBackoffMax  *string `json:"retry_backoff_max"`
	UserAgent        *string `json:"user_agent"`
	RespectRobotsTxt *bool   `json:"respect_robots_txt"`
	ResolveLevel     *int    `json:"resolve_level"`
	PageCacheSize    *int    `json:"page_cache_size"`
	ResultsPerPage   *int    `json:"results_per_page"`
	SaveRawPages     *bool   `json:"save_raw_pages"`
	RawPageDir       *string `json:"raw_page_dir"`
	IndexFile        *string `json:"index_file"`
	OutputFile       *string `json:"output_file"`
	OutputFormat     *string `json:"output_format"`
	MetricsAddr      *string `json:"metrics_addr"`
	Verbose          *bool   `json:"verbose"`
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadFile reads `name` and `<name>.local.<ext>` and merges them, the local
// file taking priority. Missing files are not an error; found reports
// whether any of them existed.
func ReadFile(name string) (out File, found bool, err error) {
	dirname := filepath.Dir(name)
	prefixname, ext := splitExt(filepath.Base(name))

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, false, fmt.Errorf("read config %q: %w", name, err)
	}
	if len(defaultFile) > 0 {
		if err := json5.Unmarshal(defaultFile, &out); err != nil {
			return out, false, fmt.Errorf("decode config %q: %w", name, err)
		}
		found = true
	}

	localPath := filepath.Join(dirname, fmt.Sprintf("%s.local.%s", prefixname, ext))
	localFile, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, found, fmt.Errorf("read config %q: %w", localPath, err)
	}
	if len(localFile) > 0 {
		var override File
		if err := json5.Unmarshal(localFile, &override); err != nil {
			return out, found, fmt.Errorf("decode config %q: %w", localPath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return out, found, fmt.Errorf("merge config %q: %w", localPath, err)
		}
		found = true
	}

	if !found {
		slog.Debug("no config file found", slog.String("path", name))
	}
	return out, found, nil
}

// Apply copies every set field of f onto cfg.
func (f File) Apply(cfg *Config) error {
	setString(&cfg.BaseURL, f.BaseURL)
	setString(&cfg.DirectoryPath, f.DirectoryPath)
	setInt(&cfg.Threads, f.Threads)
	setInt(&cfg.MaxRetries, f.MaxRetries)
	setString(&cfg.UserAgent, f.UserAgent)
	setBool(&cfg.RespectRobotsTxt, f.RespectRobotsTxt)
	setInt(&cfg.ResolveLevel, f.ResolveLevel)
	setInt(&cfg.PageCacheSize, f.PageCacheSize)
	setInt(&cfg.ResultsPerPage, f.ResultsPerPage)
	setBool(&cfg.SaveRawPages, f.SaveRawPages)
	setString(&cfg.RawPageDir, f.RawPageDir)
	setString(&cfg.IndexFile, f.IndexFile)
	setString(&cfg.OutputFile, f.OutputFile)
	if f.OutputFormat != nil {
		cfg.OutputFormat = strings.ToLower(*f.OutputFormat)
	}
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	setBool(&cfg.Verbose, f.Verbose)

	durations := []struct {
		name string
		dst  *time.Duration
		raw  *string
	}{
		{"delay", &cfg.Delay, f.Delay},
		{"random_delay", &cfg.RandomDelay, f.RandomDelay},
		{"timeout", &cfg.Timeout, f.Timeout},
		{"retry_backoff", &cfg.RetryBackoff, f.RetryBackoff},
		{"retry_backoff_max", &cfg.RetryBackoffMax, f.RetryBackoffMax},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
