package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds crawler and search configuration.
type Config struct {
	BaseURL          string
	DirectoryPath    string
	Threads          int
	Delay            time.Duration
	RandomDelay      time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	UserAgent        string
	RespectRobotsTxt bool
	ResolveLevel     int
	PageCacheSize    int
	ResultsPerPage   int
	SaveRawPages     bool
	RawPageDir       string
	IndexFile        string
	OutputFile       string
	OutputFormat     string // "", csv, json, or dual
	MetricsAddr      string
	Verbose          bool
}

// DefaultConfig returns the defaults used against the live onleihe network.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.onleihe.net/",
		DirectoryPath:    "fuer-leser-hoerer-zuschauer/ihre-onleihe-finden/onleihen-in-deutschland.html",
		Threads:          4,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          30 * time.Second,
		MaxRetries:       1,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		ResolveLevel:     1,
		PageCacheSize:    256,
		ResultsPerPage:   0,
		SaveRawPages:     false,
		RawPageDir:       ".",
		IndexFile:        "onleihe.json",
		OutputFile:       "",
		OutputFormat:     "",
		MetricsAddr:      "",
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.DirectoryPath == "" {
		return fmt.Errorf("directory path cannot be empty")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.ResolveLevel < 0 || c.ResolveLevel > 2 {
		return fmt.Errorf("resolve level must be between 0 and 2")
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.ResultsPerPage < 0 {
		return fmt.Errorf("results per page cannot be negative")
	}
	if c.IndexFile == "" {
		return fmt.Errorf("index file cannot be empty")
	}
	switch c.OutputFormat {
	case "", "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.OutputFormat != "" && c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty when an output format is set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvInt reads an integer from the environment. ok is false when the variable is unset.
func EnvInt(key string) (value int, ok bool, err error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}
	value, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, true, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// EnvString reads a non-empty string from the environment.
func EnvString(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

// EnvBool reads a boolean from the environment.
func EnvBool(key string) (value bool, ok bool, err error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return false, false, nil
	}
	value, err = strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, true, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}
