// Package scraper talks to the onleihe network: a retrying HTTP session, the
// search endpoint resolver, per-library searches and directory discovery.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-onleihe/config"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Page is a fetched document. URL is the final address after redirects.
type Page struct {
	URL        *url.URL
	StatusCode int
	Body       []byte
}

// Session wraps a colly collector with the retry policy used against
// library sites. It is safe for concurrent use.
type Session struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	cache     *lru.Cache[string, *Page]
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
}

// NewSession builds a session configured from cfg. A nil metrics disables
// instrumentation.
func NewSession(cfg *config.Config, metrics *Metrics) (*Session, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	parallelism := cfg.Threads
	if parallelism < 1 {
		parallelism = 1
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}
	s.retry = newRetryManager(cfg, metrics)

	if cfg.PageCacheSize > 0 {
		cache, err := lru.New[string, *Page](cfg.PageCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create page cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Get fetches rawURL, retrying closed connections up to retries times.
func (s *Session) Get(ctx context.Context, rawURL string, retries int) (*Page, error) {
	return s.Request(ctx, http.MethodGet, rawURL, nil, retries)
}

// Post submits form to rawURL, retrying closed connections up to retries times.
func (s *Session) Post(ctx context.Context, rawURL string, form url.Values, retries int) (*Page, error) {
	return s.Request(ctx, http.MethodPost, rawURL, form, retries)
}

// RequestURL is Request for an already parsed URL.
func (s *Session) RequestURL(ctx context.Context, method string, u *url.URL, form url.Values, retries int) (*Page, error) {
	return s.Request(ctx, method, u.String(), form, retries)
}

// Request issues method against rawURL.
//
// A closed connection is retried up to retries times with backoff; once the
// budget is spent the error wraps ErrNoResponse. An unresolvable host wraps
// ErrNoResponse without retrying. A negative budget returns ErrNoResponse
// without touching the network. Every other failure, including a non-2xx
// status, is returned as is.
func (s *Session) Request(ctx context.Context, method, rawURL string, form url.Values, retries int) (*Page, error) {
	return s.request(ctx, strings.ToUpper(method), rawURL, form, retries, 1)
}

func (s *Session) request(ctx context.Context, method, rawURL string, form url.Values, retries, attempt int) (*Page, error) {
	if retries < 0 {
		return nil, fmt.Errorf("%w: retry budget exhausted for %s", ErrNoResponse, rawURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cacheable := s.cache != nil && method == http.MethodGet && len(form) == 0
	if cacheable {
		if page, ok := s.cache.Get(rawURL); ok {
			s.Metrics.IncCacheHit()
			return page, nil
		}
	}

	page, err := s.fetch(method, rawURL, form)
	if err == nil {
		if cacheable {
			s.cache.Add(rawURL, page)
		}
		return page, nil
	}

	atomic.AddInt64(&s.errorCount, 1)
	classified := classifyError(err, 0)
	s.Metrics.IncError(errorTypeLabel(classified))

	var closed ErrConnectionClosed
	var resolution ErrNameResolution
	switch {
	case errors.As(classified, &closed):
		slog.Warn("remote end closed connection",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Int("retries_left", retries),
			slog.Any("error", err),
		)
		if retries == 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoResponse, closed)
		}
		if err := s.retry.wait(ctx, attempt); err != nil {
			return nil, err
		}
		return s.request(ctx, method, rawURL, form, retries-1, attempt+1)
	case errors.As(classified, &resolution):
		slog.Warn("hostname can't be resolved",
			slog.String("url", rawURL),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, resolution)
	}
	return nil, err
}

func (s *Session) fetch(method, rawURL string, form url.Values) (*Page, error) {
	target := rawURL
	var body io.Reader
	hdr := http.Header{"User-Agent": []string{s.cfg.UserAgent}}
	if len(form) > 0 {
		if method == http.MethodGet {
			u, err := url.Parse(rawURL)
			if err != nil {
				return nil, fmt.Errorf("parse url: %w", err)
			}
			u.RawQuery = form.Encode()
			target = u.String()
		} else {
			body = strings.NewReader(form.Encode())
			hdr.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}

	var page *Page
	c := s.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL,
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	atomic.AddInt64(&s.requestCount, 1)
	s.Metrics.IncRequest(method)
	start := time.Now()
	err := c.Request(method, target, body, nil, hdr)
	s.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("empty response from %s", target)
	}
	if page.StatusCode >= http.StatusMultipleChoices {
		return nil, ErrHTTPStatus{Status: page.StatusCode, URL: target}
	}
	return page, nil
}

// RequestCount returns the number of requests sent over the network.
func (s *Session) RequestCount() int {
	return int(atomic.LoadInt64(&s.requestCount))
}

// ErrorCount returns the number of failed network requests.
func (s *Session) ErrorCount() int {
	return int(atomic.LoadInt64(&s.errorCount))
}

// RetryCount returns the number of retries scheduled.
func (s *Session) RetryCount() int {
	return s.retry.TotalRetries()
}

type retryManager struct {
	cfg          *config.Config
	metrics      *Metrics
	totalRetries int64
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:     cfg,
		metrics: metrics,
	}
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// wait blocks for the backoff of attempt or until ctx is done.
func (rm *retryManager) wait(ctx context.Context, attempt int) error {
	atomic.AddInt64(&rm.totalRetries, 1)
	rm.metrics.IncRetries()

	timer := time.NewTimer(rm.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (rm *retryManager) TotalRetries() int {
	return int(atomic.LoadInt64(&rm.totalRetries))
}
