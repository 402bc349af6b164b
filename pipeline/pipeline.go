// Package pipeline runs library searches on a bounded worker pool and hands
// the results to the output writers.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aluiziolira/go-onleihe/models"
	"github.com/aluiziolira/go-onleihe/scraper"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending searches outlive drainTimeout.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

var drainTimeout = 30 * time.Minute

// SearchFunc searches one library and returns its hit count.
type SearchFunc func(ctx context.Context, lib *models.Library) (int, error)

// OutputWriter defines the interface for result output.
type OutputWriter interface {
	Write(results []*models.SearchResult) error
	Close() error
	Validate() error
}

// Pipeline distributes search jobs over workers and collects their results.
// Each library is owned by exactly one worker while it is searched.
type Pipeline struct {
	ctx       context.Context
	search    SearchFunc
	writer    OutputWriter
	jobCh     chan models.SearchJob
	batchSize int
	workers   int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	resultsMu sync.Mutex
	results   []*models.SearchResult
	pending   []*models.SearchResult // unwritten results of the inline mode

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline around search. writer may be nil when the
// results are only collected in memory.
func NewPipeline(ctx context.Context, search SearchFunc, writer OutputWriter) *Pipeline {
	return &Pipeline{
		ctx:       ctx,
		search:    search,
		writer:    writer,
		jobCh:     make(chan models.SearchJob, 512),
		batchSize: 64,
		seen:      make(map[string]struct{}),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines. With zero or fewer workers no goroutine
// is started and Process searches inline, one library after the other.
func (p *Pipeline) Start(workers int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.workers = workers
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process submits jobs. Jobs naming a library already submitted for the
// same region are skipped.
func (p *Pipeline) Process(jobs ...models.SearchJob) error {
	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, job := range jobs {
		if job.Library == nil || !p.claim(job) {
			continue
		}
		if p.sequential() {
			if err := p.runInline(job); err != nil {
				return err
			}
			continue
		}
		if err := p.enqueue(job); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for pending searches, flushes the writer and prevents more
// submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.jobCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.signalShutdown()
		return ErrPipelineCloseTimeout
	}
	p.signalShutdown()

	p.resultsMu.Lock()
	pending := p.pending
	p.pending = nil
	p.resultsMu.Unlock()
	if err := p.write(pending); err != nil {
		p.setErr(fmt.Errorf("write results: %w", err))
	}
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Results returns the collected results in completion order.
func (p *Pipeline) Results() []*models.SearchResult {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	out := make([]*models.SearchResult, len(p.results))
	copy(out, p.results)
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m := p.GetMetrics()
				slog.Info("search progress",
					slog.Int64("searched", m["searched_libraries"].(int64)),
					slog.Int64("failed", m["failed_searches"].(int64)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.SearchResult, 0, p.batchSize)
	flush := func() error {
		if err := p.write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for job := range p.jobCh {
		if p.ctx.Err() != nil {
			continue
		}
		batch = append(batch, p.run(job))
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) runInline(job models.SearchJob) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	result := p.run(job)

	p.resultsMu.Lock()
	p.pending = append(p.pending, result)
	if len(p.pending) < p.batchSize {
		p.resultsMu.Unlock()
		return nil
	}
	batch := p.pending
	p.pending = nil
	p.resultsMu.Unlock()

	if err := p.write(batch); err != nil {
		err = fmt.Errorf("write batch: %w", err)
		p.setErr(err)
		return err
	}
	return nil
}

func (p *Pipeline) run(job models.SearchJob) *models.SearchResult {
	hits, err := p.search(p.ctx, job.Library)
	result := &models.SearchResult{
		Region:     job.Region,
		Library:    job.Library,
		HitCount:   hits,
		Err:        err,
		SearchedAt: time.Now(),
	}
	if err != nil {
		p.metrics.addFailure(scraper.ErrorTypeLabel(err))
		slog.Error("search failed",
			slog.String("region", job.Region),
			slog.String("library", job.Library.Title),
			slog.Any("error", err),
		)
	}
	p.metrics.incrementSearched()

	p.resultsMu.Lock()
	p.results = append(p.results, result)
	p.resultsMu.Unlock()
	return result
}

func (p *Pipeline) write(results []*models.SearchResult) error {
	if p.writer == nil || len(results) == 0 {
		return nil
	}
	return p.writer.Write(results)
}

func (p *Pipeline) claim(job models.SearchJob) bool {
	key := job.Region + "\x00" + job.Library.SourceURL
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	if _, ok := p.seen[key]; ok {
		p.metrics.addSkipped("duplicate_library")
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

func (p *Pipeline) sequential() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers <= 0
}

func (p *Pipeline) enqueue(job models.SearchJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobCh <- job:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.jobCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Rank drops failed searches and orders the rest by hit count, highest
// first. Libraries with equal counts keep their relative order.
func Rank(results []*models.SearchResult) []*models.SearchResult {
	ranked := make([]*models.SearchResult, 0, len(results))
	for _, r := range results {
		if r == nil || r.Err != nil {
			continue
		}
		ranked = append(ranked, r)
	}
	slices.SortStableFunc(ranked, func(a, b *models.SearchResult) int {
		return cmp.Compare(b.HitCount, a.HitCount)
	})
	return ranked
}

// Top returns at most n results; n <= 0 returns all of them.
func Top(results []*models.SearchResult, n int) []*models.SearchResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

type metrics struct {
	mu       sync.Mutex
	searched int64
	failures map[string]int
	skipped  map[string]int
}

func newMetrics() metrics {
	return metrics{
		failures: make(map[string]int),
		skipped:  make(map[string]int),
	}
}

func (m *metrics) incrementSearched() {
	m.mu.Lock()
	m.searched++
	m.mu.Unlock()
}

func (m *metrics) addFailure(kind string) {
	m.mu.Lock()
	m.failures[kind]++
	m.mu.Unlock()
}

func (m *metrics) addSkipped(kind string) {
	m.mu.Lock()
	m.skipped[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[string]int, len(m.failures))
	var failed int64
	for k, v := range m.failures {
		failures[k] = v
		failed += int64(v)
	}
	skipped := make(map[string]int, len(m.skipped))
	for k, v := range m.skipped {
		skipped[k] = v
	}

	return map[string]interface{}{
		"searched_libraries": m.searched,
		"failed_searches":    failed,
		"errors_by_type":     failures,
		"skipped_jobs":       skipped,
	}
}
