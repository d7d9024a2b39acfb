// Package pipeline runs fetch, extraction and segmentation for a set of candidate URLs
// concurrently, then hands the sentences to the aggregator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"market-sentiment/pkg/aggregate"
	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/metrics"
	"market-sentiment/pkg/segment"
	"market-sentiment/pkg/sentiment"

	"github.com/google/uuid"
)

// DefaultWorkers is the fetch concurrency when none is configured.
const DefaultWorkers = 6

var (
	// ErrEmptyProduct is returned when the product name is blank.
	ErrEmptyProduct = errors.New("product name is required")

	// ErrNoSources means discovery produced no candidate URLs at all.
	ErrNoSources = errors.New("no sources available")
)

// VerdictSaver persists a finished verdict.
type VerdictSaver interface {
	SaveVerdict(ctx context.Context, verdict *domain.SentimentVerdict) error
}

// DocumentSaver persists an extracted document.
type DocumentSaver interface {
	SaveDocument(ctx context.Context, doc *domain.ExtractedDocument) error
}

// Options configures a Pipeline. Processor is required.
type Options struct {
	Processor ContentProcessor
	Workers   int
	// Timeout bounds the whole run. Sources finished before it fires still count.
	Timeout time.Duration
	Scorer  sentiment.Scorer

	VerdictSaver  VerdictSaver
	DocumentSaver DocumentSaver

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline is safe to reuse across runs.
type Pipeline struct {
	processor  ContentProcessor
	workers    int
	timeout    time.Duration
	aggregator *aggregate.Aggregator

	verdictSaver  VerdictSaver
	documentSaver DocumentSaver

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		processor:     opts.Processor,
		workers:       opts.Workers,
		timeout:       opts.Timeout,
		aggregator:    aggregate.New(opts.Scorer),
		verdictSaver:  opts.VerdictSaver,
		documentSaver: opts.DocumentSaver,
		logger:        opts.Logger.With("component", "pipeline"),
		metrics:       opts.Metrics,
		now:           time.Now,
	}
}

// result is the outcome of one source, tagged with its input position.
type result struct {
	index     int
	url       string
	doc       *domain.ExtractedDocument
	sentences []domain.Sentence
	err       error
}

// Run produces a verdict for product from urls. Per-source failures are logged and
// skipped; only a blank product or an empty URL list is an error.
func (p *Pipeline) Run(ctx context.Context, product string, urls []string) (domain.SentimentVerdict, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return domain.SentimentVerdict{}, ErrEmptyProduct
	}
	urls = nonBlank(urls)
	if len(urls) == 0 {
		return domain.SentimentVerdict{}, ErrNoSources
	}
	if p.processor == nil {
		return domain.SentimentVerdict{}, fmt.Errorf("content processor is not set")
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.logger.Info("Pipeline: starting run", "product", product, "sources", len(urls), "workers", p.workers)
	results := p.processAll(runCtx, urls)

	var sentences []domain.Sentence
	var used []string
	for _, r := range results {
		if r.err != nil || r.doc == nil || r.doc.Text == "" {
			continue
		}
		used = append(used, r.doc.URL)
		sentences = append(sentences, r.sentences...)
	}

	var verdict domain.SentimentVerdict
	if len(used) == 0 {
		verdict = noSourcesVerdict(product, len(urls))
	} else {
		verdict = p.aggregator.Aggregate(product, sentences)
	}
	verdict.RunID = uuid.NewString()
	verdict.Sources = used
	verdict.GeneratedAt = p.now().UTC()

	p.metrics.Verdict(verdict.Status, verdict.Evidence.Positive, verdict.Evidence.Negative, verdict.Evidence.Neutral)
	p.logger.Info("Pipeline: run finished",
		"product", product,
		"status", verdict.Status,
		"sources_used", len(used),
		"sentences", len(sentences),
		"evidence", verdict.Evidence.Sum(),
	)

	p.save(ctx, &verdict)
	return verdict, nil
}

// processAll fans urls out to a bounded worker pool and returns results in input order.
func (p *Pipeline) processAll(ctx context.Context, urls []string) []result {
	type job struct {
		index int
		url   string
	}

	jobChan := make(chan job, len(urls))
	for i, u := range urls {
		jobChan <- job{index: i, url: u}
	}
	close(jobChan)

	resultsChan := make(chan result, len(urls))
	var wg sync.WaitGroup

	workers := p.workers
	if workers > len(urls) {
		workers = len(urls)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobChan {
				if err := ctx.Err(); err != nil {
					resultsChan <- result{index: j.index, url: j.url, err: err}
					continue
				}
				resultsChan <- p.processOne(ctx, workerID, j.index, j.url)
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	ordered := make([]result, len(urls))
	var successCount, errorCount int
	for r := range resultsChan {
		ordered[r.index] = r
		if r.err != nil {
			errorCount++
			continue
		}
		successCount++
	}

	p.logger.Info("Pipeline: sources processed", "ok", successCount, "failed", errorCount, "total", len(urls))
	return ordered
}

func (p *Pipeline) processOne(ctx context.Context, workerID, index int, url string) result {
	doc, err := p.processor.ProcessContent(ctx, url)
	if err != nil {
		p.logger.Warn("Pipeline: skipping source", "worker", workerID, "url", url, "error", err)
		return result{index: index, url: url, err: err}
	}

	if doc.Text == "" {
		p.logger.Info("Pipeline: no usable text", "worker", workerID, "url", url)
	}

	if p.documentSaver != nil && doc.Text != "" {
		if err := p.documentSaver.SaveDocument(ctx, doc); err != nil {
			p.logger.Warn("Pipeline: failed to save document", "url", url, "error", err)
		}
	}

	return result{
		index:     index,
		url:       url,
		doc:       doc,
		sentences: segment.Segment(doc.Text, doc.URL),
	}
}

// save persists the verdict. A saver failure never fails the run, and saving still
// happens when the run deadline has passed.
func (p *Pipeline) save(ctx context.Context, verdict *domain.SentimentVerdict) {
	if p.verdictSaver == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.verdictSaver.SaveVerdict(saveCtx, verdict); err != nil {
		p.logger.Warn("Pipeline: failed to save verdict", "run_id", verdict.RunID, "error", err)
	}
}

func noSourcesVerdict(product string, candidates int) domain.SentimentVerdict {
	return domain.SentimentVerdict{
		Product: product,
		Status:  domain.StatusNoSourcesFetched,
		Note:    fmt.Sprintf("none of the %d candidate sources could be fetched or yielded readable text", candidates),
		Themes:  domain.Themes{Positive: []string{}, Negative: []string{}, Neutral: []string{}},
		Quotes:  []domain.Quote{},
	}
}

func nonBlank(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
