// Package batch analyzes many products with two levels of workers: discovery workers
// find candidate sources, analysis workers run the pipeline on them.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/pipeline"
)

// Discoverer finds candidate source URLs for a product.
type Discoverer interface {
	Discover(ctx context.Context, product string) ([]string, error)
}

// Analyzer turns a product and its sources into a verdict.
type Analyzer interface {
	Run(ctx context.Context, product string, urls []string) (domain.SentimentVerdict, error)
}

// Config holds configuration for Runner.
type Config struct {
	DiscoveryWorkers int
	AnalysisWorkers  int
	Discoverer       Discoverer
	Analyzer         Analyzer
	Logger           *slog.Logger
}

// Result is the outcome for one product. Exactly one of Verdict and Err is set.
type Result struct {
	Product string                   `json:"product"`
	Verdict *domain.SentimentVerdict `json:"verdict,omitempty"`
	Err     error                    `json:"-"`
}

// Runner is safe to reuse.
type Runner struct {
	discoveryWorkers int
	analysisWorkers  int
	discoverer       Discoverer
	analyzer         Analyzer
	logger           *slog.Logger
}

// NewRunner creates a runner. Worker counts default to 2 and 1.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Discoverer == nil || cfg.Analyzer == nil {
		return nil, fmt.Errorf("discoverer and analyzer are required")
	}
	if cfg.DiscoveryWorkers <= 0 {
		cfg.DiscoveryWorkers = 2
	}
	if cfg.AnalysisWorkers <= 0 {
		cfg.AnalysisWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		discoveryWorkers: cfg.DiscoveryWorkers,
		analysisWorkers:  cfg.AnalysisWorkers,
		discoverer:       cfg.Discoverer,
		analyzer:         cfg.Analyzer,
		logger:           cfg.Logger.With("component", "batch"),
	}, nil
}

type productJob struct {
	index   int
	product string
}

type analysisJob struct {
	productJob
	urls []string
}

type indexedResult struct {
	index int
	Result
}

// Run analyzes every product and returns one result per input, in input order.
// Blank products are reported as errors without being searched.
func (r *Runner) Run(ctx context.Context, products []string) []Result {
	results := make([]Result, len(products))
	productChan := make(chan productJob, r.discoveryWorkers*2)
	analysisChan := make(chan analysisJob, r.analysisWorkers*2)
	resultChan := make(chan indexedResult, len(products))

	var analysisWg sync.WaitGroup
	r.startAnalysisWorkers(ctx, &analysisWg, analysisChan, resultChan)

	var discoveryWg sync.WaitGroup
	r.startDiscoveryWorkers(ctx, &discoveryWg, productChan, analysisChan, resultChan)

	go func() {
		defer close(productChan)
		for i, p := range products {
			p = strings.TrimSpace(p)
			if p == "" {
				resultChan <- indexedResult{index: i, Result: Result{Err: fmt.Errorf("blank product at line %d", i+1)}}
				continue
			}
			select {
			case productChan <- productJob{index: i, product: p}:
			case <-ctx.Done():
				resultChan <- indexedResult{index: i, Result: Result{Product: p, Err: ctx.Err()}}
			}
		}
	}()

	go func() {
		discoveryWg.Wait()
		close(analysisChan)
		analysisWg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		results[res.index] = res.Result
	}
	return results
}

// startDiscoveryWorkers starts level 1 workers: product in, candidate URLs out.
func (r *Runner) startDiscoveryWorkers(ctx context.Context, wg *sync.WaitGroup, in <-chan productJob, out chan<- analysisJob, results chan<- indexedResult) {
	for i := 0; i < r.discoveryWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range in {
				urls, err := r.discoverer.Discover(ctx, job.product)
				if err == nil && len(urls) == 0 {
					err = fmt.Errorf("discover %q: %w", job.product, pipeline.ErrNoSources)
				}
				if err != nil {
					r.logger.Warn("Batch: discovery failed", "worker", workerID, "product", job.product, "error", err)
					results <- indexedResult{index: job.index, Result: Result{Product: job.product, Err: err}}
					continue
				}
				r.logger.Info("Batch: sources found", "worker", workerID, "product", job.product, "sources", len(urls))
				out <- analysisJob{productJob: job, urls: urls}
			}
		}(i)
	}
}

// startAnalysisWorkers starts level 2 workers: product and sources in, verdict out.
func (r *Runner) startAnalysisWorkers(ctx context.Context, wg *sync.WaitGroup, in <-chan analysisJob, results chan<- indexedResult) {
	for i := 0; i < r.analysisWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range in {
				verdict, err := r.analyzer.Run(ctx, job.product, job.urls)
				res := Result{Product: job.product}
				if err != nil {
					r.logger.Warn("Batch: analysis failed", "worker", workerID, "product", job.product, "error", err)
					res.Err = err
				} else {
					res.Verdict = &verdict
				}
				results <- indexedResult{index: job.index, Result: res}
			}
		}(i)
	}
}
