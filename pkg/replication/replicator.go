// Package replication copies stored verdicts from MongoDB into a SQL verdict table.
package replication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"market-sentiment/pkg/domain"
)

const (
	defaultBatchSize = 100
	defaultWorkers   = 5
)

// Source lists every verdict to replicate.
type Source interface {
	AllVerdicts(ctx context.Context) ([]domain.SentimentVerdict, error)
}

// Sink receives verdicts. db.VerdictStore implements it.
type Sink interface {
	ExistingRunIDs(ctx context.Context, runIDs []string) (map[string]bool, error)
	SaveVerdicts(ctx context.Context, verdicts []domain.SentimentVerdict) error
}

// Config wires the replication dependencies.
type Config struct {
	Source    Source
	Sink      Sink
	BatchSize int
	Workers   int
	Logger    *slog.Logger
}

// Stats summarizes one replication pass.
type Stats struct {
	Processed int
	Inserted  int
}

// Replicator copies verdicts that the sink does not have yet. Existing run ids are
// skipped, so a pass can be repeated safely.
type Replicator struct {
	source    Source
	sink      Sink
	batchSize int
	workers   int
	logger    *slog.Logger
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Replicator{
		source:    cfg.Source,
		sink:      cfg.Sink,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		logger:    cfg.Logger.With("component", "replication"),
	}, nil
}

// Replicate runs one full pass.
func (r *Replicator) Replicate(ctx context.Context) (Stats, error) {
	verdicts, err := r.source.AllVerdicts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read verdicts: %w", err)
	}
	r.logger.Info("Replication: loaded verdicts", "count", len(verdicts))

	stats, err := r.processBatches(ctx, verdicts)
	if err != nil {
		return stats, err
	}
	r.logger.Info("Replication: complete", "processed", stats.Processed, "inserted", stats.Inserted)
	return stats, nil
}

type batchJob struct {
	batch []domain.SentimentVerdict
	start int
}

type batchResult struct {
	processed int
	inserted  int
	err       error
}

// processBatches fans batches out to workers and stops at the first failed batch.
func (r *Replicator) processBatches(ctx context.Context, verdicts []domain.SentimentVerdict) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numBatches := (len(verdicts) + r.batchSize - 1) / r.batchSize
	jobs := make(chan batchJob, numBatches)
	results := make(chan batchResult, numBatches)

	for start := 0; start < len(verdicts); start += r.batchSize {
		end := min(start+r.batchSize, len(verdicts))
		jobs <- batchJob{batch: verdicts[start:end], start: start}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				inserted, err := r.processBatch(ctx, job)
				results <- batchResult{processed: len(job.batch), inserted: inserted, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var stats Stats
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		stats.Processed += res.processed
		stats.Inserted += res.inserted
	}
	return stats, firstErr
}

// processBatch checks which run ids exist and inserts the rest.
func (r *Replicator) processBatch(ctx context.Context, job batchJob) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	end := job.start + len(job.batch)

	ids := make([]string, 0, len(job.batch))
	for _, v := range job.batch {
		if v.RunID != "" {
			ids = append(ids, v.RunID)
		}
	}
	existing, err := r.sink.ExistingRunIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check existing run ids for batch [%d:%d]: %w", job.start, end, err)
	}

	toInsert := filterNew(job.batch, existing)
	if len(toInsert) == 0 {
		return 0, nil
	}
	if err := r.sink.SaveVerdicts(ctx, toInsert); err != nil {
		return 0, fmt.Errorf("insert batch [%d:%d]: %w", job.start, end, err)
	}
	r.logger.Debug("Replication: batch inserted", "start", job.start, "end", end, "inserted", len(toInsert))
	return len(toInsert), nil
}

func filterNew(all []domain.SentimentVerdict, existing map[string]bool) []domain.SentimentVerdict {
	out := make([]domain.SentimentVerdict, 0, len(all))
	for _, v := range all {
		if v.RunID == "" || existing[v.RunID] {
			continue
		}
		out = append(out, v)
	}
	return out
}
