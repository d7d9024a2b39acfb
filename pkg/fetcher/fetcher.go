// Package fetcher retrieves raw page content under robots.txt, retry and cache rules.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"market-sentiment/pkg/cache"
	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/httpclient"
	"market-sentiment/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidScheme is returned for URLs that are not http or https. Not retried.
	ErrInvalidScheme = errors.New("invalid URL scheme")

	// ErrRobotsDisallowed is returned when robots.txt forbids the path. Not retried.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
)

// Error is a retryable transport or HTTP failure. Status is zero for transport faults.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RobotsChecker answers whether a URL may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Config wires the fetcher's collaborators. Only Client is required.
type Config struct {
	Client  *httpclient.HTTPClient
	Cache   cache.Store
	Robots  RobotsChecker
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Attempts is the total number of GETs per fetch, first try included.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// HostDelay is the minimum gap between two GETs to the same host.
	HostDelay time.Duration
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client  *httpclient.HTTPClient
	cache   cache.Store
	robots  RobotsChecker
	logger  *slog.Logger
	metrics *metrics.Metrics

	attempts        int
	initialInterval time.Duration
	maxInterval     time.Duration
	hostDelay       time.Duration

	flight singleflight.Group

	hostMu   sync.Mutex
	nextSlot map[string]time.Time
}

// New creates a fetcher, filling retry defaults of 3 attempts and 1s..8s backoff.
func New(cfg Config) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = httpclient.NewClient(httpclient.BrowserClient)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 8 * time.Second
	}

	return &Fetcher{
		client:          cfg.Client,
		cache:           cfg.Cache,
		robots:          cfg.Robots,
		logger:          cfg.Logger.With("component", "fetcher"),
		metrics:         cfg.Metrics,
		attempts:        cfg.Attempts,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		hostDelay:       cfg.HostDelay,
		nextSlot:        make(map[string]time.Time),
	}
}

// Fetch returns the raw content of rawURL. Concurrent calls for the same URL share one
// underlying fetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (domain.Source, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		f.metrics.FetchResult("invalid_scheme", time.Since(start))
		return domain.Source{}, fmt.Errorf("%w: %q", ErrInvalidScheme, rawURL)
	}

	v, err := f.shared(ctx, u, rawURL)
	if err != nil {
		f.metrics.FetchResult(resultLabel(err), time.Since(start))
		return domain.Source{}, err
	}

	src := v.(domain.Source)
	if src.FromCache {
		f.metrics.FetchResult("cached", time.Since(start))
	} else {
		f.metrics.FetchResult("ok", time.Since(start))
	}
	return src, nil
}

// shared joins any in-flight fetch of rawURL. The joined fetch runs under its
// starter's context, so a cancellation that is not ours earns one more attempt.
func (f *Fetcher) shared(ctx context.Context, u *url.URL, rawURL string) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	for i := 0; i < 2; i++ {
		started := false
		v, err, _ = f.flight.Do(rawURL, func() (interface{}, error) {
			started = true
			return f.fetch(ctx, u, rawURL)
		})
		if err == nil || started || ctx.Err() != nil || !isCanceled(err) {
			break
		}
	}
	return v, err
}

func (f *Fetcher) fetch(ctx context.Context, u *url.URL, rawURL string) (domain.Source, error) {
	key := cache.Key(rawURL)

	// A cache hit skips robots: the rules were honored when the entry was written.
	if src, ok := f.fromCache(ctx, key, rawURL); ok {
		return src, nil
	}

	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		return domain.Source{}, fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
	}

	resp, err := f.getWithRetry(ctx, u.Host, rawURL)
	if err != nil {
		return domain.Source{}, err
	}

	src := domain.Source{
		URL:         rawURL,
		FinalURL:    resp.FinalURL,
		RawMarkup:   string(resp.Body),
		ContentType: resp.ContentType,
		FetchedAt:   time.Now().UTC(),
		CacheKey:    key,
	}

	if f.cache != nil {
		entry := cache.Entry{
			FinalURL:    src.FinalURL,
			Body:        resp.Body,
			ContentType: src.ContentType,
			FetchedAt:   src.FetchedAt,
		}
		if err := f.cache.Put(ctx, key, entry); err != nil {
			f.logger.Warn("Fetcher: cache write failed", "url", rawURL, "error", err)
		}
	}
	return src, nil
}

func (f *Fetcher) fromCache(ctx context.Context, key, rawURL string) (domain.Source, bool) {
	if f.cache == nil {
		return domain.Source{}, false
	}

	entry, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		f.metrics.CacheLookup("error")
		f.logger.Warn("Fetcher: cache read failed, fetching", "url", rawURL, "error", err)
		return domain.Source{}, false
	}
	if !ok {
		f.metrics.CacheLookup("miss")
		return domain.Source{}, false
	}

	f.metrics.CacheLookup("hit")
	return domain.Source{
		URL:         rawURL,
		FinalURL:    entry.FinalURL,
		RawMarkup:   string(entry.Body),
		ContentType: entry.ContentType,
		FetchedAt:   entry.FetchedAt,
		CacheKey:    key,
		FromCache:   true,
	}, true
}

func (f *Fetcher) getWithRetry(ctx context.Context, host, rawURL string) (*httpclient.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.initialInterval
	exp.MaxInterval = f.maxInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.attempts-1)), ctx)

	var resp *httpclient.Response
	attempt := 0
	op := func() error {
		attempt++
		if err := f.waitForHost(ctx, host); err != nil {
			return backoff.Permanent(err)
		}

		f.metrics.FetchAttempt()
		r, err := f.client.Get(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&Error{URL: rawURL, Err: err})
			}
			return &Error{URL: rawURL, Err: err}
		}
		if r.StatusCode >= 400 {
			return &Error{URL: rawURL, Status: r.StatusCode}
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.logger.Info("Fetcher: retrying", "url", rawURL, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// waitForHost reserves the next GET slot for host and sleeps until it arrives.
func (f *Fetcher) waitForHost(ctx context.Context, host string) error {
	if f.hostDelay <= 0 {
		return nil
	}

	f.hostMu.Lock()
	now := time.Now()
	slot := f.nextSlot[host]
	if slot.Before(now) {
		slot = now
	}
	f.nextSlot[host] = slot.Add(f.hostDelay)
	f.hostMu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func resultLabel(err error) string {
	var fetchErr *Error
	switch {
	case errors.Is(err, ErrRobotsDisallowed):
		return "robots_disallowed"
	case isCanceled(err):
		return "canceled"
	case errors.As(err, &fetchErr) && fetchErr.Status != 0:
		return "http_error"
	default:
		return "transport_error"
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
