// Package app builds the pipeline's collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"market-sentiment/pkg/cache"
	"market-sentiment/pkg/config"
	"market-sentiment/pkg/content"
	"market-sentiment/pkg/db"
	"market-sentiment/pkg/discovery"
	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/fetcher"
	"market-sentiment/pkg/httpclient"
	"market-sentiment/pkg/metrics"
	"market-sentiment/pkg/pipeline"
	"market-sentiment/pkg/robots"
)

// Closer releases a resource opened during wiring.
type Closer func(ctx context.Context) error

// NewHTTPClient returns the browser-like client used for page fetches and discovery.
func NewHTTPClient(cfg config.ScraperConfig) *httpclient.HTTPClient {
	return httpclient.New(httpclient.Options{
		Type:         httpclient.BrowserClient,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Timeout(),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
}

// NewCache opens the configured cache backend. A nil store means caching is off.
func NewCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, Closer, error) {
	noop := func(context.Context) error { return nil }

	switch strings.ToLower(cfg.Backend) {
	case config.CacheNone:
		return nil, noop, nil
	case config.CacheMemory:
		return cache.NewMemoryStore(cfg.TTL), noop, nil
	case config.CacheDisk:
		store, err := cache.NewDiskStore(cfg.Dir, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.CacheRedis:
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil
	case config.CacheS3:
		store, err := cache.NewS3Store(ctx, cache.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		}, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// NewFetcher wires the fetcher with its cache and, when enabled, the robots checker.
func NewFetcher(cfg config.Config, client *httpclient.HTTPClient, store cache.Store, logger *slog.Logger, m *metrics.Metrics) *fetcher.Fetcher {
	fc := fetcher.Config{
		Client:    client,
		Cache:     store,
		Logger:    logger,
		Metrics:   m,
		Attempts:  cfg.Scraper.Attempts,
		HostDelay: cfg.Scraper.HostDelay,
	}
	if cfg.Scraper.RespectRobots {
		fc.Robots = robots.NewChecker(client, logger, m)
	}
	return fetcher.New(fc)
}

// NewDiscoverer builds a provider chain in the configured order. A non-empty
// urlsFile replaces the search providers with a fixed list.
func NewDiscoverer(cfg config.DiscoveryConfig, client *httpclient.HTTPClient, urlsFile string, logger *slog.Logger) *discovery.Discoverer {
	var providers []discovery.Provider
	queries := cfg.Queries
	if urlsFile != "" {
		providers = append(providers, discovery.NewFileProvider(urlsFile))
		// The file ignores the query; one pass is enough.
		queries = []string{"%s"}
	} else {
		for _, name := range cfg.Providers {
			switch name {
			case config.ProviderSerper:
				if cfg.SerperAPIKey != "" {
					providers = append(providers, discovery.NewSerperProvider(client, cfg.SerperAPIKey, cfg.SerperURL))
				}
			case config.ProviderDuckDuckGo:
				providers = append(providers, discovery.NewDuckDuckGoProvider(client, cfg.DuckDuckGoURL))
			case config.ProviderFeed:
				providers = append(providers, discovery.NewFeedProvider(client, cfg.FeedURL))
			case config.ProviderSitemap:
				providers = append(providers, discovery.NewSitemapProvider(client, logger, cfg.Sitemaps...))
			}
		}
	}

	blocked := cfg.BlockedHosts
	if len(blocked) == 0 {
		blocked = discovery.DefaultBlockedHosts
	}
	return discovery.NewDiscoverer(
		discovery.NewChain(logger, providers...),
		queries,
		cfg.MaxSources,
		logger,
		discovery.NewBlockedHostFilter(blocked...),
	)
}

// Stores holds the optional persistence backends that were configured.
type Stores struct {
	Verdicts  pipeline.VerdictSaver
	Documents pipeline.DocumentSaver
	// History answers "latest verdict" lookups from the first configured store.
	History db.VerdictRepository

	closers []Closer
}

// Close releases every opened store.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStores connects to every configured store. A store that fails to connect is
// an error; unconfigured stores are skipped.
func OpenStores(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stores := &Stores{}
	var savers verdictSavers

	if cfg.MongoURI != "" {
		mongo := db.NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
		if err := mongo.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		stores.closers = append(stores.closers, mongo.Close)
		savers = append(savers, mongo)
		stores.Documents = mongo
		stores.History = mongo
		logger.Info("Storage: mongo enabled", "database", cfg.MongoDatabase)
	}

	if cfg.PostgresDSN != "" {
		pg := db.NewPostgresClient(db.PostgresConfig{DSN: cfg.PostgresDSN})
		if err := pg.Connect(ctx); err != nil {
			_ = stores.Close(ctx)
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		stores.closers = append(stores.closers, func(context.Context) error { return pg.Close() })

		store := db.NewVerdictStore(pg, cfg.VerdictTable)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = stores.Close(ctx)
			return nil, err
		}
		savers = append(savers, store)
		if stores.History == nil {
			stores.History = store
		}
		logger.Info("Storage: postgres enabled")
	}

	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sb := db.NewSupabaseClient(db.SupabaseConfig{
			SupabaseURL: cfg.SupabaseURL,
			SupabaseKey: cfg.SupabaseKey,
			Password:    cfg.SupabasePassword,
		})
		if err := sb.Connect(ctx); err != nil {
			_ = stores.Close(ctx)
			return nil, fmt.Errorf("connect supabase: %w", err)
		}
		stores.closers = append(stores.closers, func(context.Context) error { return sb.Close() })

		var repo db.VerdictRepository
		if sb.HasDirectDB() {
			store := db.NewVerdictStore(sb, cfg.VerdictTable)
			if err := store.EnsureSchema(ctx); err != nil {
				_ = stores.Close(ctx)
				return nil, err
			}
			repo = store
		} else {
			repo = db.NewSupabaseVerdictStore(sb, cfg.VerdictTable)
		}
		savers = append(savers, repo)
		if stores.History == nil {
			stores.History = repo
		}
		logger.Info("Storage: supabase enabled", "direct_db", sb.HasDirectDB())
	}

	if len(savers) > 0 {
		stores.Verdicts = savers
	}
	return stores, nil
}

// verdictSavers fans a verdict out to every store and joins their errors.
type verdictSavers []pipeline.VerdictSaver

func (s verdictSavers) SaveVerdict(ctx context.Context, verdict *domain.SentimentVerdict) error {
	var errs []error
	for _, saver := range s {
		if err := saver.SaveVerdict(ctx, verdict); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewPipeline assembles the pipeline from its collaborators.
func NewPipeline(cfg config.Config, f *fetcher.Fetcher, stores *Stores, logger *slog.Logger, m *metrics.Metrics) *pipeline.Pipeline {
	opts := pipeline.Options{
		Processor: pipeline.NewFetchingProcessor(f, content.NewExtractor(logger, m)),
		Workers:   cfg.Pipeline.Workers,
		Timeout:   cfg.Pipeline.RunTimeout,
		Logger:    logger,
		Metrics:   m,
	}
	if stores != nil {
		opts.VerdictSaver = stores.Verdicts
		opts.DocumentSaver = stores.Documents
	}
	return pipeline.New(opts)
}
