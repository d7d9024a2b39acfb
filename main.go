package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-sentiment/pkg/app"
	"market-sentiment/pkg/config"
	"market-sentiment/pkg/db"
	"market-sentiment/pkg/logging"
	"market-sentiment/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file (default $SENTIMENT_CONFIG)")
		envFile     = flag.String("env-file", ".env", "dotenv file loaded before the config")
		product     = flag.String("product", "", "Product name to analyze")
		urlList     = flag.String("urls", "", "Comma-separated source URLs (skips discovery)")
		urlsFile    = flag.String("urls-file", "", "File with one source URL per line (skips search providers)")
		workers     = flag.Int("workers", 0, "Parallel source workers (0 keeps the config value)")
		cacheKind   = flag.String("cache", "", "Cache backend: none, memory, disk, redis, s3")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
		last        = flag.Bool("last", false, "Print the latest stored verdict for -product and exit")
		indent      = flag.Bool("pretty", true, "Indent JSON output")
	)
	flag.Parse()

	if *product == "" && flag.NArg() > 0 {
		*product = strings.Join(flag.Args(), " ")
	}
	if strings.TrimSpace(*product) == "" {
		log.Fatalf("Usage: %s -product \"<name>\" [-urls a,b | -urls-file path]", os.Args[0])
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *cacheKind != "" {
		cfg.Cache.Backend = *cacheKind
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer stores.Close(context.Background())

	if *last {
		printLatest(ctx, stores, *product, *indent)
		return
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, reg)
	}

	store, closeCache, err := app.NewCache(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer closeCache(context.Background())

	client := app.NewHTTPClient(cfg.Scraper)
	f := app.NewFetcher(cfg, client, store, logger, m)

	urls := splitURLs(*urlList)
	if len(urls) == 0 {
		d := app.NewDiscoverer(cfg.Discovery, client, *urlsFile, logger)
		urls, err = d.Discover(ctx, *product)
		if err != nil {
			log.Fatalf("Source discovery failed: %v", err)
		}
	}
	if len(urls) == 0 {
		log.Fatalf("No sources available for %q", *product)
	}

	start := time.Now()
	logger.Info("Starting run", "product", *product, "sources", len(urls), "workers", cfg.Pipeline.Workers)

	p := app.NewPipeline(cfg, f, stores, logger, m)
	verdict, err := p.Run(ctx, *product, urls)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	logger.Info("Done", "status", verdict.Status, "sources_used", len(verdict.Sources), "duration", time.Since(start))
	if verdict.NoVerifiedSources() {
		logger.Warn("No verified sources; verdict carries no percentages", "product", *product, "note", verdict.Note)
	}

	writeJSON(verdict, *indent)
}

func printLatest(ctx context.Context, stores *app.Stores, product string, indent bool) {
	if stores.History == nil {
		log.Fatalf("No storage configured; set MONGO_URI, POSTGRES_DSN or SUPABASE_URL")
	}
	verdict, err := stores.History.LatestVerdict(ctx, product)
	if errors.Is(err, db.ErrNotFound) {
		log.Fatalf("No stored verdict for %q", product)
	}
	if err != nil {
		log.Fatalf("Failed to load verdict: %v", err)
	}
	writeJSON(verdict, indent)
}

func writeJSON(v any, indent bool) {
	enc := json.NewEncoder(os.Stdout)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server stopped: %v", err)
	}
}

func splitURLs(list string) []string {
	var urls []string
	for _, u := range strings.Split(list, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
