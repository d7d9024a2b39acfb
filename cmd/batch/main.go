package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-sentiment/pkg/app"
	"market-sentiment/pkg/batch"
	"market-sentiment/pkg/config"
	"market-sentiment/pkg/logging"
	"market-sentiment/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// batch reads product names (one per line, # comments allowed) and writes one JSON
// line per product to stdout.
func main() {
	var (
		configPath       = flag.String("config", "", "YAML config file (default $SENTIMENT_CONFIG)")
		productsFile     = flag.String("products", "", "File with one product name per line")
		discoveryWorkers = flag.Int("discovery-workers", 2, "Products searched in parallel")
		analysisWorkers  = flag.Int("analysis-workers", 1, "Products analyzed in parallel")
	)
	flag.Parse()

	if *productsFile == "" {
		log.Fatalf("Usage: %s -products <file>", os.Args[0])
	}
	products, err := readProducts(*productsFile)
	if err != nil {
		log.Fatalf("Failed to read products: %v", err)
	}

	if err := config.LoadEnvFile(""); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	store, closeCache, err := app.NewCache(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer closeCache(context.Background())

	m := metrics.New(prometheus.NewRegistry())
	client := app.NewHTTPClient(cfg.Scraper)
	f := app.NewFetcher(cfg, client, store, logger, m)

	runner, err := batch.NewRunner(batch.Config{
		DiscoveryWorkers: *discoveryWorkers,
		AnalysisWorkers:  *analysisWorkers,
		Discoverer:       app.NewDiscoverer(cfg.Discovery, client, "", logger),
		Analyzer:         app.NewPipeline(cfg, f, stores, logger, m),
		Logger:           logger,
	})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	start := time.Now()
	results := runner.Run(ctx, products)

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, res := range results {
		line := struct {
			batch.Result
			Error string `json:"error,omitempty"`
		}{Result: res}
		if res.Err != nil {
			line.Error = res.Err.Error()
			failed++
		}
		if err := enc.Encode(line); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
	}
	log.Printf("Done. %d products, %d failed. Duration: %s", len(results), failed, time.Since(start))
}

func readProducts(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var products []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		products = append(products, line)
	}
	return products, scanner.Err()
}
