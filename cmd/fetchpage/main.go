package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"market-sentiment/pkg/app"
	"market-sentiment/pkg/config"
	"market-sentiment/pkg/content"
	"market-sentiment/pkg/logging"
)

// fetchpage fetches one URL through the cache and robots rules and prints the
// extracted document as JSON.
func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (default $SENTIMENT_CONFIG)")
		showRaw    = flag.Bool("raw", false, "Print the raw payload instead of the extracted document")
		maxText    = flag.Int("max-text", 0, "Truncate printed text to this many characters (0 = no limit)")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("Usage: %s [-config file] <url>", os.Args[0])
	}
	pageURL := flag.Arg(0)

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, closeCache, err := app.NewCache(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer closeCache(context.Background())

	f := app.NewFetcher(cfg, app.NewHTTPClient(cfg.Scraper), store, logger, nil)
	src, err := f.Fetch(ctx, pageURL)
	if err != nil {
		log.Fatalf("Fetch failed: %v", err)
	}
	if *showRaw {
		os.Stdout.WriteString(src.RawMarkup)
		return
	}

	base := src.FinalURL
	if base == "" {
		base = src.URL
	}
	doc := content.NewExtractor(logger, nil).Extract(base, src.RawMarkup)
	doc.URL = src.URL
	if *maxText > 0 && len([]rune(doc.Text)) > *maxText {
		doc.Text = string([]rune(doc.Text)[:*maxText]) + "..."
	}

	out := struct {
		FinalURL  string `json:"final_url"`
		FromCache bool   `json:"from_cache"`
		CacheKey  string `json:"cache_key"`
		Document  any    `json:"document"`
	}{src.FinalURL, src.FromCache, src.CacheKey, doc}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
}
