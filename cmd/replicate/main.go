package main

import (
	"context"
	"flag"
	"log"
	"time"

	"market-sentiment/pkg/config"
	"market-sentiment/pkg/db"
	"market-sentiment/pkg/logging"
	"market-sentiment/pkg/replication"
)

// replicate copies verdict history from MongoDB into the Postgres verdict table.
func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (default $SENTIMENT_CONFIG)")
		batchSize  = flag.Int("batch", 100, "Verdicts per insert transaction")
		workers    = flag.Int("workers", 5, "Parallel batch workers")
	)
	flag.Parse()

	if err := config.LoadEnvFile(""); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.MongoURI == "" || cfg.Storage.PostgresDSN == "" {
		log.Fatalf("Both MONGO_URI and POSTGRES_DSN must be set")
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx := context.Background()

	mongo := db.NewMongoStore(cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	if err := mongo.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongo.Close(ctx)

	pg := db.NewPostgresClient(db.PostgresConfig{DSN: cfg.Storage.PostgresDSN, MaxOpenConns: *workers})
	if err := pg.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pg.Close()

	sink := db.NewVerdictStore(pg, cfg.Storage.VerdictTable)
	if err := sink.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare verdict table: %v", err)
	}

	r, err := replication.NewReplicator(replication.Config{
		Source:    mongo,
		Sink:      sink,
		BatchSize: *batchSize,
		Workers:   *workers,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create replicator: %v", err)
	}

	start := time.Now()
	stats, err := r.Replicate(ctx)
	if err != nil {
		log.Fatalf("Replication failed: %v", err)
	}
	log.Printf("Done. Processed %d, inserted %d. Duration: %s", stats.Processed, stats.Inserted, time.Since(start))
}
