package db

import (
	"context"
	"database/sql"

	"market-sentiment/pkg/domain"
)

// DBProvider is an interface for database clients that provide access to a sql.DB handle.
// This allows both PostgresClient and SupabaseClient to back a VerdictStore.
type DBProvider interface {
	DB() *sql.DB
}

// VerdictRepository stores and looks up verdicts. MongoStore, VerdictStore and
// SupabaseVerdictStore implement it.
type VerdictRepository interface {
	SaveVerdict(ctx context.Context, verdict *domain.SentimentVerdict) error
	LatestVerdict(ctx context.Context, product string) (*domain.SentimentVerdict, error)
}
