package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"market-sentiment/pkg/domain"

	sq "github.com/Masterminds/squirrel"
)

// DefaultVerdictTable is the table VerdictStore writes to.
const DefaultVerdictTable = "sentiment_verdicts"

// VerdictStore persists verdicts to any Postgres handle exposed by a DBProvider.
// The full verdict is kept as a JSONB payload next to a few queryable columns.
type VerdictStore struct {
	provider DBProvider
	table    string
	builder  sq.StatementBuilderType
}

// NewVerdictStore creates a store over provider. An empty table uses DefaultVerdictTable.
func NewVerdictStore(provider DBProvider, table string) *VerdictStore {
	if table == "" {
		table = DefaultVerdictTable
	}
	return &VerdictStore{
		provider: provider,
		table:    table,
		builder:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *VerdictStore) db() (*sql.DB, error) {
	if s.provider == nil || s.provider.DB() == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return s.provider.DB(), nil
}

// EnsureSchema creates the verdict table if it does not exist.
func (s *VerdictStore) EnsureSchema(ctx context.Context) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, s.schemaSQL()); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *VerdictStore) schemaSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	run_id TEXT PRIMARY KEY,
	product TEXT NOT NULL,
	status TEXT NOT NULL,
	positive_pct INTEGER NOT NULL,
	negative_pct INTEGER NOT NULL,
	neutral_pct INTEGER NOT NULL,
	evidence_total INTEGER NOT NULL,
	payload JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_product_idx ON %[1]s (product, generated_at DESC);`, s.table)
}

// SaveVerdict upserts verdict by run id.
func (s *VerdictStore) SaveVerdict(ctx context.Context, verdict *domain.SentimentVerdict) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	query, args, err := s.saveQuery(verdict)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert verdict: %w", err)
	}
	return nil
}

// SaveVerdicts upserts a batch of verdicts in one transaction.
func (s *VerdictStore) SaveVerdicts(ctx context.Context, verdicts []domain.SentimentVerdict) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range verdicts {
		query, args, err := s.saveQuery(&verdicts[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert verdict run_id=%q: %w", verdicts[i].RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ExistingRunIDs returns the subset of runIDs already stored.
func (s *VerdictStore) ExistingRunIDs(ctx context.Context, runIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(runIDs) == 0 {
		return existing, nil
	}
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	query, args, err := s.existingQuery(runIDs)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing run ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return existing, nil
}

func (s *VerdictStore) existingQuery(runIDs []string) (string, []interface{}, error) {
	query, args, err := s.builder.
		Select("run_id").
		From(s.table).
		Where(sq.Eq{"run_id": runIDs}).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build run id select: %w", err)
	}
	return query, args, nil
}

func (s *VerdictStore) saveQuery(verdict *domain.SentimentVerdict) (string, []interface{}, error) {
	if verdict.RunID == "" {
		return "", nil, fmt.Errorf("verdict has no run id")
	}
	payload, err := json.Marshal(verdict)
	if err != nil {
		return "", nil, fmt.Errorf("encode verdict: %w", err)
	}

	query, args, err := s.builder.
		Insert(s.table).
		Columns("run_id", "product", "status", "positive_pct", "negative_pct", "neutral_pct",
			"evidence_total", "payload", "generated_at").
		Values(verdict.RunID, verdict.Product, verdict.Status,
			verdict.Percentages.Positive, verdict.Percentages.Negative, verdict.Percentages.Neutral,
			verdict.Evidence.Sum(), string(payload), verdict.GeneratedAt).
		Suffix(`ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	positive_pct = EXCLUDED.positive_pct,
	negative_pct = EXCLUDED.negative_pct,
	neutral_pct = EXCLUDED.neutral_pct,
	evidence_total = EXCLUDED.evidence_total,
	payload = EXCLUDED.payload,
	generated_at = EXCLUDED.generated_at`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build verdict insert: %w", err)
	}
	return query, args, nil
}

// LatestVerdict returns the newest stored verdict for product.
func (s *VerdictStore) LatestVerdict(ctx context.Context, product string) (*domain.SentimentVerdict, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	query, args, err := s.latestQuery(product)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest verdict: %w", err)
	}

	var verdict domain.SentimentVerdict
	if err := json.Unmarshal(payload, &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}

func (s *VerdictStore) latestQuery(product string) (string, []interface{}, error) {
	query, args, err := s.builder.
		Select("payload").
		From(s.table).
		Where(sq.Eq{"product": product}).
		OrderBy("generated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build verdict select: %w", err)
	}
	return query, args, nil
}
