package db

import (
	"context"
	"encoding/json"
	"fmt"

	"market-sentiment/pkg/domain"

	"github.com/supabase-community/postgrest-go"
)

// SupabaseVerdictStore saves verdicts through the Supabase REST API. It is used
// when the client only has a project URL and key and no direct database access.
type SupabaseVerdictStore struct {
	client *SupabaseClient
	table  string
}

// NewSupabaseVerdictStore creates a REST-backed store. An empty table uses DefaultVerdictTable.
func NewSupabaseVerdictStore(client *SupabaseClient, table string) *SupabaseVerdictStore {
	if table == "" {
		table = DefaultVerdictTable
	}
	return &SupabaseVerdictStore{client: client, table: table}
}

type verdictRow struct {
	RunID         string          `json:"run_id"`
	Product       string          `json:"product"`
	Status        string          `json:"status"`
	PositivePct   int             `json:"positive_pct"`
	NegativePct   int             `json:"negative_pct"`
	NeutralPct    int             `json:"neutral_pct"`
	EvidenceTotal int             `json:"evidence_total"`
	Payload       json.RawMessage `json:"payload"`
	GeneratedAt   string          `json:"generated_at"`
}

func newVerdictRow(verdict *domain.SentimentVerdict) (verdictRow, error) {
	if verdict.RunID == "" {
		return verdictRow{}, fmt.Errorf("verdict has no run id")
	}
	payload, err := json.Marshal(verdict)
	if err != nil {
		return verdictRow{}, fmt.Errorf("encode verdict: %w", err)
	}
	return verdictRow{
		RunID:         verdict.RunID,
		Product:       verdict.Product,
		Status:        verdict.Status,
		PositivePct:   verdict.Percentages.Positive,
		NegativePct:   verdict.Percentages.Negative,
		NeutralPct:    verdict.Percentages.Neutral,
		EvidenceTotal: verdict.Evidence.Sum(),
		Payload:       payload,
		GeneratedAt:   verdict.GeneratedAt.UTC().Format("2006-01-02T15:04:05.999999Z07:00"),
	}, nil
}

// SaveVerdict upserts verdict by run id.
func (s *SupabaseVerdictStore) SaveVerdict(_ context.Context, verdict *domain.SentimentVerdict) error {
	if s.client == nil || s.client.SDK() == nil {
		return fmt.Errorf("supabase SDK not initialized")
	}
	row, err := newVerdictRow(verdict)
	if err != nil {
		return err
	}
	if _, _, err := s.client.SDK().From(s.table).Insert(row, true, "run_id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("supabase insert verdict: %w", err)
	}
	return nil
}

// LatestVerdict returns the newest stored verdict for product.
func (s *SupabaseVerdictStore) LatestVerdict(_ context.Context, product string) (*domain.SentimentVerdict, error) {
	if s.client == nil || s.client.SDK() == nil {
		return nil, fmt.Errorf("supabase SDK not initialized")
	}
	body, _, err := s.client.SDK().From(s.table).
		Select("payload", "", false).
		Eq("product", product).
		Order("generated_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("supabase select verdict: %w", err)
	}
	return decodeVerdictRows(body)
}

func decodeVerdictRows(body []byte) (*domain.SentimentVerdict, error) {
	var rows []struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode verdict rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	var verdict domain.SentimentVerdict
	if err := json.Unmarshal(rows[0].Payload, &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}
