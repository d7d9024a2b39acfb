package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseConfig selects how verdicts reach a Supabase project. With a
// password (or full ConnectionString) the client opens the project's
// Postgres directly; with only URL and key it talks to the REST API.
type SupabaseConfig struct {
	// ConnectionString overrides the DSN derived from SupabaseURL and Password.
	ConnectionString string
	// SupabaseURL looks like "https://<project-ref>.supabase.co".
	SupabaseURL string
	// SupabaseKey is the anon or service_role API key.
	SupabaseKey string
	// Password is the database password, not the API key.
	Password string

	MaxOpenConns int
	MaxIdleConns int
	ConnMaxIdle  time.Duration
	ConnMaxLife  time.Duration
}

// SupabaseClient holds a direct Postgres handle, a REST SDK client, or both.
type SupabaseClient struct {
	db  *sql.DB
	sdk *supabase.Client
	cfg SupabaseConfig
}

var errNoSupabaseCredentials = errors.New("supabase needs a connection string, a password, or URL plus key")

func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// Connect sets up whichever transports the config allows. A failing direct
// connection is tolerated when the REST client is available.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.SupabaseURL != "" && c.cfg.SupabaseKey != "" {
		sdk, err := supabase.NewClient(c.cfg.SupabaseURL, c.cfg.SupabaseKey, nil)
		if err != nil {
			return fmt.Errorf("initialize supabase SDK: %w", err)
		}
		c.sdk = sdk
	}

	dsn, err := c.directDSN()
	if err == nil && dsn != "" {
		err = c.openDirect(ctx, dsn)
	}
	if err != nil && c.sdk == nil {
		return err
	}

	if c.db == nil && c.sdk == nil {
		return errNoSupabaseCredentials
	}
	return nil
}

// directDSN returns "" when no direct connection was configured.
func (c *SupabaseClient) directDSN() (string, error) {
	dsn := c.cfg.ConnectionString
	if dsn == "" {
		if c.cfg.Password == "" {
			return "", nil
		}
		built, err := c.buildConnectionString()
		if err != nil {
			return "", fmt.Errorf("build connection string: %w", err)
		}
		dsn = built
	}
	// Supabase's pooler rejects named prepared statements shared across sessions.
	dsn = c.addConnectionParam(dsn, "statement_cache_capacity", "0")
	dsn = c.addConnectionParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn, nil
}

func (c *SupabaseClient) openDirect(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open supabase postgres: %w", err)
	}
	applyPool(db, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns, c.cfg.ConnMaxIdle, c.cfg.ConnMaxLife)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping supabase postgres: %w", err)
	}
	c.db = db
	return nil
}

func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB is nil in REST-only mode.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

func (c *SupabaseClient) HasDirectDB() bool {
	return c.db != nil
}

// SDK is nil unless both URL and key were configured.
func (c *SupabaseClient) SDK() *supabase.Client {
	return c.sdk
}

func (c *SupabaseClient) buildConnectionString() (string, error) {
	if c.cfg.SupabaseURL == "" {
		return "", fmt.Errorf("supabase URL is required when connection string is not provided")
	}
	if c.cfg.Password == "" {
		return "", fmt.Errorf("supabase password is required when connection string is not provided")
	}

	u, err := url.Parse(c.cfg.SupabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}
	ref, _, ok := strings.Cut(u.Host, ".")
	if !ok || ref == "" {
		return "", fmt.Errorf("invalid supabase URL %q: expected <project-ref>.supabase.co", c.cfg.SupabaseURL)
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require&statement_cache_capacity=0",
		url.QueryEscape(c.cfg.Password), ref), nil
}

// addConnectionParam appends key=value unless key is already set.
func (c *SupabaseClient) addConnectionParam(dsn, key, value string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + value
}
