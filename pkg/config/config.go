package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"market-sentiment/pkg/httpclient"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "SENTIMENT_CONFIG"
	userAgentEnv      = "SCRAPER_USER_AGENT"
	cacheDirEnv       = "SCRAPER_CACHE_DIR"
	timeoutSecsEnv    = "SCRAPER_TIMEOUT_SECS"
	respectRobotsEnv  = "SCRAPER_RESPECT_ROBOTS"
	serperAPIKeyEnv   = "SERPER_API_KEY"
	mongoURIEnv       = "MONGO_URI"
	postgresDSNEnv    = "POSTGRES_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	supabaseURLEnv    = "SUPABASE_URL"
	supabaseKeyEnv    = "SUPABASE_KEY"
	logLevelEnv       = "LOG_LEVEL"
	defaultCacheDir   = ".cache/pages"
	defaultMongoDB    = "sentiment"
	defaultRunTimeout = 3 * time.Minute
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheDisk   = "disk"
	CacheRedis  = "redis"
	CacheS3     = "s3"
)

// Discovery providers.
const (
	ProviderSerper     = "serper"
	ProviderDuckDuckGo = "duckduckgo"
	ProviderFeed       = "feed"
	ProviderSitemap    = "sitemap"
)

// Config holds every setting the CLIs need.
type Config struct {
	Scraper   ScraperConfig   `yaml:"scraper"`
	Cache     CacheConfig     `yaml:"cache"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ScraperConfig controls outbound page fetches.
type ScraperConfig struct {
	UserAgent     string        `yaml:"user_agent"`
	TimeoutSecs   int           `yaml:"timeout_secs"`
	RespectRobots bool          `yaml:"respect_robots"`
	Attempts      int           `yaml:"attempts"`
	HostDelay     time.Duration `yaml:"host_delay"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
}

// Timeout returns the per-request timeout.
func (s ScraperConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// CacheConfig selects and configures the page cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	// TTL of zero keeps entries forever.
	TTL   time.Duration `yaml:"ttl"`
	Redis RedisConfig   `yaml:"redis"`
	S3    S3Config      `yaml:"s3"`
}

// RedisConfig describes the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// S3Config describes the S3-compatible cache backend.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// DiscoveryConfig controls how candidate URLs are found.
type DiscoveryConfig struct {
	// Providers are tried in order; the first that returns results wins.
	Providers     []string `yaml:"providers"`
	SerperAPIKey  string   `yaml:"serper_api_key"`
	SerperURL     string   `yaml:"serper_url"`
	DuckDuckGoURL string   `yaml:"duckduckgo_url"`
	FeedURL       string   `yaml:"feed_url"`
	// Sitemaps of review sites searched by the sitemap provider.
	Sitemaps      []string `yaml:"sitemaps"`
	Queries       []string `yaml:"queries"`
	MaxSources    int      `yaml:"max_sources"`
	BlockedHosts  []string `yaml:"blocked_hosts"`
}

// PipelineConfig controls the worker pool.
type PipelineConfig struct {
	Workers    int           `yaml:"workers"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// StorageConfig enables optional persistence. Empty values disable a store.
type StorageConfig struct {
	MongoURI         string `yaml:"mongo_uri"`
	MongoDatabase    string `yaml:"mongo_database"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	VerdictTable     string `yaml:"verdict_table"`
	SupabaseURL      string `yaml:"supabase_url"`
	SupabaseKey      string `yaml:"supabase_key"`
	SupabasePassword string `yaml:"supabase_password"`
}

// LogConfig holds the log level name.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig sets the address /metrics is served on. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Scraper: ScraperConfig{
			UserAgent:     httpclient.DefaultBrowserUserAgent,
			TimeoutSecs:   20,
			RespectRobots: true,
			Attempts:      3,
			HostDelay:     500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend: CacheDisk,
			Dir:     defaultCacheDir,
		},
		Discovery: DiscoveryConfig{
			Providers:  []string{ProviderSerper, ProviderDuckDuckGo, ProviderFeed},
			Queries:    []string{"%s review", "%s customer reviews"},
			MaxSources: 10,
		},
		Pipeline: PipelineConfig{
			Workers:    6,
			RunTimeout: defaultRunTimeout,
		},
		Storage: StorageConfig{
			MongoDatabase: defaultMongoDB,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or at
// $SENTIMENT_CONFIG when path is empty) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(userAgentEnv); v != "" {
		c.Scraper.UserAgent = v
	}
	if v := os.Getenv(cacheDirEnv); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv(timeoutSecsEnv); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", timeoutSecsEnv, err)
		}
		c.Scraper.TimeoutSecs = secs
	}
	if v := os.Getenv(respectRobotsEnv); v != "" {
		respect, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", respectRobotsEnv, err)
		}
		c.Scraper.RespectRobots = respect
	}
	if v := os.Getenv(serperAPIKeyEnv); v != "" {
		c.Discovery.SerperAPIKey = v
	}
	if v := os.Getenv(mongoURIEnv); v != "" {
		c.Storage.MongoURI = v
	}
	if v := os.Getenv(postgresDSNEnv); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv(supabaseURLEnv); v != "" {
		c.Storage.SupabaseURL = v
	}
	if v := os.Getenv(supabaseKeyEnv); v != "" {
		c.Storage.SupabaseKey = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if c.Scraper.TimeoutSecs <= 0 {
		return fmt.Errorf("scraper.timeout_secs must be positive, got %d", c.Scraper.TimeoutSecs)
	}
	if c.Scraper.Attempts < 1 {
		return fmt.Errorf("scraper.attempts must be at least 1, got %d", c.Scraper.Attempts)
	}
	if c.Scraper.HostDelay < 0 {
		return fmt.Errorf("scraper.host_delay must not be negative")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.RunTimeout < 0 {
		return fmt.Errorf("pipeline.run_timeout must not be negative")
	}
	if c.Discovery.MaxSources < 1 {
		return fmt.Errorf("discovery.max_sources must be at least 1, got %d", c.Discovery.MaxSources)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	switch strings.ToLower(c.Cache.Backend) {
	case CacheNone, CacheMemory:
	case CacheDisk:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required for the disk backend")
		}
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	case CacheS3:
		if c.Cache.S3.Bucket == "" {
			return fmt.Errorf("cache.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	for _, p := range c.Discovery.Providers {
		switch p {
		case ProviderSerper, ProviderDuckDuckGo, ProviderFeed:
		case ProviderSitemap:
			if len(c.Discovery.Sitemaps) == 0 {
				return fmt.Errorf("discovery.sitemaps is required for the sitemap provider")
			}
		default:
			return fmt.Errorf("unknown discovery provider %q", p)
		}
	}
	return nil
}
