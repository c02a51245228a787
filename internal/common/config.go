package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Logging     LoggingConfig  `toml:"logging"`
	Browser     BrowserConfig  `toml:"browser"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Website     WebsiteConfig  `toml:"website"`
	Output      OutputConfig   `toml:"output"`
	Delivery    DeliveryConfig `toml:"delivery"`
	Storage     StorageConfig  `toml:"storage"`
	Verify      VerifyConfig   `toml:"verify"`
	Batch       BatchConfig    `toml:"batch"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// BrowserConfig controls the shared rendering engine and its session pool
type BrowserConfig struct {
	Headless        bool          `toml:"headless"`
	DisableGPU      bool          `toml:"disable_gpu"`
	NoSandbox       bool          `toml:"no_sandbox"`
	UserAgent       string        `toml:"user_agent"`
	Sessions        int           `toml:"sessions"`         // Max concurrently open pages
	StartupTimeout  time.Duration `toml:"startup_timeout"`  // Engine startup test timeout
	ActionTimeout   time.Duration `toml:"action_timeout"`   // Per element wait/read timeout
	NavigateTimeout time.Duration `toml:"navigate_timeout"` // Page load bound for every navigation
	DetailTimeout   time.Duration `toml:"detail_timeout"`   // Whole-listing extraction budget, starts once a session is held
	MapsURL         string        `toml:"maps_url"`
}

// PipelineConfig contains run-level behaviour
type PipelineConfig struct {
	Concurrency         int           `toml:"concurrency"` // Max in-flight detail extractions
	DefaultSearchQuery  string        `toml:"default_search_query"`
	DefaultResultsCount int           `toml:"default_results_count"`
	DefaultTotalResults int           `toml:"default_total_results"` // Used by /scrape when total_results is absent
	ReviewRetry         string        `toml:"review_retry"`          // "replay" or "per_cohort"
	MaxScrollSteps      int           `toml:"max_scroll_steps"`
	ScrollSettle        time.Duration `toml:"scroll_settle"`
	SocialEnrichment    bool          `toml:"social_enrichment"`
}

// WebsiteConfig contains static website enrichment settings
type WebsiteConfig struct {
	UserAgent       string        `toml:"user_agent"`
	MaxAttempts     int           `toml:"max_attempts"`
	Backoff         time.Duration `toml:"backoff"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	SubPageTimeout  time.Duration `toml:"sub_page_timeout"`
	MaxContactPages int           `toml:"max_contact_pages"`
	MaxBodySize     int64         `toml:"max_body_size"`
	RequestsPerHost float64       `toml:"requests_per_host"` // Per-second pacing per host, 0 disables
}

type OutputConfig struct {
	Dir       string `toml:"dir"`
	PDFReport bool   `toml:"pdf_report"`
}

// DeliveryConfig describes the external endpoint that receives the run payload
type DeliveryConfig struct {
	Endpoint string        `toml:"endpoint"`
	APIKey   string        `toml:"api_key"`
	Timeout  time.Duration `toml:"timeout"`
}

type StorageConfig struct {
	Badger   BadgerConfig   `toml:"badger"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// PostgresConfig enables mirroring merged listings into a Postgres table
type PostgresConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
	Table   string `toml:"table"`
}

// S3Config enables uploading export files to a bucket
type S3Config struct {
	Enabled bool   `toml:"enabled"`
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`
	Region  string `toml:"region"`
}

// VerifyConfig controls MX verification of extracted emails
type VerifyConfig struct {
	MXCheck    bool          `toml:"mx_check"`
	Resolver   string        `toml:"resolver"` // host:port
	DNSTimeout time.Duration `toml:"dns_timeout"`
}

// BatchConfig drives recurring runs over a list of localities
type BatchConfig struct {
	Enabled     bool   `toml:"enabled"`
	Schedule    string `toml:"schedule"` // Cron expression, empty runs once at startup
	QueriesFile string `toml:"queries_file"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 5001,
			Host: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			Headless:        true,
			DisableGPU:      true,
			NoSandbox:       true,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Sessions:        10,
			StartupTimeout:  30 * time.Second,
			ActionTimeout:   5 * time.Second,
			NavigateTimeout: 60 * time.Second,
			DetailTimeout:   3 * time.Minute,
			MapsURL:         "https://www.google.com/maps",
		},
		Pipeline: PipelineConfig{
			Concurrency:         10,
			DefaultSearchQuery:  "barber in Berlin",
			DefaultResultsCount: 5,
			DefaultTotalResults: 1000,
			ReviewRetry:         "replay",
			MaxScrollSteps:      500,
			ScrollSettle:        2 * time.Second,
			SocialEnrichment:    true,
		},
		Website: WebsiteConfig{
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			MaxAttempts:     3,
			Backoff:         time.Second,
			RequestTimeout:  20 * time.Second,
			SubPageTimeout:  10 * time.Second,
			MaxContactPages: 2,
			MaxBodySize:     5 * 1024 * 1024,
			RequestsPerHost: 2,
		},
		Output: OutputConfig{
			Dir: "./data/exports",
		},
		Delivery: DeliveryConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/prospector.badger",
			},
			Postgres: PostgresConfig{
				Table: "business_listings",
			},
			S3: S3Config{
				Prefix: "exports/",
			},
		},
		Verify: VerifyConfig{
			Resolver:   "8.8.8.8:53",
			DNSTimeout: 5 * time.Second,
		},
		Batch: BatchConfig{
			QueriesFile: "./batch.yaml",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env never overrides variables already present in the process environment
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Bare names (PORT, HOST, DEFAULT_*) are accepted for compatibility with existing deployments;
// PROSPECTOR_* names win when both are set.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PROSPECTOR_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := firstEnv("PROSPECTOR_SERVER_PORT", "PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := firstEnv("PROSPECTOR_SERVER_HOST", "HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("PROSPECTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PROSPECTOR_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Browser configuration
	if headless := os.Getenv("PROSPECTOR_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}
	if sessions := os.Getenv("PROSPECTOR_BROWSER_SESSIONS"); sessions != "" {
		if s, err := strconv.Atoi(sessions); err == nil {
			config.Browser.Sessions = s
		}
	}

	// Pipeline configuration
	if concurrency := os.Getenv("PROSPECTOR_PIPELINE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Pipeline.Concurrency = c
		}
	}
	if query := firstEnv("PROSPECTOR_DEFAULT_SEARCH_QUERY", "DEFAULT_SEARCH_QUERY"); query != "" {
		config.Pipeline.DefaultSearchQuery = query
	}
	if count := firstEnv("PROSPECTOR_DEFAULT_RESULTS_COUNT", "DEFAULT_RESULTS_COUNT"); count != "" {
		if c, err := strconv.Atoi(count); err == nil {
			config.Pipeline.DefaultResultsCount = c
		}
	}
	if retry := os.Getenv("PROSPECTOR_REVIEW_RETRY"); retry != "" {
		config.Pipeline.ReviewRetry = retry
	}

	// Delivery configuration
	if endpoint := firstEnv("PROSPECTOR_DELIVERY_ENDPOINT", "DEFAULT_API_ENDPOINT"); endpoint != "" {
		config.Delivery.Endpoint = endpoint
	}
	if key := firstEnv("PROSPECTOR_DELIVERY_API_KEY", "DEFAULT_API_KEY"); key != "" {
		config.Delivery.APIKey = key
	}

	// Storage configuration
	if badgerPath := os.Getenv("PROSPECTOR_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if dsn := os.Getenv("PROSPECTOR_POSTGRES_DSN"); dsn != "" {
		config.Storage.Postgres.DSN = dsn
		config.Storage.Postgres.Enabled = true
	}
	if bucket := os.Getenv("PROSPECTOR_S3_BUCKET"); bucket != "" {
		config.Storage.S3.Bucket = bucket
		config.Storage.S3.Enabled = true
	}
	if outputDir := os.Getenv("PROSPECTOR_OUTPUT_DIR"); outputDir != "" {
		config.Output.Dir = outputDir
	}
}

// firstEnv returns the value of the first non-empty environment variable
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be greater than 0, got: %d", c.Pipeline.Concurrency)
	}
	if c.Browser.Sessions <= 0 {
		return fmt.Errorf("browser.sessions must be greater than 0, got: %d", c.Browser.Sessions)
	}
	switch c.Pipeline.ReviewRetry {
	case "replay", "per_cohort":
	default:
		return fmt.Errorf("pipeline.review_retry must be \"replay\" or \"per_cohort\", got: %q", c.Pipeline.ReviewRetry)
	}
	if c.Website.MaxAttempts <= 0 {
		return fmt.Errorf("website.max_attempts must be greater than 0, got: %d", c.Website.MaxAttempts)
	}
	if c.Batch.Enabled && c.Batch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Batch.Schedule); err != nil {
			return fmt.Errorf("invalid batch.schedule %q: %w", c.Batch.Schedule, err)
		}
	}
	if c.Storage.Postgres.Enabled && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when postgres is enabled")
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when s3 is enabled")
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
