package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"4"`

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	ClassifierModel string `envconfig:"CLASSIFIER_MODEL" default:"gpt-3.5-turbo"`
	RewriterModel   string `envconfig:"REWRITER_MODEL" default:"gpt-4-turbo-preview"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDims   int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	ScrapingBeeAPIKey   string        `envconfig:"SCRAPINGBEE_API_KEY" default:""`
	ScrapingBeeEndpoint string        `envconfig:"SCRAPINGBEE_ENDPOINT" default:"https://app.scrapingbee.com/api/v1/"`
	FetchRenderJS       bool          `envconfig:"FETCH_RENDER_JS" default:"false"`
	FetchPremiumProxy   bool          `envconfig:"FETCH_PREMIUM_PROXY" default:"false"`
	FetchInterval       time.Duration `envconfig:"FETCH_INTERVAL" default:"1500ms"`
	FetchTimeout        time.Duration `envconfig:"FETCH_TIMEOUT" default:"60s"`
	FetchMaxRetries     int           `envconfig:"FETCH_MAX_RETRIES" default:"3"`

	DedupThreshold float64 `envconfig:"DEDUP_THRESHOLD" default:"0.92"`

	SourceName string `envconfig:"SOURCE_NAME" default:"Tokyo Cheapo"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EmbeddingDims < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("DEDUP_THRESHOLD must be in (0, 1], got %f", c.DedupThreshold)
	}
	if c.FetchInterval < 0 {
		return fmt.Errorf("FETCH_INTERVAL must be >= 0")
	}
	if c.FetchMaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be >= 0")
	}
	return nil
}

// ValidateCrawl checks the extra credentials the crawl command needs on top
// of Validate.
func (c *Config) ValidateCrawl() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(c.ScrapingBeeAPIKey) == "" {
		return fmt.Errorf("SCRAPINGBEE_API_KEY is required")
	}
	return nil
}
