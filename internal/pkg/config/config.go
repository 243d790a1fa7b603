package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Session   SessionConfig   `yaml:"session"`
	Retry     RetryConfig     `yaml:"retry"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Alert     AlertConfig     `yaml:"alert"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type ScraperConfig struct {
	// BaseURL is the match-centre site root, e.g. "https://www.whoscored.com".
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	// Workers caps concurrent per-match pipelines. Kept deliberately low:
	// the source adapts its defenses to request bursts.
	Workers int `yaml:"workers"`
	// RequestsPerSecond is the global outbound ceiling across all workers.
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Headers           map[string]string `yaml:"headers"`
	// Adapters lists enabled source adapters in priority order.
	Adapters []string `yaml:"adapters"`
	// ExtractorBaseURL points at the third-party extractor service used by
	// the lowest-priority adapter.
	ExtractorBaseURL string `yaml:"extractor_base_url"`
}

type SessionConfig struct {
	// ProbeURL is fetched to validate a capability; it must contain Marker
	// in its body when the session is healthy.
	ProbeURL string `yaml:"probe_url"`
	Marker   string `yaml:"marker"`
	// CapabilityTTL bounds how long an acquired capability is trusted
	// without a fresh probe.
	CapabilityTTL time.Duration `yaml:"capability_ttl"`
	// CacheFile persists cookies between runs so a still-valid capability
	// skips browser escalation at start-up. Empty disables the cache.
	CacheFile      string        `yaml:"cache_file"`
	BrowserTimeout time.Duration `yaml:"browser_timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type ReconcileConfig struct {
	// FillStrategy is "forward_fill" (default) or "leave_blank".
	FillStrategy string `yaml:"fill_strategy"`
	// GapTolerance is the longest run of missing minutes that gets filled;
	// longer gaps are flagged instead.
	GapTolerance int `yaml:"gap_tolerance"`
	// PossessionEpsilon is the allowed |home+away-100| deviation.
	PossessionEpsilon float64 `yaml:"possession_epsilon"`
}

type AlertConfig struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   int64  `yaml:"telegram_chat_id"`
}

type DiscoveryConfig struct {
	LeagueURL    string        `yaml:"league_url"`
	PastMonths   int           `yaml:"past_months"`
	FutureMonths int           `yaml:"future_months"`
	PageTimeout  time.Duration `yaml:"page_timeout"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Scraper.BaseURL == "" {
		c.Scraper.BaseURL = "https://www.whoscored.com"
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.Scraper.Timeout <= 0 {
		c.Scraper.Timeout = 30 * time.Second
	}
	if c.Scraper.Workers <= 0 {
		c.Scraper.Workers = 3
	}
	if c.Scraper.RequestsPerSecond <= 0 {
		c.Scraper.RequestsPerSecond = 2
	}
	if len(c.Scraper.Adapters) == 0 {
		c.Scraper.Adapters = []string{"statsapi", "matchcentre", "extractor"}
	}
	if c.Session.ProbeURL == "" {
		c.Session.ProbeURL = c.Scraper.BaseURL + "/"
	}
	if c.Session.Marker == "" {
		c.Session.Marker = "layout-wrapper"
	}
	if c.Session.CapabilityTTL <= 0 {
		c.Session.CapabilityTTL = 30 * time.Minute
	}
	if c.Session.BrowserTimeout <= 0 {
		c.Session.BrowserTimeout = 90 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Reconcile.FillStrategy == "" {
		c.Reconcile.FillStrategy = "forward_fill"
	}
	if c.Reconcile.GapTolerance <= 0 {
		c.Reconcile.GapTolerance = 3
	}
	if c.Reconcile.PossessionEpsilon <= 0 {
		c.Reconcile.PossessionEpsilon = 5.0
	}
	if c.Discovery.PastMonths < 0 {
		c.Discovery.PastMonths = 0
	}
	if c.Discovery.PageTimeout <= 0 {
		c.Discovery.PageTimeout = 20 * time.Second
	}
}
