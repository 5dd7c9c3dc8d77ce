package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the top-level vigil configuration. Values load from a YAML
// file, then environment variables override (VIGIL_* via env tags).
type Config struct {
	// DBPath is the SQLite database file. Default: vigil.db.
	DBPath string `yaml:"db_path" env:"VIGIL_DB_PATH"`

	// Listen is the ops HTTP address (health and status). Default: :8089.
	Listen string `yaml:"listen" env:"VIGIL_LISTEN"`

	// Workers is the check worker pool size. Default: 4.
	Workers int `yaml:"workers" env:"VIGIL_WORKERS"`

	// NotFoundThreshold deactivates a target after this many consecutive
	// not-found checks. Default: 5.
	NotFoundThreshold int `yaml:"not_found_threshold" env:"VIGIL_NOT_FOUND_THRESHOLD"`

	Fetch     FetchConfig     `yaml:"fetch"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Browser   BrowserConfig   `yaml:"browser"`
	Notify    []NotifyConfig  `yaml:"notify"`
}

// FetchConfig controls the website fetcher.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" env:"VIGIL_FETCH_TIMEOUT"`
	MaxBytes  int64         `yaml:"max_bytes" env:"VIGIL_FETCH_MAX_BYTES"`
	UserAgent string        `yaml:"user_agent" env:"VIGIL_FETCH_USER_AGENT"`
}

// QueueConfig controls check job leasing and retries.
type QueueConfig struct {
	LeaseTTL     time.Duration `yaml:"lease_ttl" env:"VIGIL_QUEUE_LEASE_TTL"`
	PollInterval time.Duration `yaml:"poll_interval" env:"VIGIL_QUEUE_POLL_INTERVAL"`
	MaxRetries   int           `yaml:"max_retries" env:"VIGIL_QUEUE_MAX_RETRIES"`
	BackoffBase  time.Duration `yaml:"backoff_base" env:"VIGIL_QUEUE_BACKOFF_BASE"`
	BackoffMax   time.Duration `yaml:"backoff_max" env:"VIGIL_QUEUE_BACKOFF_MAX"`
	// Retention is how long terminal jobs are kept before cleanup.
	Retention time.Duration `yaml:"retention" env:"VIGIL_QUEUE_RETENTION"`
}

// SchedulerConfig controls the due-target scan.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval" env:"VIGIL_SCHEDULER_INTERVAL"`
}

// PipelineConfig controls change analysis and delivery.
type PipelineConfig struct {
	RedriveInterval time.Duration `yaml:"redrive_interval" env:"VIGIL_PIPELINE_REDRIVE_INTERVAL"`
	Attempts        uint          `yaml:"attempts" env:"VIGIL_PIPELINE_ATTEMPTS"`
}

// BrowserConfig controls the LinkedIn browser session. LinkedIn targets
// stay fetchable only while Remote or a local Chrome is available and the
// cookie file holds a live session.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome. Empty = launch
	// locally.
	Remote string `yaml:"remote" env:"VIGIL_BROWSER_REMOTE"`

	// CookieFile holds the exported LinkedIn session cookies.
	CookieFile string `yaml:"cookie_file" env:"VIGIL_BROWSER_COOKIE_FILE"`

	RecycleInterval time.Duration `yaml:"recycle_interval" env:"VIGIL_BROWSER_RECYCLE_INTERVAL"`
	NavTimeout      time.Duration `yaml:"nav_timeout" env:"VIGIL_BROWSER_NAV_TIMEOUT"`
}

// NotifyConfig defines one delivery backend.
type NotifyConfig struct {
	Type  string `yaml:"type"`  // stdout | webhook
	URL   string `yaml:"url"`   // for webhook
	Token string `yaml:"token"` // optional bearer token for webhook
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "vigil.db"
	}
	if c.Listen == "" {
		c.Listen = ":8089"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "vigil-monitor/1.0"
	}
	if c.Queue.LeaseTTL <= 0 {
		c.Queue.LeaseTTL = 2 * time.Minute
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = time.Second
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = 3
	}
	if c.Queue.BackoffBase <= 0 {
		c.Queue.BackoffBase = 30 * time.Second
	}
	if c.Queue.BackoffMax <= 0 {
		c.Queue.BackoffMax = 30 * time.Minute
	}
	if c.Queue.Retention <= 0 {
		c.Queue.Retention = 7 * 24 * time.Hour
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = 15 * time.Second
	}
	if c.Pipeline.RedriveInterval <= 0 {
		c.Pipeline.RedriveInterval = time.Minute
	}
	if c.Pipeline.Attempts == 0 {
		c.Pipeline.Attempts = 3
	}
	if c.NotFoundThreshold <= 0 {
		c.NotFoundThreshold = 5
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 45 * time.Second
	}
	if len(c.Notify) == 0 {
		c.Notify = []NotifyConfig{{Type: "stdout"}}
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfig reads a YAML config file, overlays environment variables, and
// applies defaults. An empty path skips the file and uses env + defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.defaults()
	return cfg, nil
}
