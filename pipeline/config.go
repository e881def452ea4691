package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "https://www.sec.gov/Archives/"
	DefaultUserAgent   = "aumrank-crawler admin@example.com"
	DefaultAccept      = "text/html,application/xhtml+xml,application/xml"
	DefaultRatePerSec  = 9
	DefaultConcurrency = 20
	DefaultTimeout     = 10 * time.Second
	DefaultProgress    = 50
	DefaultSampleChars = 1000
	DefaultMaxBody     = 32 << 20
)

const (
	RateModeWindow = "window"
	RateModePaced  = "paced"
)

type Config struct {
	Input string `yaml:"input"`

	Fetch struct {
		BaseURL      string        `yaml:"base_url"`
		UserAgent    string        `yaml:"user_agent"`
		Accept       string        `yaml:"accept"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
	} `yaml:"fetch"`

	Rate struct {
		PerSecond int    `yaml:"per_second"`
		Mode      string `yaml:"mode"`
	} `yaml:"rate"`

	Concurrency   int `yaml:"concurrency"`
	ProgressEvery int `yaml:"progress_every"`

	Extract struct {
		Rules []RuleConfig `yaml:"rules"`
	} `yaml:"extract"`

	Output struct {
		RankedCSV   string `yaml:"ranked_csv"`
		FailedCSV   string `yaml:"failed_csv"`
		Sample      string `yaml:"sample"`
		SampleChars int    `yaml:"sample_chars"`
		XLSX        string `yaml:"xlsx"`
	} `yaml:"output"`

	DatabaseURL string `yaml:"database_url"`
	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

// RuleConfig describes one extraction rule in the settings file.
type RuleConfig struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Source  string `yaml:"source"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.Input = "filtered_output.txt"
	cfg.Fetch.BaseURL = DefaultBaseURL
	cfg.Fetch.UserAgent = DefaultUserAgent
	cfg.Fetch.Accept = DefaultAccept
	cfg.Fetch.Timeout = DefaultTimeout
	cfg.Fetch.MaxBodyBytes = DefaultMaxBody
	cfg.Rate.PerSecond = DefaultRatePerSec
	cfg.Rate.Mode = RateModeWindow
	cfg.Concurrency = DefaultConcurrency
	cfg.ProgressEvery = DefaultProgress
	cfg.Output.RankedCSV = "aum_ranked.csv"
	cfg.Output.FailedCSV = "aum_failed.csv"
	cfg.Output.Sample = "sample_filing.txt"
	cfg.Output.SampleChars = DefaultSampleChars
	return cfg
}

// LoadConfig layers the settings file (optional, path may be empty) and the
// environment over the defaults.
func LoadConfig(path string) (Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Rate.PerSecond < 1 {
		errs = append(errs, fmt.Errorf("rate.per_second must be >= 1, got %d", c.Rate.PerSecond))
	}
	if c.Rate.Mode != RateModeWindow && c.Rate.Mode != RateModePaced {
		errs = append(errs, fmt.Errorf("rate.mode must be %q or %q, got %q", RateModeWindow, RateModePaced, c.Rate.Mode))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.ProgressEvery < 1 {
		errs = append(errs, fmt.Errorf("progress_every must be >= 1, got %d", c.ProgressEvery))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive"))
	}
	if c.Fetch.BaseURL == "" {
		errs = append(errs, errors.New("fetch.base_url is required"))
	}
	if c.Output.RankedCSV == "" || c.Output.FailedCSV == "" {
		errs = append(errs, errors.New("output.ranked_csv and output.failed_csv are required"))
	}
	return errors.Join(errs...)
}

func loadDotEnv() {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func applyEnv(cfg *Config) error {
	cfg.Fetch.BaseURL = getEnv("AUM_BASE_URL", cfg.Fetch.BaseURL)
	cfg.Fetch.UserAgent = getEnv("AUM_USER_AGENT", cfg.Fetch.UserAgent)
	cfg.DatabaseURL = getEnv("DB_URL", cfg.DatabaseURL)
	cfg.MetricsAddr = getEnv("AUM_METRICS_ADDR", cfg.MetricsAddr)

	if v := getEnv("AUM_RATE_PER_SECOND", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUM_RATE_PER_SECOND: %w", err)
		}
		cfg.Rate.PerSecond = n
	}
	if v := getEnv("AUM_CONCURRENCY", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUM_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}
	if v := getEnv("AUM_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AUM_TIMEOUT: %w", err)
		}
		cfg.Fetch.Timeout = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
