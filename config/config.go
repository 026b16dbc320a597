package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration. Values come from, in
// increasing priority: built-in defaults, a .env file, the environment
// and command-line flags.
type Config struct {
	Headless       bool
	DownloadDir    string
	CongressAPIKey string
	LogLevel       string
	ChromeBin      string

	MaxRetries        int
	RetryBaseDelay    time.Duration
	ActionTimeout     time.Duration
	MaxConcurrency    int
	RateLimitMs       int
	IncludeCandidates bool

	CSVOutputPath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

var defaults = map[string]any{
	"headless":                  true,
	"download_dir":              "./downloads",
	"congress_api_key":          "",
	"log_level":                 "info",
	"chrome_bin":                "",
	"max_retries":               3,
	"retry_base_delay_ms":       2000,
	"action_timeout_ms":         30000,
	"max_concurrency":           3,
	"rate_limit_ms":             500,
	"include_candidate_reports": false,
	"csv_output_path":           "./output/disclosures.csv",
	"postgres_host":             "localhost",
	"postgres_port":             "5432",
	"postgres_user":             "capitolgains",
	"postgres_password":         "capitolgains",
	"postgres_db":               "disclosures",
	"postgres_sslmode":          "disable",
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"headless":           "headless",
	"download-dir":       "download_dir",
	"log-level":          "log_level",
	"chrome-bin":         "chrome_bin",
	"max-retries":        "max_retries",
	"max-concurrency":    "max_concurrency",
	"include-candidates": "include_candidate_reports",
}

// RegisterFlags adds the flags that can override configuration to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Bool("headless", defaults["headless"].(bool), "run the browser without a window")
	fs.String("download-dir", defaults["download_dir"].(string), "directory documents are saved to")
	fs.String("log-level", defaults["log_level"].(string), "log verbosity (debug, info, warn, error)")
	fs.String("chrome-bin", "", "path to a Chrome or Chromium binary")
	fs.Int("max-retries", defaults["max_retries"].(int), "attempts per navigation pass")
	fs.Int("max-concurrency", defaults["max_concurrency"].(int), "parallel document downloads")
	fs.Bool("include-candidates", false, "keep Senate candidate reports in results")
}

// Load reads the optional .env file, then the environment, then any flags
// registered on flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Headless:       v.GetBool("headless"),
		DownloadDir:    v.GetString("download_dir"),
		CongressAPIKey: v.GetString("congress_api_key"),
		LogLevel:       v.GetString("log_level"),
		ChromeBin:      v.GetString("chrome_bin"),

		MaxRetries:        v.GetInt("max_retries"),
		RetryBaseDelay:    time.Duration(v.GetInt("retry_base_delay_ms")) * time.Millisecond,
		ActionTimeout:     time.Duration(v.GetInt("action_timeout_ms")) * time.Millisecond,
		MaxConcurrency:    v.GetInt("max_concurrency"),
		RateLimitMs:       v.GetInt("rate_limit_ms"),
		IncludeCandidates: v.GetBool("include_candidate_reports"),

		CSVOutputPath: v.GetString("csv_output_path"),

		PostgresHost:     v.GetString("postgres_host"),
		PostgresPort:     v.GetString("postgres_port"),
		PostgresUser:     v.GetString("postgres_user"),
		PostgresPassword: v.GetString("postgres_password"),
		PostgresDB:       v.GetString("postgres_db"),
		PostgresSSLMode:  v.GetString("postgres_sslmode"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxRetries < 1:
		return fmt.Errorf("config: MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	case c.RetryBaseDelay < 0:
		return fmt.Errorf("config: RETRY_BASE_DELAY_MS must not be negative")
	case c.ActionTimeout <= 0:
		return fmt.Errorf("config: ACTION_TIMEOUT_MS must be positive")
	case c.MaxConcurrency < 1:
		return fmt.Errorf("config: MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	case c.DownloadDir == "":
		return fmt.Errorf("config: DOWNLOAD_DIR must not be empty")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}
