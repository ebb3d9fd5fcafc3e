package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// CheckerConfig holds the settings for individual link checks.
type CheckerConfig struct {
	// Timeout applies to one HTTP request, not to the scan as a whole.
	Timeout         time.Duration
	UserAgent       string
	MaxRedirects    int
	VerifySSL       bool
	SlowThreshold   time.Duration
	RetryAttempts   uint
	ExcludedDomains []string
}

// ScanConfig holds the settings for the scan orchestrator.
type ScanConfig struct {
	// Concurrency bounds the number of simultaneous link checks.
	Concurrency int
	// BatchSize is how many links are dispatched between progress updates
	// and cooperative-stop checks.
	BatchSize int
	// Freshness is how recently a link must have been checked to be skipped
	// during a full scan. Product policy, not a discovered contract.
	Freshness time.Duration
	// StallWindow is how long a running scan may show no counter progress
	// before any reader marks it timed out.
	StallWindow time.Duration
}

// RecheckConfig holds the settings for the recurring broken-link recheck.
type RecheckConfig struct {
	CronSpec  string
	BatchSize int
}

// Config represents the application configuration
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// SiteOrigin is the site's own origin, used to resolve relative URLs and
	// to classify links as internal.
	SiteOrigin string

	// LinkDBConfig is a JSON provider configuration consumed by the store
	// factory.
	LinkDBConfig string

	// ContentDir is the directory served by the built-in page source. Empty
	// means no built-in source; sources are then wired programmatically.
	ContentDir string

	Checker CheckerConfig
	Scan    ScanConfig
	Recheck RecheckConfig

	// NotifyBrokenThreshold is the minimum broken-link count in a completed
	// scan before notifiers are invoked. Zero notifies on every scan.
	NotifyBrokenThreshold int

	RPSLimit float64
	RPSBurst int
}

// Load reads configuration from the environment, with optional .env support.
func Load(logger *zap.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SiteOrigin:   getEnv("SITE_ORIGIN", "http://localhost"),
		LinkDBConfig: getEnv("LINKDB_CONFIG", ""),
		ContentDir:   getEnv("CONTENT_DIR", ""),
		Checker: CheckerConfig{
			Timeout:         getDuration("CHECK_TIMEOUT", 10*time.Second),
			UserAgent:       getEnv("CHECK_USER_AGENT", "LinkWatch/1.0 (+https://github.com/shaibs3/LinkWatch)"),
			MaxRedirects:    getInt("CHECK_MAX_REDIRECTS", 10),
			VerifySSL:       getBool("CHECK_VERIFY_SSL", true),
			SlowThreshold:   getDuration("CHECK_SLOW_THRESHOLD", 5*time.Second),
			RetryAttempts:   uint(getInt("CHECK_RETRY_ATTEMPTS", 2)),
			ExcludedDomains: getList("CHECK_EXCLUDED_DOMAINS"),
		},
		Scan: ScanConfig{
			Concurrency: getInt("SCAN_CONCURRENCY", 5),
			BatchSize:   getInt("SCAN_BATCH_SIZE", 25),
			Freshness:   getDuration("SCAN_RECHECK_FRESHNESS", 24*time.Hour),
			StallWindow: getDuration("SCAN_STALL_WINDOW", 10*time.Minute),
		},
		Recheck: RecheckConfig{
			CronSpec:  getEnv("RECHECK_CRON", "@every 1h"),
			BatchSize: getInt("RECHECK_BATCH_SIZE", 50),
		},
		NotifyBrokenThreshold: getInt("NOTIFY_BROKEN_THRESHOLD", 1),
		RPSLimit:              getFloat("RPS_LIMIT", 50),
		RPSBurst:              getInt("RPS_BURST", 100),
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("site_origin", cfg.SiteOrigin),
		zap.Int("scan_concurrency", cfg.Scan.Concurrency),
		zap.Duration("stall_window", cfg.Scan.StallWindow),
	)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
