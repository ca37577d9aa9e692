package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// APIKeyEnv names the variable holding the data.gov.in API key. It is read
// on every request and never defaulted.
const APIKeyEnv = "DATA_GOV_API_KEY"

// MissingAPIKeyHint is returned to clients when the key is absent.
const MissingAPIKeyHint = "Set " + APIKeyEnv + " in the deployment environment (project settings > environment variables)"

type Config struct {
	// HTTP Server
	Port string

	// Upstream (data.gov.in)
	DataGovBaseURL    string
	DataGovResourceID string
	StateName         string
	UserAgent         string
	UpstreamTimeout   time.Duration
	PrimaryLimit      int
	FallbackLimit     int

	// Result cache, off unless CACHE_TTL is set
	CacheTTL  time.Duration
	CacheSize int

	// HTTP hardening
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// AMQP (query events, optional for the server)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Query log
	SQLiteDBPath string

	// Google Sheets query log (optional)
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DataGovBaseURL:    getEnv("DATA_GOV_BASE_URL", "https://api.data.gov.in"),
		DataGovResourceID: getEnv("DATA_GOV_RESOURCE_ID", "ee03643a-ee4c-48c2-ac30-9f2ff26ab722"),
		StateName:         getEnv("DATA_GOV_STATE", "CHHATTISGARH"),
		UserAgent:         getEnv("UPSTREAM_USER_AGENT", "mgnregs-proxy"),
		UpstreamTimeout:   getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		PrimaryLimit:      getEnvInt("PRIMARY_LIMIT", 100),
		FallbackLimit:     getEnvInt("FALLBACK_LIMIT", 5000),

		CacheTTL:  getEnvDuration("CACHE_TTL", 0),
		CacheSize: getEnvInt("CACHE_SIZE", 200),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "mgnregs"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "query_events"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/mgnregs.db"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Queries"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// APIKey reads the upstream API key from the process environment. It is
// called per request so rotations take effect without a restart. Surrounding
// whitespace is dropped, so a whitespace-only value counts as unset.
func APIKey() string {
	return strings.TrimSpace(os.Getenv(APIKeyEnv))
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate upstream
	if u, err := url.Parse(c.DataGovBaseURL); err != nil || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid data.gov.in base URL '%s'", c.DataGovBaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid data.gov.in base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}
	if c.DataGovResourceID == "" {
		errors = append(errors, "data.gov.in resource ID cannot be empty")
	}
	if c.StateName == "" {
		errors = append(errors, "state name cannot be empty")
	}
	if c.UpstreamTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid upstream timeout %v: must be at least 1 second", c.UpstreamTimeout))
	}
	if c.PrimaryLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid primary limit %d: must be at least 1", c.PrimaryLimit))
	}
	if c.FallbackLimit < c.PrimaryLimit {
		errors = append(errors, fmt.Sprintf("invalid fallback limit %d: must be at least the primary limit %d", c.FallbackLimit, c.PrimaryLimit))
	}

	// Validate cache
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.CacheTTL > 0 && c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1 when caching is enabled", c.CacheSize))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if _, ok := parseLevel(c.LogLevel); !ok {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateStorage checks that the SQLite path is usable, creating its
// directory if needed.
func (c *Config) ValidateStorage() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path cannot be empty")
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("cannot create SQLite database directory '%s': %w", dir, err)
			}
		}
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
