// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Resinat/Paygate/internal/paywall"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir string

	// Network
	ListenAddress string

	// Ports
	Port            int
	APIMaxBodyBytes int

	// Auth
	AdminToken string

	// Paywall loading
	PaywallAPIURL                string
	PaywallAPIKey                string
	PaywallFetchTimeout          time.Duration
	StaticPaywallsFile           string
	StaticPaywallsReloadSchedule string
	ResponseCacheSize            int
	ResponseCacheTTL             time.Duration
	InflightCancelPolicy         paywall.CancelPolicy

	// Tracking
	TrackingSinkTimeout time.Duration

	// Event log
	EventLogQueueSize      int
	EventLogFlushBatchSize int
	EventLogFlushInterval  time.Duration
	EventLogRetention      time.Duration

	// Redis stream sink (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	// Tracing
	OTelEnabled  bool
	OTelEndpoint string

	// Metrics
	MetricLatencyBinWidthMS    int
	MetricLatencyBinOverflowMS int
	MetricRealtimeCapacity     int

	// Logging
	LogLevel string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories / network ---
	cfg.StateDir = envStr("PAYGATE_STATE_DIR", "/var/lib/paygate")
	cfg.ListenAddress = strings.TrimSpace(envStr("PAYGATE_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("PAYGATE_PORT", 2380, &errs)
	cfg.APIMaxBodyBytes = envInt("PAYGATE_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Auth (must be defined; empty means auth disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("PAYGATE_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Paywall loading ---
	cfg.PaywallAPIURL = strings.TrimSpace(os.Getenv("PAYGATE_PAYWALL_API_URL"))
	cfg.PaywallAPIKey = os.Getenv("PAYGATE_PAYWALL_API_KEY")
	cfg.PaywallFetchTimeout = envDuration("PAYGATE_PAYWALL_FETCH_TIMEOUT", 30*time.Second, &errs)
	cfg.StaticPaywallsFile = strings.TrimSpace(os.Getenv("PAYGATE_STATIC_PAYWALLS_FILE"))
	cfg.StaticPaywallsReloadSchedule = envStr("PAYGATE_STATIC_PAYWALLS_RELOAD_SCHEDULE", "*/5 * * * *")
	cfg.ResponseCacheSize = envInt("PAYGATE_RESPONSE_CACHE_SIZE", 1024, &errs)
	cfg.ResponseCacheTTL = envDuration("PAYGATE_RESPONSE_CACHE_TTL", 0, &errs)
	rawPolicy := envStr("PAYGATE_INFLIGHT_CANCEL_POLICY", paywall.CancelAbandon.String())
	policy, err := paywall.ParseCancelPolicy(rawPolicy)
	if err != nil {
		errs = append(errs, fmt.Sprintf(
			"PAYGATE_INFLIGHT_CANCEL_POLICY: invalid value %q (allowed: %s, %s)",
			rawPolicy, paywall.CancelAbandon, paywall.CancelUnreferenced,
		))
	}
	cfg.InflightCancelPolicy = policy

	// --- Tracking ---
	cfg.TrackingSinkTimeout = envDuration("PAYGATE_TRACKING_SINK_TIMEOUT", 2*time.Second, &errs)

	// --- Event log ---
	cfg.EventLogQueueSize = envInt("PAYGATE_EVENT_LOG_QUEUE_SIZE", 8192, &errs)
	cfg.EventLogFlushBatchSize = envInt("PAYGATE_EVENT_LOG_FLUSH_BATCH_SIZE", 1024, &errs)
	cfg.EventLogFlushInterval = envDuration("PAYGATE_EVENT_LOG_FLUSH_INTERVAL", 5*time.Second, &errs)
	cfg.EventLogRetention = envDuration("PAYGATE_EVENT_LOG_RETENTION", 30*24*time.Hour, &errs)

	// --- Redis ---
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("PAYGATE_REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("PAYGATE_REDIS_PASSWORD")
	cfg.RedisDB = envInt("PAYGATE_REDIS_DB", 0, &errs)
	cfg.RedisStream = envStr("PAYGATE_REDIS_STREAM", "paygate:events")

	// --- Tracing ---
	cfg.OTelEndpoint = strings.TrimSpace(os.Getenv("PAYGATE_OTEL_ENDPOINT"))
	cfg.OTelEnabled = envBool("PAYGATE_OTEL_ENABLED", cfg.OTelEndpoint != "", &errs)

	// --- Metrics ---
	cfg.MetricLatencyBinWidthMS = envInt("PAYGATE_METRIC_LATENCY_BIN_WIDTH_MS", 25, &errs)
	cfg.MetricLatencyBinOverflowMS = envInt("PAYGATE_METRIC_LATENCY_BIN_OVERFLOW_MS", 2000, &errs)
	cfg.MetricRealtimeCapacity = envInt("PAYGATE_METRIC_REALTIME_CAPACITY", 600, &errs)

	// --- Logging ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(envStr("PAYGATE_LOG_LEVEL", "info")))

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "PAYGATE_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "PAYGATE_LISTEN_ADDRESS must not be empty")
	}
	validatePort("PAYGATE_PORT", cfg.Port, &errs)
	validatePositive("PAYGATE_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

	if cfg.PaywallAPIURL == "" {
		errs = append(errs, "PAYGATE_PAYWALL_API_URL is required")
	} else if err := validateHTTPURL(cfg.PaywallAPIURL); err != nil {
		errs = append(errs, fmt.Sprintf("PAYGATE_PAYWALL_API_URL: %v", err))
	}
	if cfg.PaywallFetchTimeout <= 0 {
		errs = append(errs, "PAYGATE_PAYWALL_FETCH_TIMEOUT must be positive")
	}
	if cfg.StaticPaywallsFile != "" {
		if _, err := cron.ParseStandard(cfg.StaticPaywallsReloadSchedule); err != nil {
			errs = append(errs, fmt.Sprintf(
				"PAYGATE_STATIC_PAYWALLS_RELOAD_SCHEDULE: invalid cron expression %q: %v",
				cfg.StaticPaywallsReloadSchedule, err,
			))
		}
	}
	if cfg.ResponseCacheSize < 0 {
		errs = append(errs, fmt.Sprintf("PAYGATE_RESPONSE_CACHE_SIZE: must not be negative, got %d", cfg.ResponseCacheSize))
	}
	if cfg.ResponseCacheTTL < 0 {
		errs = append(errs, "PAYGATE_RESPONSE_CACHE_TTL must not be negative")
	}
	if cfg.TrackingSinkTimeout < 0 {
		errs = append(errs, "PAYGATE_TRACKING_SINK_TIMEOUT must not be negative")
	}

	validatePositive("PAYGATE_EVENT_LOG_QUEUE_SIZE", cfg.EventLogQueueSize, &errs)
	validatePositive("PAYGATE_EVENT_LOG_FLUSH_BATCH_SIZE", cfg.EventLogFlushBatchSize, &errs)
	if cfg.EventLogFlushInterval <= 0 {
		errs = append(errs, "PAYGATE_EVENT_LOG_FLUSH_INTERVAL must be positive")
	}
	if cfg.EventLogRetention < 0 {
		errs = append(errs, "PAYGATE_EVENT_LOG_RETENTION must not be negative")
	}
	// Queue size must be >= 2x batch size
	if cfg.EventLogQueueSize < 2*cfg.EventLogFlushBatchSize {
		errs = append(errs, "PAYGATE_EVENT_LOG_QUEUE_SIZE must be at least 2x PAYGATE_EVENT_LOG_FLUSH_BATCH_SIZE")
	}

	if cfg.RedisDB < 0 {
		errs = append(errs, fmt.Sprintf("PAYGATE_REDIS_DB: must not be negative, got %d", cfg.RedisDB))
	}
	if cfg.RedisAddr != "" && strings.TrimSpace(cfg.RedisStream) == "" {
		errs = append(errs, "PAYGATE_REDIS_STREAM must not be empty when PAYGATE_REDIS_ADDR is set")
	}

	validatePositive("PAYGATE_METRIC_LATENCY_BIN_WIDTH_MS", cfg.MetricLatencyBinWidthMS, &errs)
	validatePositive("PAYGATE_METRIC_LATENCY_BIN_OVERFLOW_MS", cfg.MetricLatencyBinOverflowMS, &errs)
	validatePositive("PAYGATE_METRIC_REALTIME_CAPACITY", cfg.MetricRealtimeCapacity, &errs)

	if cfg.LogLevel != "info" && cfg.LogLevel != "debug" {
		errs = append(errs, fmt.Sprintf("PAYGATE_LOG_LEVEL: invalid value %q (allowed: info, debug)", cfg.LogLevel))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
