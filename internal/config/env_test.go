package config

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Resinat/Paygate/internal/paywall"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// requiredEnvs returns the minimum env vars needed for LoadEnvConfig to succeed.
func requiredEnvs() map[string]string {
	return map[string]string{
		"PAYGATE_ADMIN_TOKEN":     "admin-secret",
		"PAYGATE_PAYWALL_API_URL": "https://paywalls.example.com/v1",
	}
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	setEnvs(t, requiredEnvs())

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "StateDir", cfg.StateDir, "/var/lib/paygate")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "0.0.0.0")
	assertEqual(t, "Port", cfg.Port, 2380)
	assertEqual(t, "APIMaxBodyBytes", cfg.APIMaxBodyBytes, 1<<20)

	assertEqual(t, "PaywallFetchTimeout", cfg.PaywallFetchTimeout, 30*time.Second)
	assertEqual(t, "StaticPaywallsFile", cfg.StaticPaywallsFile, "")
	assertEqual(t, "StaticPaywallsReloadSchedule", cfg.StaticPaywallsReloadSchedule, "*/5 * * * *")
	assertEqual(t, "ResponseCacheSize", cfg.ResponseCacheSize, 1024)
	assertEqual(t, "ResponseCacheTTL", cfg.ResponseCacheTTL, time.Duration(0))
	assertEqual(t, "InflightCancelPolicy", cfg.InflightCancelPolicy, paywall.CancelAbandon)
	assertEqual(t, "TrackingSinkTimeout", cfg.TrackingSinkTimeout, 2*time.Second)

	assertEqual(t, "EventLogQueueSize", cfg.EventLogQueueSize, 8192)
	assertEqual(t, "EventLogFlushBatchSize", cfg.EventLogFlushBatchSize, 1024)
	assertEqual(t, "EventLogFlushInterval", cfg.EventLogFlushInterval, 5*time.Second)
	assertEqual(t, "EventLogRetention", cfg.EventLogRetention, 30*24*time.Hour)

	assertEqual(t, "RedisAddr", cfg.RedisAddr, "")
	assertEqual(t, "RedisDB", cfg.RedisDB, 0)
	assertEqual(t, "RedisStream", cfg.RedisStream, "paygate:events")

	assertEqual(t, "OTelEnabled", cfg.OTelEnabled, false)
	assertEqual(t, "MetricLatencyBinWidthMS", cfg.MetricLatencyBinWidthMS, 25)
	assertEqual(t, "MetricLatencyBinOverflowMS", cfg.MetricLatencyBinOverflowMS, 2000)
	assertEqual(t, "MetricRealtimeCapacity", cfg.MetricRealtimeCapacity, 600)
	assertEqual(t, "LogLevel", cfg.LogLevel, "info")
}

func TestLoadEnvConfig_EnvOverrides(t *testing.T) {
	setEnvs(t, requiredEnvs())
	setEnvs(t, map[string]string{
		"PAYGATE_STATE_DIR":                       "/tmp/paygate",
		"PAYGATE_LISTEN_ADDRESS":                  " 127.0.0.1 ",
		"PAYGATE_PORT":                            "9999",
		"PAYGATE_PAYWALL_API_KEY":                 "pk_live",
		"PAYGATE_PAYWALL_FETCH_TIMEOUT":           "3s",
		"PAYGATE_STATIC_PAYWALLS_FILE":            "/etc/paygate/paywalls.yaml",
		"PAYGATE_STATIC_PAYWALLS_RELOAD_SCHEDULE": "@every 30s",
		"PAYGATE_RESPONSE_CACHE_SIZE":             "10",
		"PAYGATE_RESPONSE_CACHE_TTL":              "1m",
		"PAYGATE_INFLIGHT_CANCEL_POLICY":          "Cancel_Unreferenced",
		"PAYGATE_EVENT_LOG_QUEUE_SIZE":            "100",
		"PAYGATE_EVENT_LOG_FLUSH_BATCH_SIZE":      "50",
		"PAYGATE_EVENT_LOG_RETENTION":             "0",
		"PAYGATE_REDIS_ADDR":                      "localhost:6379",
		"PAYGATE_REDIS_DB":                        "2",
		"PAYGATE_OTEL_ENDPOINT":                   "otel:4318",
		"PAYGATE_LOG_LEVEL":                       "DEBUG",
	})

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "StateDir", cfg.StateDir, "/tmp/paygate")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "127.0.0.1")
	assertEqual(t, "Port", cfg.Port, 9999)
	assertEqual(t, "PaywallAPIKey", cfg.PaywallAPIKey, "pk_live")
	assertEqual(t, "PaywallFetchTimeout", cfg.PaywallFetchTimeout, 3*time.Second)
	assertEqual(t, "StaticPaywallsFile", cfg.StaticPaywallsFile, "/etc/paygate/paywalls.yaml")
	assertEqual(t, "ResponseCacheTTL", cfg.ResponseCacheTTL, time.Minute)
	assertEqual(t, "InflightCancelPolicy", cfg.InflightCancelPolicy, paywall.CancelUnreferenced)
	assertEqual(t, "EventLogRetention", cfg.EventLogRetention, time.Duration(0))
	assertEqual(t, "RedisAddr", cfg.RedisAddr, "localhost:6379")
	assertEqual(t, "RedisDB", cfg.RedisDB, 2)
	assertEqual(t, "OTelEnabled", cfg.OTelEnabled, true)
	assertEqual(t, "LogLevel", cfg.LogLevel, "debug")
}

func TestLoadEnvConfig_OTelExplicitlyDisabled(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("PAYGATE_OTEL_ENDPOINT", "otel:4318")
	t.Setenv("PAYGATE_OTEL_ENABLED", "false")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OTelEnabled {
		t.Fatal("explicit PAYGATE_OTEL_ENABLED=false must win over endpoint presence")
	}
}

func TestLoadEnvConfig_MissingAdminToken(t *testing.T) {
	t.Setenv("PAYGATE_PAYWALL_API_URL", "https://paywalls.example.com")
	unsetEnv(t, "PAYGATE_ADMIN_TOKEN")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for missing PAYGATE_ADMIN_TOKEN")
	}
	assertContains(t, err.Error(), "PAYGATE_ADMIN_TOKEN must be defined (can be empty)")
}

func TestLoadEnvConfig_EmptyAdminTokenAllowedWhenDefined(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("PAYGATE_ADMIN_TOKEN", "")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Public().AuthEnabled {
		t.Fatal("empty admin token must disable auth")
	}
}

func TestLoadEnvConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		envs map[string]string
		want string
	}{
		{"missing_paywall_url", map[string]string{"PAYGATE_PAYWALL_API_URL": ""}, "PAYGATE_PAYWALL_API_URL is required"},
		{"bad_paywall_scheme", map[string]string{"PAYGATE_PAYWALL_API_URL": "ftp://paywalls"}, "scheme must be http or https"},
		{"paywall_url_without_host", map[string]string{"PAYGATE_PAYWALL_API_URL": "https://"}, "missing host"},
		{"empty_listen_address", map[string]string{"PAYGATE_LISTEN_ADDRESS": "  "}, "PAYGATE_LISTEN_ADDRESS must not be empty"},
		{"port_out_of_range", map[string]string{"PAYGATE_PORT": "70000"}, "PAYGATE_PORT: port must be 1-65535"},
		{"port_not_number", map[string]string{"PAYGATE_PORT": "abc"}, "PAYGATE_PORT: invalid integer"},
		{"zero_body_limit", map[string]string{"PAYGATE_API_MAX_BODY_BYTES": "0"}, "PAYGATE_API_MAX_BODY_BYTES: must be positive"},
		{"bad_duration", map[string]string{"PAYGATE_PAYWALL_FETCH_TIMEOUT": "soon"}, "PAYGATE_PAYWALL_FETCH_TIMEOUT: invalid duration"},
		{"zero_fetch_timeout", map[string]string{"PAYGATE_PAYWALL_FETCH_TIMEOUT": "0s"}, "PAYGATE_PAYWALL_FETCH_TIMEOUT must be positive"},
		{
			"bad_reload_schedule",
			map[string]string{"PAYGATE_STATIC_PAYWALLS_FILE": "/x.yaml", "PAYGATE_STATIC_PAYWALLS_RELOAD_SCHEDULE": "every minute"},
			"PAYGATE_STATIC_PAYWALLS_RELOAD_SCHEDULE: invalid cron expression",
		},
		{"negative_cache_size", map[string]string{"PAYGATE_RESPONSE_CACHE_SIZE": "-1"}, "PAYGATE_RESPONSE_CACHE_SIZE: must not be negative"},
		{"negative_cache_ttl", map[string]string{"PAYGATE_RESPONSE_CACHE_TTL": "-1s"}, "PAYGATE_RESPONSE_CACHE_TTL must not be negative"},
		{"bad_cancel_policy", map[string]string{"PAYGATE_INFLIGHT_CANCEL_POLICY": "always"}, "PAYGATE_INFLIGHT_CANCEL_POLICY: invalid value"},
		{
			"queue_too_small",
			map[string]string{"PAYGATE_EVENT_LOG_QUEUE_SIZE": "100", "PAYGATE_EVENT_LOG_FLUSH_BATCH_SIZE": "60"},
			"PAYGATE_EVENT_LOG_QUEUE_SIZE must be at least 2x PAYGATE_EVENT_LOG_FLUSH_BATCH_SIZE",
		},
		{"zero_flush_interval", map[string]string{"PAYGATE_EVENT_LOG_FLUSH_INTERVAL": "0s"}, "PAYGATE_EVENT_LOG_FLUSH_INTERVAL must be positive"},
		{"negative_retention", map[string]string{"PAYGATE_EVENT_LOG_RETENTION": "-1h"}, "PAYGATE_EVENT_LOG_RETENTION must not be negative"},
		{"negative_redis_db", map[string]string{"PAYGATE_REDIS_DB": "-1"}, "PAYGATE_REDIS_DB: must not be negative"},
		{
			"redis_without_stream",
			map[string]string{"PAYGATE_REDIS_ADDR": "localhost:6379", "PAYGATE_REDIS_STREAM": " "},
			"PAYGATE_REDIS_STREAM must not be empty",
		},
		{"bad_otel_bool", map[string]string{"PAYGATE_OTEL_ENABLED": "maybe"}, "PAYGATE_OTEL_ENABLED: invalid boolean"},
		{"zero_bin_width", map[string]string{"PAYGATE_METRIC_LATENCY_BIN_WIDTH_MS": "0"}, "PAYGATE_METRIC_LATENCY_BIN_WIDTH_MS: must be positive"},
		{"bad_log_level", map[string]string{"PAYGATE_LOG_LEVEL": "trace"}, "PAYGATE_LOG_LEVEL: invalid value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, requiredEnvs())
			setEnvs(t, tt.envs)

			_, err := LoadEnvConfig()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEnvConfig_ReloadScheduleIgnoredWithoutFile(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("PAYGATE_STATIC_PAYWALLS_RELOAD_SCHEDULE", "not a schedule")

	if _, err := LoadEnvConfig(); err != nil {
		t.Fatalf("schedule must only be validated with a static file, got %v", err)
	}
}

func TestLoadEnvConfig_AccumulatesErrors(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("PAYGATE_PORT", "0")
	t.Setenv("PAYGATE_LOG_LEVEL", "loud")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "PAYGATE_PORT")
	assertContains(t, err.Error(), "PAYGATE_LOG_LEVEL")
}

func TestEnvConfig_PublicRedactsSecrets(t *testing.T) {
	setEnvs(t, requiredEnvs())
	t.Setenv("PAYGATE_PAYWALL_API_KEY", "pk_secret")
	t.Setenv("PAYGATE_REDIS_PASSWORD", "redis-secret")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pub := cfg.Public()
	if !pub.AuthEnabled || !pub.PaywallAPIKeySet {
		t.Fatalf("presence flags: got %+v", pub)
	}
	raw, err := json.Marshal(pub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, secret := range []string{"admin-secret", "pk_secret", "redis-secret"} {
		if strings.Contains(body, secret) {
			t.Fatalf("public config leaks %q: %s", secret, body)
		}
	}
	assertContains(t, body, `"paywall_fetch_timeout":"30s"`)
	assertContains(t, body, `"inflight_cancel_policy":"abandon"`)
}

// --- test helpers ---

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
