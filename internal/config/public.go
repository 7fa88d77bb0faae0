package config

import (
	"encoding/json"
	"time"
)

// Duration renders a time.Duration as its Go string form ("30s", "720h0m0s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// PublicConfig is the redacted view of EnvConfig served by the system API.
// Secrets are reduced to presence flags.
type PublicConfig struct {
	ListenAddress string `json:"listen_address"`
	Port          int    `json:"port"`
	AuthEnabled   bool   `json:"auth_enabled"`

	PaywallAPIURL                string   `json:"paywall_api_url"`
	PaywallAPIKeySet             bool     `json:"paywall_api_key_set"`
	PaywallFetchTimeout          Duration `json:"paywall_fetch_timeout"`
	StaticPaywallsFile           string   `json:"static_paywalls_file,omitempty"`
	StaticPaywallsReloadSchedule string   `json:"static_paywalls_reload_schedule,omitempty"`
	ResponseCacheSize            int      `json:"response_cache_size"`
	ResponseCacheTTL             Duration `json:"response_cache_ttl"`
	InflightCancelPolicy         string   `json:"inflight_cancel_policy"`

	EventLogFlushInterval Duration `json:"event_log_flush_interval"`
	EventLogRetention     Duration `json:"event_log_retention"`

	RedisEnabled bool   `json:"redis_enabled"`
	RedisStream  string `json:"redis_stream,omitempty"`
	OTelEnabled  bool   `json:"otel_enabled"`
	LogLevel     string `json:"log_level"`
}

// Public returns the redacted view of cfg.
func (cfg *EnvConfig) Public() PublicConfig {
	out := PublicConfig{
		ListenAddress:         cfg.ListenAddress,
		Port:                  cfg.Port,
		AuthEnabled:           cfg.AdminToken != "",
		PaywallAPIURL:         cfg.PaywallAPIURL,
		PaywallAPIKeySet:      cfg.PaywallAPIKey != "",
		PaywallFetchTimeout:   Duration(cfg.PaywallFetchTimeout),
		StaticPaywallsFile:    cfg.StaticPaywallsFile,
		ResponseCacheSize:     cfg.ResponseCacheSize,
		ResponseCacheTTL:      Duration(cfg.ResponseCacheTTL),
		InflightCancelPolicy:  cfg.InflightCancelPolicy.String(),
		EventLogFlushInterval: Duration(cfg.EventLogFlushInterval),
		EventLogRetention:     Duration(cfg.EventLogRetention),
		RedisEnabled:          cfg.RedisAddr != "",
		OTelEnabled:           cfg.OTelEnabled,
		LogLevel:              cfg.LogLevel,
	}
	if cfg.StaticPaywallsFile != "" {
		out.StaticPaywallsReloadSchedule = cfg.StaticPaywallsReloadSchedule
	}
	if out.RedisEnabled {
		out.RedisStream = cfg.RedisStream
	}
	return out
}
