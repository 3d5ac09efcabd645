package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/storageops/resilience"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if !cfg.FallbackEnabled || !cfg.RetryEnabled || !cfg.BreakerEnabled {
		t.Errorf("DefaultConfig() = %+v, want fallback, retry and breaker enabled", cfg)
	}
	if cfg.FallbackMaxRetries != 2 {
		t.Errorf("FallbackMaxRetries = %d, want 2", cfg.FallbackMaxRetries)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative fallback retries", func(c *Config) { c.FallbackMaxRetries = -1 }, "storage.fallback_max_retries"},
		{"negative fallback timeout", func(c *Config) { c.FallbackTimeout = -1 }, "storage.fallback_timeout"},
		{"unknown strategy", func(c *Config) { c.FallbackStrategy = 7 }, "storage.fallback_strategy"},
		{"negative concurrency", func(c *Config) { c.MaxConcurrent = -1 }, "storage.max_concurrent"},
		{"bad multiplier", func(c *Config) { c.Retry.Backoff.Multiplier = 0.5 }, "backoff.multiplier"},
		{"unknown backoff", func(c *Config) { c.Retry.Backoff.Strategy = 9 }, "backoff.strategy"},
		{"max delay below base delay", func(c *Config) {
			c.Retry.Backoff.BaseDelay = 2 * time.Second
			c.Retry.Backoff.MaxDelay = time.Second
		}, "backoff.max_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			var ce *resilience.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestConfig_DisabledSectionsSkipValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryEnabled = false
	cfg.Retry.Backoff.Multiplier = 0.5
	cfg.BreakerEnabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestParseFallbackStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    FallbackStrategy
		wantErr bool
	}{
		{"", FallbackPriority, false},
		{"priority", FallbackPriority, false},
		{"HEALTH", FallbackHealth, false},
		{"health-based", FallbackHealth, false},
		{"random", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFallbackStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFallbackStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFallbackStrategy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
