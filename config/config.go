package config

import (
	"time"

	"github.com/jonwraymond/storageops/health"
	"github.com/jonwraymond/storageops/observe"
	"github.com/jonwraymond/storageops/resilience"
	"github.com/jonwraymond/storageops/storage"
)

// Backend kinds.
const (
	KindLocal       = "local"
	KindS3          = "s3"
	KindS3Emulator  = "s3-emulator"
	KindAzure       = "azure"
	KindAzurite     = "azurite"
	defaultAddr     = ":8080"
	defaultService  = "storageops"
	defaultLogLevel = "info"
)

// Config is the complete process configuration.
type Config struct {
	Addr      string          `yaml:"addr"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Retry     RetryConfig     `yaml:"retry_policy"`
	Routing   RoutingConfig   `yaml:"routing"`
	Health    HealthConfig    `yaml:"health_check"`
	Backends  []BackendConfig `yaml:"backends"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	ServiceName     string  `yaml:"service_name"`
	TracesExporter  string  `yaml:"traces_exporter"`
	MetricsExporter string  `yaml:"metrics_exporter"`
	SampleRatio     float64 `yaml:"sample_ratio"`
}

// BreakerConfig configures the per-backend circuit breakers.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
	SuccessThreshold int           `yaml:"success_threshold"`
	MaxHistorySize   int           `yaml:"max_history_size"`
	DecrementOnOK    bool          `yaml:"decrement_on_success"`
}

// RetryConfig configures the per-backend retry policy.
type RetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Strategy       string        `yaml:"backoff_strategy"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"backoff_multiplier"`
	JitterEnabled  bool          `yaml:"jitter_enabled"`
	JitterFactor   float64       `yaml:"jitter_factor"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	TotalTimeout   time.Duration `yaml:"total_timeout"`
}

// RoutingConfig configures candidate selection and fallback.
type RoutingConfig struct {
	FallbackEnabled    bool          `yaml:"fallback_enabled"`
	FallbackStrategy   string        `yaml:"fallback_strategy"`
	FallbackTimeout    time.Duration `yaml:"fallback_timeout"`
	FallbackMaxRetries int           `yaml:"fallback_max_retries"`
	Priority           []string      `yaml:"priority"`
	MaxConcurrent      int           `yaml:"max_concurrent"`
	BulkheadMaxWait    time.Duration `yaml:"bulkhead_max_wait"`
}

// HealthConfig configures the health monitor.
type HealthConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	Window         int           `yaml:"window"`
	UnhealthyBelow float64       `yaml:"unhealthy_below"`
	DegradedBelow  float64       `yaml:"degraded_below"`
	SlowThreshold  time.Duration `yaml:"slow_threshold"`
}

// BackendConfig describes one storage backend.
type BackendConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// local
	Path string `yaml:"path,omitempty"`

	// s3, s3-emulator
	Bucket          string `yaml:"bucket,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty"`

	// azure, azurite
	ConnectionString string `yaml:"connection_string,omitempty"`
	Container        string `yaml:"container,omitempty"`
}

// Default returns the configuration used for every unset option.
func Default() Config {
	return Config{
		Addr:    defaultAddr,
		Logging: LoggingConfig{Level: defaultLogLevel, Format: "json"},
		Telemetry: TelemetryConfig{
			ServiceName:     defaultService,
			TracesExporter:  "none",
			MetricsExporter: "none",
			SampleRatio:     1,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
			HalfOpenMaxCalls: 3,
			SuccessThreshold: 2,
			MaxHistorySize:   100,
		},
		Retry: RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			Strategy:       resilience.BackoffExponential.String(),
			BaseDelay:      time.Second,
			MaxDelay:       30 * time.Second,
			Multiplier:     2,
			JitterEnabled:  true,
			JitterFactor:   0.1,
			AttemptTimeout: 30 * time.Second,
			TotalTimeout:   5 * time.Minute,
		},
		Routing: RoutingConfig{
			FallbackEnabled:    true,
			FallbackStrategy:   storage.FallbackPriority.String(),
			FallbackTimeout:    60 * time.Second,
			FallbackMaxRetries: 2,
		},
		Health: HealthConfig{
			Interval:       30 * time.Second,
			Timeout:        5 * time.Second,
			MaxRetries:     2,
			Window:         10,
			UnhealthyBelow: 0.5,
			DegradedBelow:  0.8,
		},
	}
}

// RouterConfig converts the routing, retry and breaker sections.
func (c *Config) RouterConfig() (storage.Config, error) {
	strategy, err := storage.ParseFallbackStrategy(c.Routing.FallbackStrategy)
	if err != nil {
		return storage.Config{}, err
	}
	backoff, err := resilience.ParseBackoffStrategy(c.Retry.Strategy)
	if err != nil {
		return storage.Config{}, err
	}

	policy := resilience.ResetOnSuccess
	if c.Breaker.DecrementOnOK {
		policy = resilience.DecrementOnSuccess
	}

	return storage.Config{
		Priority:           c.Routing.Priority,
		FallbackEnabled:    c.Routing.FallbackEnabled,
		FallbackStrategy:   strategy,
		FallbackTimeout:    c.Routing.FallbackTimeout,
		FallbackMaxRetries: c.Routing.FallbackMaxRetries,
		RetryEnabled:       c.Retry.Enabled,
		Retry: resilience.RetryConfig{
			MaxAttempts:    c.Retry.MaxAttempts,
			AttemptTimeout: c.Retry.AttemptTimeout,
			TotalTimeout:   c.Retry.TotalTimeout,
			Backoff: resilience.BackoffConfig{
				Strategy:      backoff,
				BaseDelay:     c.Retry.BaseDelay,
				MaxDelay:      c.Retry.MaxDelay,
				Multiplier:    c.Retry.Multiplier,
				JitterEnabled: c.Retry.JitterEnabled,
				JitterFactor:  c.Retry.JitterFactor,
			},
		},
		BreakerEnabled: c.Breaker.Enabled,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: c.Breaker.FailureThreshold,
			OpenTimeout:      c.Breaker.Timeout,
			HalfOpenMaxCalls: c.Breaker.HalfOpenMaxCalls,
			SuccessThreshold: c.Breaker.SuccessThreshold,
			MaxHistorySize:   c.Breaker.MaxHistorySize,
			SuccessPolicy:    policy,
		},
		MaxConcurrent:   c.Routing.MaxConcurrent,
		BulkheadMaxWait: c.Routing.BulkheadMaxWait,
	}, nil
}

// MonitorConfig converts the health section.
func (c *Config) MonitorConfig() health.MonitorConfig {
	return health.MonitorConfig{
		Interval:   c.Health.Interval,
		Timeout:    c.Health.Timeout,
		MaxRetries: c.Health.MaxRetries,
		Window:     c.Health.Window,
		Thresholds: health.Thresholds{
			UnhealthyBelow: c.Health.UnhealthyBelow,
			DegradedBelow:  c.Health.DegradedBelow,
			SlowThreshold:  c.Health.SlowThreshold,
		},
	}
}

// ObserveConfig converts the logging and telemetry sections.
func (c *Config) ObserveConfig(version string) observe.Config {
	return observe.Config{
		ServiceName: c.Telemetry.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.TracesExporter != "" && c.Telemetry.TracesExporter != "none",
			Exporter:  c.Telemetry.TracesExporter,
			SamplePct: c.Telemetry.SampleRatio,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.MetricsExporter != "" && c.Telemetry.MetricsExporter != "none",
			Exporter: c.Telemetry.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Logging.Level,
			Format:  c.Logging.Format,
		},
	}
}

// Backend returns the backend configured under id.
func (c *Config) Backend(id string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return BackendConfig{}, false
}
