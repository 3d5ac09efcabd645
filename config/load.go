package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/jonwraymond/storageops/secret"
)

// PathEnv names the environment variable holding the YAML file path.
const PathEnv = "STORAGEOPS_CONFIG"

type loadOptions struct {
	dotenv   []string
	resolver *secret.Resolver
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithDotEnv sets the .env files read before anything else. Missing files
// are skipped. Default: ".env".
func WithDotEnv(files ...string) LoadOption {
	return func(o *loadOptions) { o.dotenv = files }
}

// WithResolver sets the resolver for credential fields. Default:
// secret.NewDefaultResolver.
func WithResolver(r *secret.Resolver) LoadOption {
	return func(o *loadOptions) { o.resolver = r }
}

// Load builds the configuration in order: defaults, the YAML file at path
// (or $STORAGEOPS_CONFIG when path is empty), then the environment, which
// wins. Credential fields are resolved through the secret resolver and the
// result is validated before it is returned.
func Load(ctx context.Context, path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{dotenv: []string{".env"}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = secret.NewDefaultResolver()
	}

	if err := loadDotEnv(o.dotenv); err != nil {
		return nil, err
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := resolveSecrets(ctx, o.resolver, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(files []string) error {
	for _, f := range files {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s: %w", ErrReadFile, f, err)
		}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFile, err)
	}

	expanded, err := secret.ExpandEnvStrict(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadFile, path, err)
	}

	if err := yaml.UnmarshalStrict([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadFile, path, err)
	}
	return nil
}

func resolveSecrets(ctx context.Context, r *secret.Resolver, cfg *Config) error {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		prefix := "backends." + b.ID + "."
		err := r.ResolveFields(ctx, map[string]*string{
			prefix + "access_key_id":     &b.AccessKeyID,
			prefix + "secret_access_key": &b.SecretAccessKey,
			prefix + "connection_string": &b.ConnectionString,
		})
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// env reads typed values from a lookup function and remembers the first
// parse failure.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *env) fail(key, value, want string) {
	if e.err == nil {
		e.err = invalid(key, "%q is not %s", value, want)
	}
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *env) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "a boolean")
		return
	}
	*dst = b
}

func (e *env) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "an integer")
		return
	}
	*dst = n
}

func (e *env) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, "a number")
		return
	}
	*dst = f
}

// millis reads an integer number of milliseconds.
func (e *env) millis(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, "an integer number of milliseconds")
		return
	}
	*dst = time.Duration(n) * time.Millisecond
}

// duration reads a Go duration string or an integer number of milliseconds.
func (e *env) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(n) * time.Millisecond
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, "a duration")
		return
	}
	*dst = d
}

func (e *env) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := &env{lookup: lookup}

	e.str("STORAGEOPS_ADDR", &cfg.Addr)
	e.str("LOG_LEVEL", &cfg.Logging.Level)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)
	e.str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	e.str("OTEL_TRACES_EXPORTER", &cfg.Telemetry.TracesExporter)
	e.str("OTEL_METRICS_EXPORTER", &cfg.Telemetry.MetricsExporter)
	e.float("OTEL_TRACES_SAMPLER_ARG", &cfg.Telemetry.SampleRatio)

	e.boolean("CIRCUIT_BREAKER_ENABLED", &cfg.Breaker.Enabled)
	e.integer("CIRCUIT_BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	e.millis("CIRCUIT_BREAKER_TIMEOUT_MS", &cfg.Breaker.Timeout)
	e.integer("CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS", &cfg.Breaker.HalfOpenMaxCalls)
	e.integer("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", &cfg.Breaker.SuccessThreshold)
	e.integer("CIRCUIT_BREAKER_MAX_HISTORY_SIZE", &cfg.Breaker.MaxHistorySize)

	e.boolean("RETRY_POLICY_ENABLED", &cfg.Retry.Enabled)
	e.integer("RETRY_POLICY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	e.str("RETRY_POLICY_BACKOFF_STRATEGY", &cfg.Retry.Strategy)
	e.millis("RETRY_POLICY_BASE_DELAY_MS", &cfg.Retry.BaseDelay)
	e.millis("RETRY_POLICY_MAX_DELAY_MS", &cfg.Retry.MaxDelay)
	e.float("RETRY_POLICY_BACKOFF_MULTIPLIER", &cfg.Retry.Multiplier)
	e.boolean("RETRY_POLICY_JITTER_ENABLED", &cfg.Retry.JitterEnabled)
	e.float("RETRY_POLICY_JITTER_FACTOR", &cfg.Retry.JitterFactor)
	e.millis("RETRY_POLICY_ATTEMPT_TIMEOUT_MS", &cfg.Retry.AttemptTimeout)
	e.millis("RETRY_POLICY_TOTAL_TIMEOUT_MS", &cfg.Retry.TotalTimeout)

	e.boolean("STORAGE_FALLBACK_ENABLED", &cfg.Routing.FallbackEnabled)
	e.str("STORAGE_FALLBACK_STRATEGY", &cfg.Routing.FallbackStrategy)
	e.millis("STORAGE_FALLBACK_TIMEOUT_MS", &cfg.Routing.FallbackTimeout)
	e.integer("STORAGE_FALLBACK_MAX_RETRIES", &cfg.Routing.FallbackMaxRetries)
	e.list("STORAGE_STRATEGY_PRIORITY", &cfg.Routing.Priority)
	e.integer("STORAGE_MAX_CONCURRENT", &cfg.Routing.MaxConcurrent)

	e.duration("STORAGE_HEALTH_CHECK_INTERVAL", &cfg.Health.Interval)
	e.duration("STORAGE_HEALTH_CHECK_TIMEOUT", &cfg.Health.Timeout)
	e.integer("STORAGE_HEALTH_CHECK_MAX_RETRIES", &cfg.Health.MaxRetries)

	if e.err != nil {
		return e.err
	}

	applyBackendEnv(cfg, e)
	return e.err
}

// applyBackendEnv adds or overrides one backend per configured provider.
// Environment-defined backends use fixed IDs: local, s3, minio, azure and
// azurite.
func applyBackendEnv(cfg *Config, e *env) {
	if path, ok := e.get("STORAGE_LOCAL_PATH"); ok {
		b := cfg.backendFor("local", KindLocal)
		b.Path = path
	}

	if bucket, ok := e.get("S3_BUCKET"); ok {
		b := cfg.backendFor("s3", KindS3)
		b.Bucket = bucket
		e.str("S3_REGION", &b.Region)
		e.str("S3_ENDPOINT", &b.Endpoint)
		e.str("S3_ACCESS_KEY_ID", &b.AccessKeyID)
		e.str("S3_SECRET_ACCESS_KEY", &b.SecretAccessKey)
		e.boolean("S3_FORCE_PATH_STYLE", &b.ForcePathStyle)
	}

	if endpoint, ok := e.get("MINIO_ENDPOINT"); ok {
		b := cfg.backendFor("minio", KindS3Emulator)
		b.Endpoint = endpoint
		b.ForcePathStyle = true
		e.str("MINIO_BUCKET", &b.Bucket)
		e.str("MINIO_REGION", &b.Region)
		e.str("MINIO_ACCESS_KEY", &b.AccessKeyID)
		e.str("MINIO_SECRET_KEY", &b.SecretAccessKey)
	}

	if conn, ok := e.get("AZURE_STORAGE_CONNECTION_STRING"); ok {
		b := cfg.backendFor("azure", KindAzure)
		b.ConnectionString = conn
		e.str("AZURE_STORAGE_CONTAINER", &b.Container)
	}

	if conn, ok := e.get("AZURITE_CONNECTION_STRING"); ok {
		b := cfg.backendFor("azurite", KindAzurite)
		b.ConnectionString = conn
		e.str("AZURITE_CONTAINER", &b.Container)
	}
}

// backendFor returns the backend with id, appending one of kind if absent.
func (c *Config) backendFor(id, kind string) *BackendConfig {
	for i := range c.Backends {
		if c.Backends[i].ID == id {
			return &c.Backends[i]
		}
	}
	c.Backends = append(c.Backends, BackendConfig{ID: id, Kind: kind})
	return &c.Backends[len(c.Backends)-1]
}
