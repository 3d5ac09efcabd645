package config

import (
	"net/url"
	"slices"
)

// Validate checks every section and returns the first violation as a
// *resilience.ConfigError or an observe configuration error.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return invalid("addr", "must not be empty")
	}

	obs := c.ObserveConfig("")
	if err := obs.Validate(); err != nil {
		return err
	}

	rc, err := c.RouterConfig()
	if err != nil {
		return err
	}
	// Validate raw values: the resilience constructors silently default
	// zero fields, which would hide mistakes here.
	if c.Breaker.Enabled {
		if err := rc.Breaker.Validate(); err != nil {
			return err
		}
	}
	if c.Retry.Enabled {
		if err := rc.Retry.Validate(); err != nil {
			return err
		}
	}
	if err := rc.Validate(); err != nil {
		return err
	}

	if err := c.MonitorConfig().Validate(); err != nil {
		return err
	}
	if c.Health.DegradedBelow < c.Health.UnhealthyBelow {
		return invalid("health_check.degraded_below", "must be at least unhealthy_below")
	}

	return c.validateBackends()
}

func (c *Config) validateBackends() error {
	if len(c.Backends) == 0 {
		return ErrNoBackends
	}

	ids := make([]string, 0, len(c.Backends))
	for _, b := range c.Backends {
		field := "backends." + b.ID
		switch {
		case b.ID == "":
			return invalid("backends.id", "must not be empty")
		case slices.Contains(ids, b.ID):
			return invalid(field, "duplicate id")
		}
		ids = append(ids, b.ID)

		if err := b.validate(field); err != nil {
			return err
		}
	}

	for _, id := range c.Routing.Priority {
		if !slices.Contains(ids, id) {
			return invalid("routing.priority", "unknown backend %q", id)
		}
	}
	return nil
}

func (b BackendConfig) validate(field string) error {
	switch b.Kind {
	case KindLocal:
		if b.Path == "" {
			return invalid(field+".path", "required for %s backends", b.Kind)
		}
	case KindS3, KindS3Emulator:
		if b.Bucket == "" {
			return invalid(field+".bucket", "required for %s backends", b.Kind)
		}
		if b.Kind == KindS3Emulator && b.Endpoint == "" {
			return invalid(field+".endpoint", "required for %s backends", b.Kind)
		}
		if b.Endpoint != "" {
			if u, err := url.Parse(b.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				return invalid(field+".endpoint", "must be an absolute URL")
			}
		}
		if (b.AccessKeyID == "") != (b.SecretAccessKey == "") {
			return invalid(field+".secret_access_key", "access key id and secret must be set together")
		}
	case KindAzure, KindAzurite:
		if b.ConnectionString == "" {
			return invalid(field+".connection_string", "required for %s backends", b.Kind)
		}
		if b.Container == "" {
			return invalid(field+".container", "required for %s backends", b.Kind)
		}
	default:
		return invalid(field+".kind", "unknown kind %q", b.Kind)
	}
	return nil
}

