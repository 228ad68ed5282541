package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Judge.Type {
	case "llm":
		if c.Judge.BackendURL == "" {
			errs = append(errs, fmt.Errorf("judge.backend_url is required when judge.type is \"llm\""))
		}
		if c.Judge.Model == "" {
			errs = append(errs, fmt.Errorf("judge.model is required when judge.type is \"llm\""))
		}
		switch c.Judge.Provider {
		case "openai", "vllm", "litellm":
		default:
			errs = append(errs, fmt.Errorf("judge.provider must be \"openai\", \"vllm\" or \"litellm\", got %q", c.Judge.Provider))
		}
	case "rules":
	default:
		errs = append(errs, fmt.Errorf("judge.type must be \"llm\" or \"rules\", got %q", c.Judge.Type))
	}
	if c.Judge.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("judge.timeout must be > 0, got %v", c.Judge.Timeout))
	}
	if c.Judge.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("judge.max_retries must be >= 0, got %d", c.Judge.MaxRetries))
	}
	if c.Judge.MinConfidence < 0 || c.Judge.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("judge.min_confidence must be in [0, 1], got %v", c.Judge.MinConfidence))
	}

	if c.Dialogue.DefaultMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("dialogue.default_max_attempts must be >= 1, got %d", c.Dialogue.DefaultMaxAttempts))
	}
	if c.Dialogue.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("dialogue.idle_timeout must be >= 0, got %v", c.Dialogue.IdleTimeout))
	}
	if c.Dialogue.IdleTimeout > 0 && c.Dialogue.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("dialogue.sweep_interval must be > 0 when idle_timeout is set, got %v", c.Dialogue.SweepInterval))
	}

	if c.Forms.Dir == "" {
		errs = append(errs, fmt.Errorf("forms.dir is required"))
	}

	switch c.Storage.Type {
	case "memory", "none":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("storage.redis.addr is required when storage.type is \"redis\""))
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of \"memory\", \"postgres\", \"redis\", \"sqlite\", \"none\", got %q", c.Storage.Type))
	}
	if c.Storage.SaveRetries < 0 {
		errs = append(errs, fmt.Errorf("storage.save_retries must be >= 0, got %d", c.Storage.SaveRetries))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
