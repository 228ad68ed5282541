package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/formchat/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, FORMCHAT_CONFIG env, ./config.yaml, /etc/formchat/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. FORMCHAT_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/formchat/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("FORMCHAT_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/formchat/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envVar maps one environment variable onto a field.
type envVar struct {
	name  string
	apply func(v string) error
}

func envString(name string, dst *string) envVar {
	return envVar{name, func(v string) error { *dst = v; return nil }}
}

func envInt(name string, dst *int) envVar {
	return envVar{name, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}}
}

func envDuration(name string, dst *time.Duration) envVar {
	return envVar{name, func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}}
}

// applyEnvOverrides maps FORMCHAT_* environment variables to config
// fields. Unparsable numbers and durations are reported together.
func applyEnvOverrides(cfg *Config) error {
	vars := []envVar{
		envInt("FORMCHAT_PORT", &cfg.Server.Port),

		envString("FORMCHAT_JUDGE", &cfg.Judge.Type),
		envString("FORMCHAT_PROVIDER", &cfg.Judge.Provider),
		envString("FORMCHAT_BACKEND_URL", &cfg.Judge.BackendURL),
		envString("FORMCHAT_API_KEY", &cfg.Judge.APIKey),
		envString("FORMCHAT_MODEL", &cfg.Judge.Model),
		envDuration("FORMCHAT_JUDGE_TIMEOUT", &cfg.Judge.Timeout),

		envInt("FORMCHAT_MAX_ATTEMPTS", &cfg.Dialogue.DefaultMaxAttempts),
		envDuration("FORMCHAT_IDLE_TIMEOUT", &cfg.Dialogue.IdleTimeout),

		envString("FORMCHAT_FORMS_DIR", &cfg.Forms.Dir),

		envString("FORMCHAT_STORAGE", &cfg.Storage.Type),
		envInt("FORMCHAT_STORAGE_SIZE", &cfg.Storage.MaxSize),
		envString("FORMCHAT_POSTGRES_DSN", &cfg.Storage.Postgres.DSN),
		envString("FORMCHAT_REDIS_ADDR", &cfg.Storage.Redis.Addr),
		envString("FORMCHAT_REDIS_PASSWORD", &cfg.Storage.Redis.Password),
		envString("FORMCHAT_SQLITE_PATH", &cfg.Storage.SQLite.Path),

		envString("FORMCHAT_LOG_FORMAT", &cfg.Logging.Format),
	}

	var bad []string
	for _, ev := range vars {
		v := os.Getenv(ev.name)
		if v == "" {
			continue
		}
		if err := ev.apply(v); err != nil {
			bad = append(bad, fmt.Sprintf("%s=%q: %v", ev.name, v, err))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid values: %s", strings.Join(bad, "; "))
	}
	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"judge.api_key_file", cfg.Judge.APIKeyFile, &cfg.Judge.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"storage.redis.password_file", cfg.Storage.Redis.PasswordFile, &cfg.Storage.Redis.Password},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
