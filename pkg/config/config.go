// Package config provides unified configuration for the formchat server
// and CLI.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (FORMCHAT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for formchat.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Judge         JudgeConfig         `yaml:"judge"`
	Dialogue      DialogueConfig      `yaml:"dialogue"`
	Forms         FormsConfig         `yaml:"forms"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
	AllowedOrigins  []string      `yaml:"allowed_origins"`  // WebSocket origin patterns
}

// JudgeConfig selects and configures the answer judge.
type JudgeConfig struct {
	Type          string            `yaml:"type"`           // "llm" or "rules", default: "llm"
	Provider      string            `yaml:"provider"`       // "openai", "vllm" or "litellm", default: "openai"
	BackendURL    string            `yaml:"backend_url"`    // required for type=llm
	APIKey        string            `yaml:"api_key"`        // optional
	APIKeyFile    string            `yaml:"api_key_file"`   // _file variant for api_key
	Model         string            `yaml:"model"`          // required for type=llm
	Timeout       time.Duration     `yaml:"timeout"`        // default: 8s
	MaxRetries    int               `yaml:"max_retries"`    // default: 1
	MinConfidence float64           `yaml:"min_confidence"` // default: 0
	ModelMapping  map[string]string `yaml:"model_mapping"`  // litellm aliases
}

// DialogueConfig holds session lifecycle settings.
type DialogueConfig struct {
	DefaultMaxAttempts int           `yaml:"default_max_attempts"` // default: 3
	IdleTimeout        time.Duration `yaml:"idle_timeout"`         // default: 30m, 0 disables
	SweepInterval      time.Duration `yaml:"sweep_interval"`       // default: 1m
	ClosedRetention    time.Duration `yaml:"closed_retention"`     // default: 10m
}

// FormsConfig locates form definitions.
type FormsConfig struct {
	Dir string `yaml:"dir"` // default: "forms"
}

// StorageConfig holds submission persistence settings.
type StorageConfig struct {
	Type        string         `yaml:"type"`         // "memory", "postgres", "redis", "sqlite" or "none", default: "memory"
	MaxSize     int            `yaml:"max_size"`     // for memory store, default: 10000
	SaveTimeout time.Duration  `yaml:"save_timeout"` // default: 30s
	SaveRetries int            `yaml:"save_retries"` // default: 3
	Postgres    PostgresConfig `yaml:"postgres"`
	Redis       RedisConfig    `yaml:"redis"`
	SQLite      SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	PasswordFile string        `yaml:"password_file"` // _file variant for password
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"` // default: "formchat"
	TTL          time.Duration `yaml:"ttl"`    // 0 keeps submissions forever
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "data/formchat.db"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings. FORMCHAT_LOG_LEVEL and
// FORMCHAT_DEBUG take precedence over Level and Debug.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     1 << 20,
		},
		Judge: JudgeConfig{
			Type:       "llm",
			Provider:   "openai",
			Timeout:    8 * time.Second,
			MaxRetries: 1,
		},
		Dialogue: DialogueConfig{
			DefaultMaxAttempts: 3,
			IdleTimeout:        30 * time.Minute,
			SweepInterval:      time.Minute,
			ClosedRetention:    10 * time.Minute,
		},
		Forms: FormsConfig{
			Dir: "forms",
		},
		Storage: StorageConfig{
			Type:        "memory",
			MaxSize:     10000,
			SaveTimeout: 30 * time.Second,
			SaveRetries: 3,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
			Redis: RedisConfig{
				Prefix: "formchat",
			},
			SQLite: SQLiteConfig{
				Path: "data/formchat.db",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
