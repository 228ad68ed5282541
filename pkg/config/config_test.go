package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// validLLM fills the fields an llm judge needs so tests can focus on
// other sections.
func validLLM(c *Config) {
	c.Judge.BackendURL = "http://localhost:8000"
	c.Judge.Model = "judge-model"
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("default server.write_timeout = %v, want 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Judge.Type != "llm" || cfg.Judge.Provider != "openai" {
		t.Errorf("default judge = %s/%s, want llm/openai", cfg.Judge.Type, cfg.Judge.Provider)
	}
	if cfg.Judge.Timeout != 8*time.Second || cfg.Judge.MaxRetries != 1 {
		t.Errorf("default judge timeout/retries = %v/%d, want 8s/1", cfg.Judge.Timeout, cfg.Judge.MaxRetries)
	}
	if cfg.Dialogue.DefaultMaxAttempts != 3 {
		t.Errorf("default dialogue.default_max_attempts = %d, want 3", cfg.Dialogue.DefaultMaxAttempts)
	}
	if cfg.Dialogue.IdleTimeout != 30*time.Minute {
		t.Errorf("default dialogue.idle_timeout = %v, want 30m", cfg.Dialogue.IdleTimeout)
	}
	if cfg.Storage.Type != "memory" || cfg.Storage.MaxSize != 10000 {
		t.Errorf("default storage = %s/%d, want memory/10000", cfg.Storage.Type, cfg.Storage.MaxSize)
	}
	if cfg.Storage.Redis.Prefix != "formchat" {
		t.Errorf("default storage.redis.prefix = %q", cfg.Storage.Redis.Prefix)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("default metrics = %+v", cfg.Observability.Metrics)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", `
server:
  port: 9090
  read_timeout: 60s
  allowed_origins: ["forms.example.com"]
judge:
  type: llm
  provider: litellm
  backend_url: http://localhost:4000
  api_key: sk-test-key
  model: judge-small
  timeout: 5s
  max_retries: 2
  min_confidence: 0.6
  model_mapping:
    judge-small: openai/gpt-4o-mini
dialogue:
  default_max_attempts: 2
  idle_timeout: 10m
forms:
  dir: /srv/forms
storage:
  type: redis
  save_retries: 5
  redis:
    addr: localhost:6379
    db: 2
    ttl: 720h
logging:
  format: json
  debug: judge,engine
`)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "forms.example.com" {
		t.Errorf("server.allowed_origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("unset server.write_timeout should keep default, got %v", cfg.Server.WriteTimeout)
	}
	j := cfg.Judge
	if j.Provider != "litellm" || j.Model != "judge-small" || j.Timeout != 5*time.Second || j.MaxRetries != 2 || j.MinConfidence != 0.6 {
		t.Errorf("judge = %+v", j)
	}
	if j.ModelMapping["judge-small"] != "openai/gpt-4o-mini" {
		t.Errorf("judge.model_mapping = %v", j.ModelMapping)
	}
	if cfg.Dialogue.DefaultMaxAttempts != 2 || cfg.Dialogue.IdleTimeout != 10*time.Minute {
		t.Errorf("dialogue = %+v", cfg.Dialogue)
	}
	if cfg.Dialogue.SweepInterval != time.Minute {
		t.Errorf("unset dialogue.sweep_interval should keep default, got %v", cfg.Dialogue.SweepInterval)
	}
	if cfg.Forms.Dir != "/srv/forms" {
		t.Errorf("forms.dir = %q", cfg.Forms.Dir)
	}
	r := cfg.Storage.Redis
	if cfg.Storage.Type != "redis" || r.Addr != "localhost:6379" || r.DB != 2 || r.TTL != 720*time.Hour || r.Prefix != "formchat" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.SaveRetries != 5 {
		t.Errorf("storage.save_retries = %d", cfg.Storage.SaveRetries)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Debug != "judge,engine" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", `
judge:
  type: rules
  backend: http://typo:8000
`)
	if _, err := Load(tmpFile); err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", "")
	t.Setenv("FORMCHAT_JUDGE", "rules")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("empty file should keep defaults, port = %d", cfg.Server.Port)
	}
}

func TestEnvOverride(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", `
server:
  port: 9090
judge:
  backend_url: http://from-yaml:8000
  model: yaml-model
`)

	t.Setenv("FORMCHAT_BACKEND_URL", "http://from-env:8000")
	t.Setenv("FORMCHAT_MODEL", "env-model")
	t.Setenv("FORMCHAT_PORT", "7070")
	t.Setenv("FORMCHAT_PROVIDER", "vllm")
	t.Setenv("FORMCHAT_JUDGE_TIMEOUT", "3s")
	t.Setenv("FORMCHAT_MAX_ATTEMPTS", "4")
	t.Setenv("FORMCHAT_IDLE_TIMEOUT", "90s")
	t.Setenv("FORMCHAT_FORMS_DIR", "/env/forms")
	t.Setenv("FORMCHAT_STORAGE", "sqlite")
	t.Setenv("FORMCHAT_SQLITE_PATH", "/var/lib/formchat/db.sqlite")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Judge.BackendURL != "http://from-env:8000" || cfg.Judge.Model != "env-model" || cfg.Judge.Provider != "vllm" {
		t.Errorf("judge = %+v", cfg.Judge)
	}
	if cfg.Judge.Timeout != 3*time.Second {
		t.Errorf("judge.timeout = %v, want 3s", cfg.Judge.Timeout)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Dialogue.DefaultMaxAttempts != 4 || cfg.Dialogue.IdleTimeout != 90*time.Second {
		t.Errorf("dialogue = %+v", cfg.Dialogue)
	}
	if cfg.Forms.Dir != "/env/forms" {
		t.Errorf("forms.dir = %q", cfg.Forms.Dir)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/var/lib/formchat/db.sqlite" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestEnvOverrideInvalidValues(t *testing.T) {
	t.Setenv("FORMCHAT_CONFIG", "")
	t.Setenv("FORMCHAT_JUDGE", "rules")
	t.Setenv("FORMCHAT_PORT", "eighty")
	t.Setenv("FORMCHAT_IDLE_TIMEOUT", "soon")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for unparsable env values")
	}
	for _, name := range []string{"FORMCHAT_PORT", "FORMCHAT_IDLE_TIMEOUT"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should mention %s", err, name)
		}
	}
}

func TestFileReference(t *testing.T) {
	keyFile := writeTemp(t, "secret-*.txt", "  sk-from-file-123  \n")
	dsnFile := writeTemp(t, "dsn-*.txt", "  postgres://user:pass@db:5432/app  \n")
	pwFile := writeTemp(t, "redis-*.txt", "hunter2\n")

	tmpFile := writeTemp(t, "config-*.yaml", `
judge:
  backend_url: http://localhost:8000
  model: m
  api_key_file: `+keyFile+`
storage:
  type: postgres
  postgres:
    dsn_file: `+dsnFile+`
  redis:
    password_file: `+pwFile+`
`)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Judge.APIKey != "sk-from-file-123" {
		t.Errorf("judge.api_key = %q, want trimmed file content", cfg.Judge.APIKey)
	}
	if cfg.Storage.Postgres.DSN != "postgres://user:pass@db:5432/app" {
		t.Errorf("storage.postgres.dsn = %q", cfg.Storage.Postgres.DSN)
	}
	if cfg.Storage.Redis.Password != "hunter2" {
		t.Errorf("storage.redis.password = %q", cfg.Storage.Redis.Password)
	}
}

func TestFileReferenceDoesNotOverrideExplicitValue(t *testing.T) {
	secretFile := writeTemp(t, "secret-*.txt", "sk-from-file")
	tmpFile := writeTemp(t, "config-*.yaml", `
judge:
  backend_url: http://localhost:8000
  model: m
  api_key: sk-explicit
  api_key_file: `+secretFile+`
`)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Judge.APIKey != "sk-explicit" {
		t.Errorf("judge.api_key = %q, want explicit value", cfg.Judge.APIKey)
	}
}

func TestFileReferenceMissingFile(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", `
judge:
  type: rules
  api_key_file: /nonexistent/secret
`)
	_, err := Load(tmpFile)
	if err == nil || !strings.Contains(err.Error(), "judge.api_key_file") {
		t.Errorf("expected judge.api_key_file error, got %v", err)
	}
}

func TestFileDiscovery(t *testing.T) {
	explicit := writeTemp(t, "config-*.yaml", `
judge:
  type: rules
forms:
  dir: explicit
`)
	cfg, err := Load(explicit)
	if err != nil {
		t.Fatalf("Load(explicit) error: %v", err)
	}
	if cfg.Forms.Dir != "explicit" {
		t.Errorf("explicit path: forms.dir = %q", cfg.Forms.Dir)
	}

	envFile := writeTemp(t, "envconfig-*.yaml", `
judge:
  type: rules
forms:
  dir: from-env-config
`)
	t.Setenv("FORMCHAT_CONFIG", envFile)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(FORMCHAT_CONFIG) error: %v", err)
	}
	if cfg.Forms.Dir != "from-env-config" {
		t.Errorf("FORMCHAT_CONFIG: forms.dir = %q", cfg.Forms.Dir)
	}

	t.Setenv("FORMCHAT_CONFIG", "")
	t.Setenv("FORMCHAT_JUDGE", "rules")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(no file) error: %v", err)
	}
	if cfg.Forms.Dir != "forms" {
		t.Errorf("no file: forms.dir = %q, want default", cfg.Forms.Dir)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"llm without backend_url", func(c *Config) { c.Judge.Model = "m" }, "judge.backend_url is required"},
		{"llm without model", func(c *Config) { c.Judge.BackendURL = "http://x" }, "judge.model is required"},
		{"rules needs no backend", func(c *Config) { c.Judge.Type = "rules" }, ""},
		{"unknown judge type", func(c *Config) { c.Judge.Type = "oracle" }, "judge.type must be"},
		{"unknown provider", func(c *Config) { validLLM(c); c.Judge.Provider = "ollama" }, "judge.provider must be"},
		{"bad min_confidence", func(c *Config) { validLLM(c); c.Judge.MinConfidence = 1.5 }, "judge.min_confidence"},
		{"negative retries", func(c *Config) { validLLM(c); c.Judge.MaxRetries = -1 }, "judge.max_retries"},
		{"invalid port", func(c *Config) { validLLM(c); c.Server.Port = 0 }, "server.port must be"},
		{"zero max attempts", func(c *Config) { validLLM(c); c.Dialogue.DefaultMaxAttempts = 0 }, "dialogue.default_max_attempts"},
		{"idle timeout without sweep", func(c *Config) { validLLM(c); c.Dialogue.SweepInterval = 0 }, "dialogue.sweep_interval"},
		{"idle timeout disabled", func(c *Config) { validLLM(c); c.Dialogue.IdleTimeout = 0; c.Dialogue.SweepInterval = 0 }, ""},
		{"missing forms dir", func(c *Config) { validLLM(c); c.Forms.Dir = "" }, "forms.dir is required"},
		{"invalid storage type", func(c *Config) { validLLM(c); c.Storage.Type = "mongo" }, "storage.type must be"},
		{"postgres without DSN", func(c *Config) { validLLM(c); c.Storage.Type = "postgres" }, "storage.postgres.dsn"},
		{"redis without addr", func(c *Config) { validLLM(c); c.Storage.Type = "redis" }, "storage.redis.addr"},
		{"sqlite without path", func(c *Config) { validLLM(c); c.Storage.Type = "sqlite"; c.Storage.SQLite.Path = "" }, "storage.sqlite.path"},
		{"storage none", func(c *Config) { validLLM(c); c.Storage.Type = "none" }, ""},
		{"metrics path", func(c *Config) { validLLM(c); c.Observability.Metrics.Path = "metrics" }, "observability.metrics.path"},
		{"log format", func(c *Config) { validLLM(c); c.Logging.Format = "xml" }, "logging.format"},
		{"valid config", validLLM, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidationReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Storage.Type = "mongo"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"judge.backend_url", "server.port", "storage.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return f.Name()
}
