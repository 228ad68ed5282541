// Command server runs the formchat dialogue server.
//
// Configuration is read from a YAML file (-config, FORMCHAT_CONFIG,
// ./config.yaml or /etc/formchat/config.yaml) with FORMCHAT_* environment
// overrides. A .env file in the working directory is loaded first.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/formchat/pkg/config"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/engine"
	"github.com/rhuss/formchat/pkg/form"
	"github.com/rhuss/formchat/pkg/judge"
	"github.com/rhuss/formchat/pkg/observability"
	"github.com/rhuss/formchat/pkg/provider/openaicompat"
	"github.com/rhuss/formchat/pkg/session"
	"github.com/rhuss/formchat/pkg/storage/memory"
	"github.com/rhuss/formchat/pkg/storage/postgres"
	"github.com/rhuss/formchat/pkg/storage/redis"
	"github.com/rhuss/formchat/pkg/storage/sqlite"
	"github.com/rhuss/formchat/pkg/transport"
	transporthttp "github.com/rhuss/formchat/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := form.LoadDir(cfg.Forms.Dir, cfg.Dialogue.DefaultMaxAttempts)
	if err != nil {
		return fmt.Errorf("loading forms: %w", err)
	}
	slog.Info("forms loaded", "dir", cfg.Forms.Dir, "count", catalog.Len())

	j, closeJudge, err := newJudge(cfg.Judge)
	if err != nil {
		return err
	}
	defer closeJudge()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	var saver engine.SubmissionSaver
	if store != nil {
		defer store.Close()
		saver = store
	}

	sessions := session.NewStore(
		session.WithIdleTimeout(cfg.Dialogue.IdleTimeout),
		session.WithClosedRetention(cfg.Dialogue.ClosedRetention),
	)

	// Zero retries in the engine config means "use the default".
	retries := cfg.Storage.SaveRetries
	if retries == 0 {
		retries = -1
	}
	eng, err := engine.New(catalog, j, sessions, saver, engine.Config{
		SweepInterval:  cfg.Dialogue.SweepInterval,
		PersistTimeout: cfg.Storage.SaveTimeout,
		PersistRetries: retries,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		transporthttp.WithRoute("GET /healthz", healthHandler(store)),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts,
			transporthttp.WithRoute("GET "+cfg.Observability.Metrics.Path, promhttp.Handler()),
			transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware),
		)
	}

	backend := transporthttp.Backend{Turns: eng, Sessions: eng, Forms: eng}
	if store != nil {
		backend.Submissions = store
	}

	slog.Info("starting formchat",
		"port", cfg.Server.Port,
		"judge", cfg.Judge.Type,
		"storage", cfg.Storage.Type,
		"idle_timeout", cfg.Dialogue.IdleTimeout,
	)
	srv := transporthttp.NewServer(backend, opts...)
	if cfg.Dialogue.IdleTimeout > 0 {
		conns := srv.Adapter().Conns()
		eng.OnExpire(func(id string) { conns.Cancel(id) })
		go eng.Run(ctx)
	}
	return srv.Run(ctx)
}

// newJudge builds the configured judge. The returned func releases the
// backend client.
func newJudge(cfg config.JudgeConfig) (judge.Judge, func(), error) {
	if cfg.Type == "rules" {
		return judge.Rules{}, func() {}, nil
	}

	client, err := openaicompat.New(openaicompat.Config{
		Name:         cfg.Provider,
		BaseURL:      cfg.BackendURL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		ModelMapping: cfg.ModelMapping,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating judge backend: %w", err)
	}

	j := judge.NewLLM(client, cfg.Model,
		judge.WithTimeout(cfg.Timeout),
		judge.WithMaxRetries(cfg.MaxRetries),
		judge.WithMinConfidence(cfg.MinConfidence),
	)
	slog.Info("judge configured", "provider", cfg.Provider, "backend", cfg.BackendURL, "model", cfg.Model)
	return j, func() { client.Close() }, nil
}

// newStore opens the configured submission store, or returns nil when
// persistence is disabled.
func newStore(ctx context.Context, cfg config.StorageConfig) (transport.SubmissionStore, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return s, nil
	case "redis":
		s, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis store: %w", err)
		}
		slog.Info("storage enabled", "type", "redis", "addr", cfg.Redis.Addr)
		return s, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return s, nil
	default:
		slog.Info("storage disabled")
		return nil, nil
	}
}

func healthHandler(store transport.SubmissionStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.HealthCheck(r.Context()); err != nil {
				slog.Warn("health check failed", "error", err)
				http.Error(w, "storage unavailable\n", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
}
