package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/custupload/internal/config"
	"github.com/JonMunkholm/custupload/internal/core"
	"github.com/JonMunkholm/custupload/internal/database"
	"github.com/JonMunkholm/custupload/internal/jobstore"
	"github.com/JonMunkholm/custupload/internal/keylock"
	"github.com/JonMunkholm/custupload/internal/logging"
	"github.com/JonMunkholm/custupload/internal/web"
)

// customerStore is what the service and the listing endpoint need from storage.
type customerStore interface {
	core.Repository
	core.CustomerLister
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	checks := make(map[string]web.Pinger)

	var store customerStore
	switch strings.ToLower(cfg.Database.Driver) {
	case config.DriverMemory:
		mem := database.NewMemoryStore()
		store = mem
		checks["database"] = mem
		slog.Warn("using in-memory customer store, data is lost on restart")

	default:
		pool, err := connectPostgres(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				slog.Error("failed to apply schema", "error", err)
				os.Exit(1)
			}
		}
		store = database.NewCustomerRepository(pool)
		checks["database"] = pool
	}

	var (
		locks   core.KeyLocker = keylock.NewLocal()
		reports core.JobStore  = jobstore.NewMemory()
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		locks = keylock.NewRedis(client, cfg.Redis.LockTTL)
		reports = jobstore.NewRedis(client)
		checks["redis"] = redisPinger{client: client}
		slog.Info("connected to redis", "addr", opts.Addr)
	}

	service := core.NewService(store, locks, reports, core.ServiceConfig{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Timeout:       cfg.Upload.Timeout,
		MaxReportRows: cfg.Upload.MaxReportRows,
		Retention:     cfg.Upload.Retention,
		NaturalKey:    cfg.Upload.NaturalKey,
	})

	server := web.NewServer(cfg, service, store, checks)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stops new requests and waits for synchronous uploads in flight
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if active := service.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for uploads to complete", "active", active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}
