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

	"github.com/JonMunkholm/soedash/internal/audit"
	"github.com/JonMunkholm/soedash/internal/config"
	"github.com/JonMunkholm/soedash/internal/dashboard"
	"github.com/JonMunkholm/soedash/internal/geo"
	"github.com/JonMunkholm/soedash/internal/logging"
	"github.com/JonMunkholm/soedash/internal/search"
	"github.com/JonMunkholm/soedash/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"central", cfg.Data.CentralPath,
		"province", cfg.Data.ProvincePath,
		"reload_interval", cfg.Data.ReloadInterval,
		"audit_enabled", cfg.Database.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Ingest audit log, only with a database
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Database.Enabled() {
		pool, err := connectDB(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to audit database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := audit.NewPGRecorder(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to create audit schema", "error", err)
			os.Exit(1)
		}
		recorder = pg
	}

	catalog, err := catalogFromConfig(&cfg.Data)
	if err != nil {
		logger.Error("invalid source catalog", "error", err)
		os.Exit(1)
	}

	var boundaries geo.Source
	if cfg.Geo.Enabled {
		boundaries = geo.NewProvider(cfg.Geo.URL, cfg.Geo.FetchTimeout, logger)
	}

	index, err := search.New(logger)
	if err != nil {
		logger.Error("failed to create search index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	service, err := dashboard.NewService(dashboard.Options{
		Catalog:      catalog,
		CacheEntries: cfg.Cache.MaxEntries,
		Regions: dashboard.RegionPolicy{
			Excluded: cfg.Data.ExcludedRegions,
			National: cfg.Data.NationalRegions,
		},
		Geo:      boundaries,
		Index:    index,
		Recorder: recorder,
		Limiter:  dashboard.NewParseLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	defer service.Close()

	// A failed first load is not fatal: the status page reports it and the
	// scheduler retries once the file changes.
	if err := service.Reload(ctx); err != nil {
		logger.Warn("initial load incomplete", "error", err)
	}

	server, err := web.NewServer(cfg, service)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	if cfg.Data.ReloadInterval > 0 {
		go service.StartReloadScheduler(jobCtx, cfg.Data.ReloadInterval)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for workbook validations in flight
		if status := service.Limiter().Status(); status.Active > 0 {
			logger.Info("waiting for validations to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				logger.Warn("validations did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// connectDB opens and verifies the audit database pool.
func connectDB(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
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
		slog.Info("connected to audit database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

// catalogFromConfig registers the configured source workbooks.
func catalogFromConfig(cfg *config.DataConfig) (*dashboard.Catalog, error) {
	var defs []dashboard.Definition
	if cfg.CentralPath != "" {
		defs = append(defs, dashboard.Definition{
			Key:    "central",
			Title:  "中央企业",
			Level:  dashboard.LevelCentral,
			Path:   cfg.CentralPath,
			Schema: cfg.CentralSchema(),
		})
	}
	if cfg.ProvincePath != "" {
		defs = append(defs, dashboard.Definition{
			Key:         "province",
			Title:       "地方国资",
			Level:       dashboard.LevelProvince,
			Path:        cfg.ProvincePath,
			Schema:      cfg.ProvinceSchema(),
			SheetColumn: cfg.SourceColumn,
		})
	}
	return dashboard.NewCatalog(defs...)
}
