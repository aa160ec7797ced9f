// webhooksd runs the webhook retry sweeper against a SQL delivery ledger and
// exposes Prometheus metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"

	webhooks "github.com/goliatone/go-webhooks"
	"github.com/goliatone/go-webhooks/adapters/gologger"
	webhooksprom "github.com/goliatone/go-webhooks/adapters/prometheus"
	"github.com/goliatone/go-webhooks/core"
	webhookmigrations "github.com/goliatone/go-webhooks/migrations"
	"github.com/goliatone/go-webhooks/security"
	sqlstore "github.com/goliatone/go-webhooks/store/sql"
)

func main() {
	logger := newSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := run(logger); err != nil {
		logger.Error("webhooksd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slogLogger) error {
	cfg, err := loadDaemonConfig(os.LookupEnv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := openPersistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = cfg.CacheTTL
	matchCache, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("webhooksd: match cache: %w", err)
	}
	factoryOpts := []sqlstore.FactoryOption{sqlstore.WithMatchCache(matchCache)}
	if len(cfg.SecretKeys) > 0 {
		ring, ringErr := newSecretKeyring(cfg.SecretKeys)
		if ringErr != nil {
			return ringErr
		}
		factoryOpts = append(factoryOpts, sqlstore.WithSubscriptionSecretCipher(ring))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		return err
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(
		promclient.NewGoCollector(),
		promclient.NewProcessCollector(promclient.ProcessCollectorOpts{}),
	)

	logging := gologger.NewLogging(nil, logger)
	svcOpts := append(logging.ServiceOptions(),
		webhooks.WithConfigProvider(core.NewCfgxConfigProvider(envRawLoader{})),
		webhooks.WithPersistenceClient(client),
		webhooks.WithRepositoryFactory(factory),
		webhooks.WithMetricsRecorder(webhooksprom.NewRecorder(registry, webhooksprom.Config{})),
	)
	svc, err := webhooks.NewService(core.Config{}, svcOpts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := client.DB().PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return runSweeper(groupCtx, svc, cfg, logging.Named("sweeper"))
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("webhooksd stopped")
	return nil
}

// newSecretKeyring versions keys by position from newest to oldest, so
// WEBHOOKS_SECRET_KEYS=new,old seals with version 2 and opens version 1.
func newSecretKeyring(material []string) (*security.Keyring, error) {
	keys := make([]*security.AppKey, 0, len(material))
	for i, value := range material {
		key, err := security.NewAppKeyFromString(value,
			security.WithKeyID("webhooksd"),
			security.WithVersion(len(material)-i),
		)
		if err != nil {
			return nil, fmt.Errorf("webhooksd: secret key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return security.NewKeyring(keys[0], keys[1:]...)
}

// runSweeper retries due deliveries on every tick until ctx is done. A
// failed sweep is logged and the next tick tries again.
func runSweeper(ctx context.Context, svc *webhooks.Service, cfg daemonConfig, logger glog.Logger) error {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := svc.RetryDue(ctx, cfg.SweepLimit)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("retry sweep failed", "error", err)
				continue
			}
			if stats.Scanned > 0 {
				logger.Info("retry sweep finished",
					"scanned", stats.Scanned,
					"delivered", stats.Delivered,
					"failed", stats.Failed,
					"skipped", stats.Skipped,
				)
			}
		}
	}
}

func openPersistence(ctx context.Context, cfg daemonConfig) (*persistence.Client, error) {
	dialectName, err := webhookmigrations.DialectForDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}

	var dialect schema.Dialect
	driver := cfg.DBDriver
	switch dialectName {
	case webhookmigrations.DialectPostgres:
		dialect = pgdialect.New()
		driver = "postgres"
	case webhookmigrations.DialectSQLite:
		dialect = sqlitedialect.New()
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("webhooksd: unsupported dialect %q", dialectName)
	}

	sqlDB, err := sql.Open(driver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("webhooksd: open database: %w", err)
	}
	if dialectName == webhookmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver: driver,
		server: cfg.DBDSN,
		debug:  cfg.DBDebug,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("webhooksd: persistence client: %w", err)
	}

	if _, err := webhookmigrations.RegisterDialect(ctx, dialectName, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("webhooksd: migrate: %w", err)
	}
	return client, nil
}
