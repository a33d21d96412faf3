package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wxstats/internal/config"
	db "wxstats/internal/db"
	httpapi "wxstats/internal/httpapi"
	weather "wxstats/internal/modules/weather"
	"wxstats/internal/modules/weather/parser"
	"wxstats/internal/modules/weather/repository"
	"wxstats/internal/modules/weather/service"
	"wxstats/internal/mqtt"
	"wxstats/internal/observability"
	"wxstats/internal/pipeline"
)

const (
	notifyTimeout = 10 * time.Second
	pushTimeout   = 10 * time.Second
)

func logConfig(logger *slog.Logger, cfg config.Config) {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"dataDir", cfg.DataDir,
		"parseErrorPolicy", cfg.ParsePolicy,
		"duplicatePolicy", cfg.DuplicatePolicy,
		"mqttBroker", cfg.MQTT.Broker,
		"mqttTopic", cfg.MQTT.Topic,
		"pushgatewayURL", cfg.PushgatewayURL,
	)
}

// openStore opens the database and applies pending migrations. The returned
// func closes it and logs a failure.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, func(), error) {
	logConfig(logger, cfg)
	conn, err := db.OpenMigrated(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("database ready")
	return conn, func() {
		if err := db.Close(conn); err != nil {
			logger.Error("db close", "error", err)
		}
	}, nil
}

func newDriver(conn *sql.DB, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) *pipeline.Driver {
	repo := repository.NewRepository(logger)
	skipped := metrics.ParseFailures.WithLabelValues("skipped")
	return pipeline.New(
		parser.New(cfg.ParsePolicy, logger, parser.WithSkipHandler(func(*parser.ParseError) { skipped.Inc() })),
		service.NewIngester(conn, repo, cfg.DuplicatePolicy, logger),
		service.NewAggregator(conn, repo),
		service.NewStatsUpserter(conn, repo),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	)
}

// RunMigrate applies pending migrations and exits.
func RunMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	_, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closeStore()
	return nil
}

// RunIngest loads every file of the data directory into the store.
func RunIngest(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	conn, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics, reg := observability.NewBatchMetrics()
	defer pushMetrics(ctx, cfg, logger, "ingest", reg)

	driver := newDriver(conn, cfg, logger, metrics)
	summary, err := driver.RunIngestion(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	notify(ctx, cfg, logger, "ingest", summary)
	return nil
}

// RunAggregate recomputes the yearly stats over all stored records.
func RunAggregate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	conn, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics, reg := observability.NewBatchMetrics()
	defer pushMetrics(ctx, cfg, logger, "aggregate", reg)

	driver := newDriver(conn, cfg, logger, metrics)
	summary, err := driver.RunAggregation(ctx)
	if err != nil {
		return err
	}
	notify(ctx, cfg, logger, "aggregate", summary)
	return nil
}

// notify publishes a run summary. Failures are logged and never fail the run.
func notify(ctx context.Context, cfg config.Config, logger *slog.Logger, run string, summary any) {
	notifier := mqtt.NewNotifier(cfg.MQTT, logger)
	defer notifier.Close()

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := notifier.PublishSummary(notifyCtx, run, summary); err != nil {
		logger.Warn("run summary not published", "run", run, "error", err)
	}
}

// pushMetrics sends the metrics of a finished run, failed or not, to the
// Pushgateway. Failures are logged and never fail the run.
func pushMetrics(ctx context.Context, cfg config.Config, logger *slog.Logger, run string, reg *prometheus.Registry) {
	if cfg.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := observability.Push(pushCtx, cfg.PushgatewayURL, run, reg); err != nil {
		logger.Warn("run metrics not pushed", "run", run, "error", err)
		return
	}
	logger.Debug("run metrics pushed", "run", run, "url", cfg.PushgatewayURL)
}

// RunServe serves the read API until ctx is cancelled.
func RunServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	conn, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	mux := httpapi.NewMux(conn)
	weather.RegisterFeature(mux, conn, logger)
	srv := httpapi.NewServer(cfg, mux, logger, metrics)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
