package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/attribution/internal/config"
	"example.com/attribution/internal/ingest"
	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/pipeline"
	"example.com/attribution/internal/ratelimit"
	"example.com/attribution/internal/sink/meta"
	"example.com/attribution/internal/sink/timeseries"
	spg "example.com/attribution/internal/storage/postgres"
	transport "example.com/attribution/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().Str("env", cfg.Environment).Str("port", cfg.HTTP.Port).Msg("config loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := spg.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, cfg.Postgres.MigrationsDir); err != nil {
		logging.Fatal().Err(err).Msg("migrations")
	}
	logging.Info().Str("dir", cfg.Postgres.MigrationsDir).Msg("db: migrations applied")

	var (
		store     ratelimit.Store
		dedupPing func(context.Context) error
	)
	if cfg.Redis.URL != "" {
		rdb, err := ratelimit.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logging.Fatal().Err(err).Msg("redis connect")
		}
		defer rdb.Close()
		store = ratelimit.NewRedisStore(rdb)
		dedupPing = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logging.Info().Msg("dedup: redis store")
	} else {
		store = ratelimit.NewMemoryStore(time.Now)
		logging.Warn().Msg("dedup: in-memory store, windows are per process")
	}

	ads := meta.New(meta.Config{
		APIHost:             cfg.Meta.APIHost,
		APIVersion:          cfg.Meta.APIVersion,
		Environment:         cfg.Environment,
		TestEventCode:       cfg.Meta.TestEventCode,
		Timeout:             cfg.Meta.Timeout,
		BreakerMaxRequests:  cfg.Meta.BreakerMaxRequests,
		BreakerInterval:     cfg.Meta.BreakerInterval,
		BreakerTimeout:      cfg.Meta.BreakerTimeout,
		BreakerMinRequests:  cfg.Meta.BreakerMinRequests,
		BreakerFailureRatio: cfg.Meta.BreakerFailureRatio,
	})
	ts := timeseries.New(timeseries.Config{
		Host:              cfg.TimeSeries.Host,
		Token:             cfg.TimeSeries.Token,
		Timeout:           cfg.TimeSeries.Timeout,
		DefaultRetryAfter: cfg.TimeSeries.DefaultRetryAfter,
	})

	p := pipeline.New(ratelimit.NewGate(store), spg.NewCounters(db.Pool), ads, ts, pipeline.Options{
		DedupLimit:    cfg.Dedup.Limit,
		ClickWindow:   cfg.ClickWindow(),
		EventWindow:   cfg.Dedup.EventWindow,
		AdTimeout:     cfg.Meta.Timeout,
		IngestTimeout: cfg.TimeSeries.IngestTimeout,
	})

	// The queue outlives the signal so redirects still in flight during
	// shutdown can hand off their clicks.
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	ingestor := ingest.NewIngestor(cfg.Ingest.QueueMaxSize, cfg.Ingest.Workers, cfg.Ingest.DrainTimeout)
	ingestor.Start(ingestCtx)
	logging.Info().
		Int("queue", cfg.Ingest.QueueMaxSize).
		Int("workers", cfg.Ingest.Workers).
		Msg("ingest: started")

	deps := &transport.ServerDeps{
		Cfg:       cfg,
		Pipeline:  p,
		Ingestor:  ingestor,
		Store:     db,
		DedupPing: dedupPing,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel2()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown")
	}
	stopIngest()
	ingestor.Wait()
	logging.Info().Msg("stopped")
}
