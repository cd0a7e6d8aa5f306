package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqlchat/sqlchat/internal/archive"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/database"
	historypostgres "github.com/sqlchat/sqlchat/internal/history/postgres"
	"github.com/sqlchat/sqlchat/internal/observability"
	s3store "github.com/sqlchat/sqlchat/internal/storage/s3"
)

func main() {
	once := flag.Bool("once", false, "run a single archive cycle and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("sqlchat-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DBConfig{
		Driver:          config.DriverPostgres,
		DSN:             cfg.History.DSN,
		MaxOpenConns:    2,
		MaxIdleConns:    2,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open history db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := s3store.New(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	service := &archive.Service{
		History:     historypostgres.NewRepository(db),
		ObjectStore: store,
		Verifier:    archive.DuckDBVerifier{},
		Config: archive.Config{
			Interval:  cfg.Archive.Interval,
			MaxAge:    cfg.Archive.MaxAge,
			BatchSize: cfg.Archive.BatchSize,
		},
		Logger: logger,
	}

	if *once {
		summary, err := service.RunOnce(ctx)
		if err != nil {
			logger.Error("archive run failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("archive run finished",
			slog.Int("batches", summary.Batches),
			slog.Int64("rows_archived", summary.RowsArchived),
			slog.String("bucket", store.Bucket()),
		)
		return
	}

	logger.Info("starting archiver",
		slog.Duration("interval", cfg.Archive.Interval),
		slog.Duration("max_age", cfg.Archive.MaxAge),
		slog.String("bucket", store.Bucket()),
	)
	if err := service.Run(ctx); err != nil {
		logger.Error("archiver stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
