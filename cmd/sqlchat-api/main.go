package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sqlchat/sqlchat/internal/agent"
	"github.com/sqlchat/sqlchat/internal/api"
	"github.com/sqlchat/sqlchat/internal/api/uistatic"
	"github.com/sqlchat/sqlchat/internal/auth"
	"github.com/sqlchat/sqlchat/internal/chatbot"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/executor"
	historypostgres "github.com/sqlchat/sqlchat/internal/history/postgres"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/schema"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error("sqlchat-api failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	dialect, err := database.DialectForDriver(cfg.Database.Driver)
	if err != nil {
		return err
	}
	db, err := database.Open(startCtx, database.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database", slog.Any("error", err))
		}
	}()

	catalog, err := schema.NewCatalog(db, dialect, cfg.Database.SchemaName)
	if err != nil {
		return err
	}
	description, err := schema.Describe(startCtx, catalog)
	if err != nil {
		return err
	}
	logger.Info("schema described", slog.Int("tables", len(description.Tables)), slog.String("dialect", string(dialect)))

	invoker, err := agent.NewOpenAIInvoker(agent.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	}, agent.NewPrompt(description, dialect))
	if err != nil {
		return fmt.Errorf("initialize agent (set SQLCHAT_AI_API_KEY or GROQ_API_KEY): %w", err)
	}

	readOnly := cfg.Chat.DirectSQLReadOnly
	if readOnly && dialect != database.DialectPostgres {
		logger.Warn("read-only transactions are only enforced on postgres; direct sql runs read-write",
			slog.String("dialect", string(dialect)))
		readOnly = false
	}
	exec := executor.New(db, executor.Config{
		Timeout:  cfg.Database.QueryTimeout,
		ReadOnly: readOnly,
		MaxRows:  cfg.Chat.MaxResultRows,
	}, logger)

	bot := &chatbot.Bot{
		Executor: exec,
		Agent:    invoker,
		Logger:   logger,
	}
	deps := api.Dependencies{
		Logger:            logger,
		Chat:              bot,
		Schema:            &description,
		Static:            uistatic.Handler(),
		DependencyTimeout: time.Second,
	}
	readiness := []api.ReadinessCheck{api.CheckDatabase(db), api.CheckAIConfig(cfg)}

	historyDB, err := openHistoryDB(startCtx, cfg, dialect, db, logger)
	if err != nil {
		return err
	}
	if historyDB != nil {
		if historyDB != db {
			defer func() { _ = historyDB.Close() }()
		}
		repo := historypostgres.NewRepository(historyDB)
		bot.Recorder = repo
		deps.History = repo
		readiness = append(readiness, repo.HealthCheck)
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return err
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
		deps.OptionalAuth = auth.Optional(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down api server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return err
		}
		return nil
	})
	return group.Wait()
}

// openHistoryDB returns the pool query history is written to, or nil when
// history is disabled. History lives in Postgres; it shares the main pool when
// both point at the same database.
func openHistoryDB(ctx context.Context, cfg config.Config, dialect database.Dialect, db *sql.DB, logger *slog.Logger) (*sql.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	if cfg.History.DSN == cfg.Database.DSN {
		if dialect == database.DialectPostgres {
			return db, nil
		}
		logger.Warn("query history needs a postgres database; set SQLCHAT_HISTORY_DSN",
			slog.String("dialect", string(dialect)))
		return nil, nil
	}
	return database.Open(ctx, database.DBConfig{
		Driver:          config.DriverPostgres,
		DSN:             cfg.History.DSN,
		MaxOpenConns:    2,
		MaxIdleConns:    2,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}
