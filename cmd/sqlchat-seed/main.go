package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/database"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/shop"
)

func main() {
	defaults := shop.DefaultSeedOptions()
	reset := flag.Bool("reset", false, "delete existing demo data before seeding")
	customers := flag.Int("customers", defaults.Customers, "number of customers to generate")
	products := flag.Int("products", defaults.Products, "number of products to generate")
	orders := flag.Int("orders", defaults.Orders, "number of orders to generate")
	seed := flag.Int64("seed", defaults.Seed, "random seed; the same seed yields the same data")
	flag.Parse()

	cfg, err := config.LoadFromEnv("sqlchat-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	dialect, err := database.DialectForDriver(cfg.Database.Driver)
	if err != nil {
		logger.Error("unsupported database driver", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, database.DBConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	data, err := shop.Generate(shop.SeedOptions{
		Customers: *customers,
		Products:  *products,
		Orders:    *orders,
		Seed:      *seed,
	})
	if err != nil {
		logger.Error("invalid seed options", slog.Any("error", err))
		os.Exit(1)
	}

	started := time.Now()
	counts, err := shop.NewRepository(db, dialect).Seed(ctx, data, *reset)
	if err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo data seeded",
		slog.Bool("reset", *reset),
		slog.Int64("clientes", counts.Customers),
		slog.Int64("productos", counts.Products),
		slog.Int64("pedidos", counts.Orders),
		slog.Int64("detalles_pedido", counts.Lines),
		slog.Duration("duration", time.Since(started)),
	)
}
