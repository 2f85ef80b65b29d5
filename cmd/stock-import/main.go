package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/pdv-backend/internal/storage/cache"
	"github.com/xenking/pdv-backend/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		redisURL    string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz restock feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis holding the API's catalog cache (or REDIS_URL env); empty skips invalidation")
	flag.BoolVar(&dryRun, "dry-run", false, "scan feeds and report totals without updating stock")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, redisURL, dryRun); err != nil {
		slog.Error("stock import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, redisURL string, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		slog.Info("no feeds to import", slog.String("dir", dataDir))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	ids, err := postgres.NewProductRepository(pool).IDs(ctx)
	if err != nil {
		return errors.Wrap(err, "load product ids")
	}
	slog.Info("scanning feeds", slog.Int("files", len(files)), slog.Int("catalog_products", len(ids)))

	res, err := scanFeeds(ctx, files, knownProducts(ids))
	if err != nil {
		return errors.Wrap(err, "scan feeds")
	}

	restocks := res.restocks()
	slog.Info("feeds merged",
		slog.Int("products", len(restocks)),
		slog.Int("filtered", res.filtered),
		slog.Int("malformed", res.malformed),
	)
	if dryRun {
		return nil
	}

	var invalidate func(context.Context) error
	if redisURL != "" {
		rdb, err := cache.NewClient(redisURL, "", 0)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()
		invalidate = func(ctx context.Context) error {
			return cache.InvalidateProducts(ctx, rdb)
		}
	}

	return importStock(ctx, postgres.NewStockStore(pool), invalidate, restocks)
}
