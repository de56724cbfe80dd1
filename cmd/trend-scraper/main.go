package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-trend-scraper/internal/analysis"
	"github.com/maltedev/amazon-trend-scraper/internal/config"
	"github.com/maltedev/amazon-trend-scraper/internal/database"
	"github.com/maltedev/amazon-trend-scraper/internal/events"
	"github.com/maltedev/amazon-trend-scraper/internal/models"
	"github.com/maltedev/amazon-trend-scraper/internal/pipeline"
	"github.com/maltedev/amazon-trend-scraper/internal/scraper"
	"github.com/maltedev/amazon-trend-scraper/internal/storage"
)

func main() {
	siteFlag := flag.String("site", "", "site key to scrape (amazon_in, daraz_np); overrides SCRAPER_SITE")
	csvFlag := flag.Bool("csv", false, "also export the session as CSV next to the JSON snapshot")
	analyzeOnly := flag.Bool("analyze", false, "skip scraping and analyze the latest stored session")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	site := cfg.Scraper.Site
	if *siteFlag != "" {
		site = *siteFlag
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, site, *csvFlag, *analyzeOnly, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, site string, exportCSV, analyzeOnly bool, logger *slog.Logger) error {
	repo, err := storage.NewRepository(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open data dir: %w", err)
	}

	analyzer := analysis.NewAnalyzer(cfg.Analysis.Currency, logger)

	if analyzeOnly {
		col, err := repo.LoadLatest(site)
		if err != nil {
			return err
		}
		report(logger, analyzer, col)
		return nil
	}

	// Interface variables stay untyped-nil unless the backing service is
	// enabled; the pipeline tests against nil.
	var store pipeline.SnapshotArchiver
	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{DSN: cfg.Database.DSN()})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		snapshots := database.NewSnapshotStore(db)
		if err := snapshots.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		store = snapshots
	}

	var publisher pipeline.CompletionPublisher
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		publisher = events.NewPublisher(redisClient, cfg.Redis.Stream, logger)
	}

	service := pipeline.NewService(cfg, repo, store, publisher, logger)

	result, err := service.Run(ctx, site)
	if err != nil {
		if errors.Is(err, scraper.ErrNoProducts) {
			return fmt.Errorf("no products collected from %s", site)
		}
		return err
	}

	col := result.Collection
	logger.Info("session complete",
		"site", col.Source,
		"session_id", col.SessionID,
		"products", len(col.Products),
		"pages_fetched", col.Report.PagesFetched,
		"pages_skipped", col.Report.PagesSkipped,
		"rejected", col.Report.Rejected,
		"duplicates", col.Report.Duplicates,
		"snapshot", result.SnapshotPath,
	)

	if exportCSV {
		csvPath := csvPathFor(result.SnapshotPath)
		if err := repo.ExportCSV(col, csvPath); err != nil {
			return fmt.Errorf("failed to export csv: %w", err)
		}
		logger.Info("csv exported", "path", csvPath)
	}

	report(logger, analyzer, col)
	return nil
}

func report(logger *slog.Logger, analyzer *analysis.Analyzer, col *models.Collection) {
	summary := analyzer.Analyze(col)
	for _, insight := range analyzer.Insights(summary) {
		logger.Info("insight", "text", insight)
	}
}

func csvPathFor(snapshotPath string) string {
	ext := filepath.Ext(snapshotPath)
	return snapshotPath[:len(snapshotPath)-len(ext)] + ".csv"
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
