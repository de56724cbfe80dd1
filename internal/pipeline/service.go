package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/amazon-trend-scraper/internal/browser"
	"github.com/maltedev/amazon-trend-scraper/internal/config"
	"github.com/maltedev/amazon-trend-scraper/internal/fetcher"
	"github.com/maltedev/amazon-trend-scraper/internal/models"
	"github.com/maltedev/amazon-trend-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-trend-scraper/internal/scraper"
	"github.com/maltedev/amazon-trend-scraper/internal/storage"
)

var ErrUnknownSite = errors.New("unknown site key")

// SnapshotArchiver copies a persisted session into secondary storage.
type SnapshotArchiver interface {
	InsertSnapshot(ctx context.Context, col *models.Collection) error
}

// CompletionPublisher announces a persisted session to downstream consumers.
type CompletionPublisher interface {
	PublishSnapshotCompleted(ctx context.Context, col *models.Collection, snapshotPath string) error
}

// Service runs the scrape-persist-publish pipeline end to end. The CLI and
// the HTTP API both drive it; store and publisher are optional extras that
// never fail a run.
type Service struct {
	cfg       *config.Config
	repo      *storage.Repository
	store     SnapshotArchiver
	publisher CompletionPublisher
	logger    *slog.Logger
}

// Result is the outcome of one pipeline run.
type Result struct {
	Collection   *models.Collection `json:"collection"`
	SnapshotPath string             `json:"snapshot_path"`
}

func NewService(cfg *config.Config, repo *storage.Repository, store SnapshotArchiver, publisher CompletionPublisher, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "pipeline"),
	}
}

// Run scrapes the site's trending pages, persists the collection and
// publishes a completion event. A session that yields zero products is an
// error; a partial session is not.
func (s *Service) Run(ctx context.Context, siteKey string) (*Result, error) {
	site, ok := scraper.SiteByKey(siteKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, siteKey)
	}
	return s.runSite(ctx, site)
}

func (s *Service) runSite(ctx context.Context, site scraper.Site) (*Result, error) {
	f, cleanup, err := s.newFetcher()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	limiter := ratelimit.NewAdaptiveLimiter(s.cfg.Scraper.RateLimitMin, s.cfg.Scraper.RateLimitMax)
	collector := scraper.NewCollector(site, f, limiter, s.logger, scraper.Options{
		TargetCount:      s.cfg.Scraper.TargetCount,
		MaxPages:         s.cfg.Scraper.MaxPages,
		FailureThreshold: s.cfg.Scraper.FailureThreshold,
	})

	col, err := collector.CollectTrending(ctx)
	if err != nil && !errors.Is(err, scraper.ErrTooManyFailures) {
		return nil, err
	}
	if err != nil {
		// Partial session; keep what was collected.
		s.logger.Warn("session ended early", "error", err, "products", len(col.Products))
	}
	if len(col.Products) == 0 {
		return nil, scraper.ErrNoProducts
	}

	path, err := s.repo.Save(col)
	if err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	s.logger.Info("session persisted", "path", path, "products", len(col.Products))

	if s.store != nil {
		if err := s.store.InsertSnapshot(ctx, col); err != nil {
			s.logger.Error("failed to archive session", "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSnapshotCompleted(ctx, col, path); err != nil {
			s.logger.Error("failed to publish completion event", "error", err)
		}
	}

	return &Result{Collection: col, SnapshotPath: path}, nil
}

// newFetcher builds the configured fetcher kind. The returned cleanup tears
// down the browser when one was started.
func (s *Service) newFetcher() (fetcher.Fetcher, func(), error) {
	switch s.cfg.Scraper.Fetcher {
	case "browser":
		b, err := browser.New(&browser.Options{
			Headless:       s.cfg.Browser.Headless,
			Timeout:        s.cfg.Browser.Timeout,
			ViewportWidth:  s.cfg.Browser.ViewportWidth,
			ViewportHeight: s.cfg.Browser.ViewportHeight,
			AcceptLanguage: s.cfg.Browser.AcceptLanguage,
			Locale:         s.cfg.Browser.Locale,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start browser: %w", err)
		}
		return fetcher.NewBrowser(b, s.cfg.Scraper.MaxRetries, s.logger), func() { b.Close() }, nil

	default:
		f := fetcher.NewHTTP(fetcher.Options{
			MaxRetries:  s.cfg.Scraper.MaxRetries,
			BackoffBase: s.cfg.Scraper.BackoffBase,
			Timeout:     s.cfg.Scraper.RequestTimeout,
			UserAgents:  s.cfg.Scraper.UserAgents,
		}, s.logger)
		return f, func() {}, nil
	}
}
