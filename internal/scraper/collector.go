package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/amazon-trend-scraper/internal/fetcher"
	"github.com/maltedev/amazon-trend-scraper/internal/models"
	"github.com/maltedev/amazon-trend-scraper/internal/parser"
	"github.com/maltedev/amazon-trend-scraper/internal/ratelimit"
)

type Options struct {
	TargetCount      int
	MaxPages         int
	FailureThreshold int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.TargetCount < 1 {
		opts.TargetCount = 20
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 5
	}
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 3
	}
	return opts
}

// failureAware is implemented by limiters that adapt their pacing to
// observed outcomes.
type failureAware interface {
	RecordSuccess()
	RecordError()
}

// Collector drives one scrape session: fetch a page, extract fragments,
// normalize, accumulate, move on. Strictly sequential; the limiter paces
// every fetch including the one after a success.
type Collector struct {
	site    Site
	fetcher fetcher.Fetcher
	limiter ratelimit.Limiter
	logger  *slog.Logger
	opts    Options
}

func NewCollector(site Site, f fetcher.Fetcher, limiter ratelimit.Limiter, logger *slog.Logger, opts Options) *Collector {
	return &Collector{
		site:    site,
		fetcher: f,
		limiter: limiter,
		logger:  logger.With("component", "collector", "site", site.Key),
		opts:    opts.withDefaults(),
	}
}

// Collect paginates one listing path until the target count is reached,
// the page budget runs out, or a page comes back empty. Failed pages are
// skipped; once FailureThreshold pages fail back to back the session ends
// early and whatever was accumulated is returned alongside
// ErrTooManyFailures.
func (c *Collector) Collect(ctx context.Context, path string) (*models.Collection, error) {
	col := models.NewCollection(c.site.Key)
	seen := make(map[string]struct{})
	consecutive := 0

	for page := 1; page <= c.opts.MaxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return col, err
		}

		pageURL := c.site.PageURL(path, page)
		c.logger.Info("fetching page", "url", pageURL, "page", page)

		html, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return col, ctx.Err()
			}

			col.Report.PagesSkipped++
			consecutive++
			c.recordError()
			c.logger.Warn("page skipped", "url", pageURL, "error", err, "consecutive_failures", consecutive)

			if consecutive >= c.opts.FailureThreshold {
				return col, fmt.Errorf("aborting after %d consecutive page failures: %w", consecutive, ErrTooManyFailures)
			}
			continue
		}

		consecutive = 0
		c.recordSuccess()
		col.Report.PagesFetched++

		fragments, err := c.site.Parser.ExtractFragments(html)
		if err != nil {
			// Unparseable document is treated like a page with no items.
			c.logger.Warn("failed to parse page", "url", pageURL, "error", err)
			break
		}

		if len(fragments) == 0 {
			c.logger.Info("no items on page, stopping", "page", page)
			break
		}

		done := c.accumulate(col, seen, fragments)
		c.logger.Info("page processed",
			"page", page,
			"accepted", col.Report.Accepted,
			"rejected", col.Report.Rejected,
			"duplicates", col.Report.Duplicates,
		)

		if done {
			break
		}
	}

	return col, nil
}

// CollectTrending walks the site's listing paths in order and returns the
// first non-empty collection, falling through to the next path when a page
// yields nothing.
func (c *Collector) CollectTrending(ctx context.Context) (*models.Collection, error) {
	var last *models.Collection

	for _, path := range c.site.ListingPaths {
		col, err := c.Collect(ctx, path)
		last = mergeReports(last, col)

		if err != nil || len(col.Products) > 0 {
			return last, err
		}

		c.logger.Info("listing path yielded no products, trying next", "path", path)
	}

	return last, ErrNoProducts
}

func (c *Collector) accumulate(col *models.Collection, seen map[string]struct{}, fragments []parser.Fragment) bool {
	for i, frag := range fragments {
		product, err := c.site.Parser.Normalize(frag, i+1, col.ScrapedAt)
		if err != nil {
			col.Report.Rejected++
			c.logger.Debug("fragment rejected", "rank", i+1, "error", err)
			continue
		}

		if _, dup := seen[product.ID]; dup {
			col.Report.Duplicates++
			continue
		}

		seen[product.ID] = struct{}{}
		col.Products = append(col.Products, *product)
		col.Report.Accepted++

		if len(col.Products) >= c.opts.TargetCount {
			return true
		}
	}

	return false
}

func (c *Collector) recordSuccess() {
	if fa, ok := c.limiter.(failureAware); ok {
		fa.RecordSuccess()
	}
}

func (c *Collector) recordError() {
	if fa, ok := c.limiter.(failureAware); ok {
		fa.RecordError()
	}
}

// mergeReports folds the running counters of earlier (empty) paths into the
// current collection so the final report covers the whole session.
func mergeReports(prev, cur *models.Collection) *models.Collection {
	if prev == nil {
		return cur
	}

	cur.Report.PagesFetched += prev.Report.PagesFetched
	cur.Report.PagesSkipped += prev.Report.PagesSkipped
	cur.Report.Accepted += prev.Report.Accepted
	cur.Report.Rejected += prev.Report.Rejected
	cur.Report.Duplicates += prev.Report.Duplicates
	return cur
}
