package fetcher

import (
	"context"
	"log/slog"

	"github.com/maltedev/amazon-trend-scraper/internal/browser"
)

// Browser fetches pages through headless Chromium. Slower than the HTTP
// fetcher but survives listing pages that populate their grid with
// JavaScript.
type Browser struct {
	browser    *browser.Browser
	maxRetries int
	logger     *slog.Logger
}

func NewBrowser(b *browser.Browser, maxRetries int, logger *slog.Logger) *Browser {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Browser{
		browser:    b,
		maxRetries: maxRetries,
		logger:     logger.With("component", "browser_fetcher"),
	}
}

func (f *Browser) Fetch(ctx context.Context, url string) (string, error) {
	page, err := f.browser.NewPage()
	if err != nil {
		return "", &Error{Reason: ReasonServerError, URL: url, Err: err}
	}
	defer page.Close()

	if err := f.browser.NavigateWithRetry(page, url, f.maxRetries); err != nil {
		if ctx.Err() != nil {
			return "", &Error{Reason: ReasonTimeout, URL: url, Err: ctx.Err()}
		}
		return "", &Error{Reason: ReasonServerError, URL: url, Err: err}
	}

	if f.browser.IsBlocked(page) {
		return "", &Error{Reason: ReasonBlocked, URL: url}
	}

	html, err := page.Content()
	if err != nil {
		return "", &Error{Reason: ReasonServerError, URL: url, Err: err}
	}

	return html, nil
}
