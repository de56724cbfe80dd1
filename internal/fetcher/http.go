package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Markers Amazon serves on its interstitial robot-check page. A 200 response
// containing one of these is a block, not a listing.
var blockMarkers = []string{
	"Enter the characters you see below",
	"api-services-support@amazon.com",
	"validateCaptcha",
}

type Options struct {
	MaxRetries  int
	BackoffBase time.Duration
	Timeout     time.Duration
	UserAgents  []string
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{defaultUserAgent}
	}
	return opts
}

// HTTP fetches pages with a plain HTTP client, browser-like headers and
// exponential backoff on transient failures.
type HTTP struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

func NewHTTP(opts Options, logger *slog.Logger) *HTTP {
	o := opts.withDefaults()
	return &HTTP{
		client: &http.Client{Timeout: o.Timeout},
		opts:   o,
		logger: logger.With("component", "fetcher"),
	}
}

func (f *HTTP) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr *Error

	for attempt := 1; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := f.opts.BackoffBase * (1 << (attempt - 2))
			f.logger.Info("retrying fetch", "url", url, "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return "", &Error{Reason: ReasonTimeout, URL: url, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, ferr := f.fetchOnce(ctx, url)
		if ferr == nil {
			return body, nil
		}

		lastErr = ferr
		if !retryable(ferr) {
			f.logger.Warn("fetch failed permanently", "url", url, "reason", ferr.Reason)
			return "", ferr
		}

		f.logger.Warn("fetch attempt failed", "url", url, "attempt", attempt, "reason", ferr.Reason)
	}

	f.logger.Error("fetch retries exhausted", "url", url, "attempts", f.opts.MaxRetries)
	return "", lastErr
}

func (f *HTTP) fetchOnce(ctx context.Context, url string) (string, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{Reason: ReasonNotFound, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{Reason: classifyNetError(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to body handling below.
	case resp.StatusCode == http.StatusNotFound:
		return "", &Error{Reason: ReasonNotFound, URL: url, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		return "", &Error{Reason: ReasonBlocked, URL: url, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &Error{Reason: ReasonServerError, URL: url, Status: resp.StatusCode}
	default:
		return "", &Error{Reason: ReasonServerError, URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Reason: ReasonServerError, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	body := string(data)
	for _, marker := range blockMarkers {
		if strings.Contains(body, marker) {
			return "", &Error{Reason: ReasonBlocked, URL: url, Status: resp.StatusCode}
		}
	}

	return body, nil
}

func (f *HTTP) userAgent() string {
	agents := f.opts.UserAgents
	return agents[rand.Intn(len(agents))]
}

func classifyNetError(err error) Reason {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonServerError
}

// retryable reports whether another attempt may succeed. Blocks and missing
// pages are final; hammering a captcha wall only makes things worse.
func retryable(e *Error) bool {
	switch e.Reason {
	case ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}
