package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-trend-scraper/internal/analysis"
	"github.com/maltedev/amazon-trend-scraper/internal/database"
	"github.com/maltedev/amazon-trend-scraper/internal/models"
	"github.com/maltedev/amazon-trend-scraper/internal/pipeline"
	"github.com/maltedev/amazon-trend-scraper/internal/scraper"
	"github.com/maltedev/amazon-trend-scraper/internal/storage"
)

type stubRunner struct {
	site   string
	result *pipeline.Result
	err    error
}

func (r *stubRunner) Run(ctx context.Context, siteKey string) (*pipeline.Result, error) {
	r.site = siteKey
	return r.result, r.err
}

type stubArchive struct {
	col      *models.Collection
	colErr   error
	count    int
	countErr error
	since    time.Time
}

func (a *stubArchive) LatestSnapshot(ctx context.Context, source string) (*models.Collection, error) {
	return a.col, a.colErr
}

func (a *stubArchive) SessionCount(ctx context.Context, source string, since time.Time) (int, error) {
	a.since = since
	return a.count, a.countErr
}

func newTestHandlers(t *testing.T, runner ScrapeRunner, archive SessionArchive) (*Handlers, *storage.Repository) {
	t.Helper()

	repo, err := storage.NewRepository(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	analyzer := analysis.NewAnalyzer("₹", logger)
	return NewHandlers(runner, repo, archive, analyzer, "amazon_in", logger), repo
}

func testCollection(source string, ids ...string) *models.Collection {
	col := models.NewCollection(source)
	for i, id := range ids {
		col.Products = append(col.Products, models.Product{
			ID:        id,
			Title:     "Item " + id,
			URL:       "https://shop.test/dp/" + id,
			Rank:      i + 1,
			ScrapedAt: col.ScrapedAt,
		})
	}
	col.Report.PagesFetched = 1
	col.Report.Accepted = len(ids)
	return col
}

func TestScrape(t *testing.T) {
	col := testCollection("daraz_np", "p1", "p2")
	runner := &stubRunner{result: &pipeline.Result{Collection: col, SnapshotPath: "data/snap.json"}}
	handlers, _ := newTestHandlers(t, runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(`{"site":"daraz_np"}`))
	rec := httptest.NewRecorder()
	handlers.Scrape(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "daraz_np", runner.site)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "data/snap.json", result.SnapshotPath)
	assert.Len(t, result.Collection.Products, 2)
}

func TestScrapeDefaultSite(t *testing.T) {
	runner := &stubRunner{result: &pipeline.Result{Collection: testCollection("amazon_in", "p1")}}
	handlers, _ := newTestHandlers(t, runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", nil)
	rec := httptest.NewRecorder()
	handlers.Scrape(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "amazon_in", runner.site, "empty body falls back to the configured site")
}

func TestScrapeErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "unknown site",
			err:        fmt.Errorf("%w: %q", pipeline.ErrUnknownSite, "ebay_us"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no products",
			err:        scraper.ErrNoProducts,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "internal failure",
			err:        fmt.Errorf("failed to persist session: disk full"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _ := newTestHandlers(t, &stubRunner{err: tt.err}, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", nil)
			rec := httptest.NewRecorder()
			handlers.Scrape(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestLatestSessionFromArchive(t *testing.T) {
	archive := &stubArchive{col: testCollection("amazon_in", "a1", "a2", "a3")}
	handlers, _ := newTestHandlers(t, nil, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/latest", nil)
	rec := httptest.NewRecorder()
	handlers.LatestSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var col models.Collection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &col))
	assert.Equal(t, archive.col.SessionID, col.SessionID, "archive is preferred when configured")
	assert.Len(t, col.Products, 3)
}

func TestLatestSessionFileFallback(t *testing.T) {
	handlers, repo := newTestHandlers(t, nil, nil)

	saved := testCollection("amazon_in", "a1")
	_, err := repo.Save(saved)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/latest", nil)
	rec := httptest.NewRecorder()
	handlers.LatestSession(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var col models.Collection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &col))
	assert.Equal(t, saved.SessionID, col.SessionID)
}

func TestLatestSessionNotFound(t *testing.T) {
	tests := []struct {
		name    string
		archive SessionArchive
	}{
		{
			name:    "empty archive",
			archive: &stubArchive{colErr: fmt.Errorf("%w for amazon_in", database.ErrSnapshotNotFound)},
		},
		{
			name:    "empty file repository",
			archive: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _ := newTestHandlers(t, nil, tt.archive)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/latest", nil)
			rec := httptest.NewRecorder()
			handlers.LatestSession(rec, req)

			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestLatestAnalysis(t *testing.T) {
	archive := &stubArchive{col: testCollection("amazon_in", "a1", "a2")}
	handlers, _ := newTestHandlers(t, nil, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/latest/analysis", nil)
	rec := httptest.NewRecorder()
	handlers.LatestAnalysis(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "summary")
	assert.Contains(t, body, "insights")

	var summary analysis.Summary
	require.NoError(t, json.Unmarshal(body["summary"], &summary))
	assert.Equal(t, 2, summary.ProductCount)
}

func TestStats(t *testing.T) {
	archive := &stubArchive{count: 4}
	handlers, _ := newTestHandlers(t, nil, archive)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats?site=daraz_np", nil)
	rec := httptest.NewRecorder()
	handlers.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "daraz_np", body["source"])
	assert.Equal(t, float64(4), body["sessions_last_24h"])

	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), archive.since, time.Minute)
}

func TestStatsWithoutArchive(t *testing.T) {
	handlers, _ := newTestHandlers(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	handlers.Stats(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	handlers, _ := newTestHandlers(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handlers.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
