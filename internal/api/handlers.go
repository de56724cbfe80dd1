package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/amazon-trend-scraper/internal/analysis"
	"github.com/maltedev/amazon-trend-scraper/internal/database"
	"github.com/maltedev/amazon-trend-scraper/internal/models"
	"github.com/maltedev/amazon-trend-scraper/internal/pipeline"
	"github.com/maltedev/amazon-trend-scraper/internal/scraper"
	"github.com/maltedev/amazon-trend-scraper/internal/storage"
)

// ScrapeRunner runs one scrape session end to end.
type ScrapeRunner interface {
	Run(ctx context.Context, siteKey string) (*pipeline.Result, error)
}

// SessionArchive is the database-backed session store. Preferred over the
// file repository for reads when configured.
type SessionArchive interface {
	LatestSnapshot(ctx context.Context, source string) (*models.Collection, error)
	SessionCount(ctx context.Context, source string, since time.Time) (int, error)
}

type Handlers struct {
	runner   ScrapeRunner
	repo     *storage.Repository
	archive  SessionArchive
	analyzer *analysis.Analyzer
	site     string
	logger   *slog.Logger
}

func NewHandlers(runner ScrapeRunner, repo *storage.Repository, archive SessionArchive, analyzer *analysis.Analyzer, site string, logger *slog.Logger) *Handlers {
	return &Handlers{
		runner:   runner,
		repo:     repo,
		archive:  archive,
		analyzer: analyzer,
		site:     site,
		logger:   logger,
	}
}

// ScrapeRequest represents the request to start a scrape session
type ScrapeRequest struct {
	Site string `json:"site"`
}

// Scrape runs a full scrape session synchronously and returns the result.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	site := req.Site
	if site == "" {
		site = h.site
	}

	result, err := h.runner.Run(r.Context(), site)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrUnknownSite):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scraper.ErrNoProducts):
			h.respondError(w, http.StatusBadGateway, "no products found on any listing page")
		default:
			h.logger.Error("scrape failed", "site", site, "error", err)
			h.respondError(w, http.StatusInternalServerError, "scrape failed")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// LatestSession returns the most recently persisted session for a site.
func (h *Handlers) LatestSession(w http.ResponseWriter, r *http.Request) {
	site := h.siteParam(r)

	col, err := h.latestCollection(r.Context(), site)
	if err != nil {
		h.respondLoadError(w, site, err)
		return
	}

	h.respondJSON(w, http.StatusOK, col)
}

// LatestAnalysis analyzes the most recent session and returns the summary
// plus narrative insights.
func (h *Handlers) LatestAnalysis(w http.ResponseWriter, r *http.Request) {
	site := h.siteParam(r)

	col, err := h.latestCollection(r.Context(), site)
	if err != nil {
		h.respondLoadError(w, site, err)
		return
	}

	summary := h.analyzer.Analyze(col)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"summary":  summary,
		"insights": h.analyzer.Insights(summary),
	})
}

// Stats reports archive activity for a site over the last day.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.respondError(w, http.StatusNotFound, "session archive not enabled")
		return
	}

	site := h.siteParam(r)
	count, err := h.archive.SessionCount(r.Context(), site, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		h.logger.Error("failed to count sessions", "site", site, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to count sessions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"source":            site,
		"sessions_last_24h": count,
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// latestCollection reads from the database archive when one is configured
// and falls back to the file repository otherwise.
func (h *Handlers) latestCollection(ctx context.Context, site string) (*models.Collection, error) {
	if h.archive != nil {
		return h.archive.LatestSnapshot(ctx, site)
	}
	return h.repo.LoadLatest(site)
}

func (h *Handlers) respondLoadError(w http.ResponseWriter, site string, err error) {
	if errors.Is(err, storage.ErrNoSnapshot) || errors.Is(err, database.ErrSnapshotNotFound) {
		h.respondError(w, http.StatusNotFound, "no session found for "+site)
		return
	}

	h.logger.Error("failed to load latest session", "site", site, "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to load session")
}

func (h *Handlers) siteParam(r *http.Request) string {
	if site := r.URL.Query().Get("site"); site != "" {
		return site
	}
	return h.site
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
