package storage

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

func sampleCollection(t *testing.T, scrapedAt time.Time) *models.Collection {
	t.Helper()

	price := decimal.NewFromFloat(1299.50)
	rating := 4.3
	reviews := 512

	col := models.NewCollection("amazon_in")
	col.ScrapedAt = scrapedAt
	col.Products = []models.Product{
		{
			ID:          "B0EXAMPLE1",
			Title:       "Wireless Earbuds",
			URL:         "https://www.amazon.in/dp/B0EXAMPLE1",
			Price:       &price,
			Rating:      &rating,
			ReviewCount: &reviews,
			ImageURL:    "https://images.example.com/earbuds.jpg",
			Rank:        1,
			ScrapedAt:   scrapedAt,
		},
		{
			// All optional fields absent.
			ID:        "B0EXAMPLE2",
			Title:     "Steel Water Bottle",
			URL:       "https://www.amazon.in/dp/B0EXAMPLE2",
			Rank:      2,
			ScrapedAt: scrapedAt,
		},
	}
	col.Report = models.Report{PagesFetched: 1, Accepted: 2}
	return col
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	scrapedAt := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	col := sampleCollection(t, scrapedAt)

	path, err := repo.Save(col)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "amazon_in_trending_20260825_093000")

	loaded, err := repo.Load(path)
	require.NoError(t, err)

	assert.Equal(t, col.SessionID, loaded.SessionID)
	assert.Equal(t, col.Source, loaded.Source)
	assert.Equal(t, col.Report, loaded.Report)
	require.Len(t, loaded.Products, 2)

	full := loaded.Products[0]
	require.NotNil(t, full.Price)
	assert.True(t, full.Price.Equal(decimal.NewFromFloat(1299.50)))
	require.NotNil(t, full.Rating)
	assert.InDelta(t, 4.3, *full.Rating, 0.001)
	require.NotNil(t, full.ReviewCount)
	assert.Equal(t, 512, *full.ReviewCount)

	sparse := loaded.Products[1]
	assert.Nil(t, sparse.Price, "absent stays absent, never zero")
	assert.Nil(t, sparse.Rating)
	assert.Nil(t, sparse.ReviewCount)
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "amazon_in_trending_20260825_000000.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = repo.Load(path)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLoadInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(dir)
	require.NoError(t, err)

	// Valid JSON whose record is missing required fields.
	payload := `{"session_id":"8b7d8f1e-0000-0000-0000-000000000000","source":"amazon_in",
		"scraped_at":"2026-08-25T00:00:00Z",
		"products":[{"id":"","title":"","url":"","rank":0,"scraped_at":"2026-08-25T00:00:00Z"}],
		"report":{}}`
	path := filepath.Join(dir, "amazon_in_trending_20260825_000000.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	_, err = repo.Load(path)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLatestFile(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(dir)
	require.NoError(t, err)

	timestamps := []time.Time{
		time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC),
	}
	for _, ts := range timestamps {
		_, err := repo.Save(sampleCollection(t, ts))
		require.NoError(t, err)
	}

	// A different site's file must not interfere.
	_, err = repo.Save(func() *models.Collection {
		col := sampleCollection(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
		col.Source = "daraz_np"
		return col
	}())
	require.NoError(t, err)

	latest, err := repo.LatestFile("amazon_in")
	require.NoError(t, err)
	assert.Contains(t, latest, "20260825_090000")
}

func TestLatestFileNoSnapshot(t *testing.T) {
	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.LatestFile("amazon_in")
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewRepository(dir)
	require.NoError(t, err)

	col := sampleCollection(t, time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC))
	csvPath := filepath.Join(dir, "export.csv")
	require.NoError(t, repo.ExportCSV(col, csvPath))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "B0EXAMPLE1", rows[1][0])
	assert.Equal(t, "1299.5", rows[1][3])

	// Absent optionals become empty cells.
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "", rows[2][4])
	assert.Equal(t, "", rows[2][5])
}
