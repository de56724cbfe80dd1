package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

var (
	ErrNoSnapshot = errors.New("no snapshot file found")
	ErrMalformed  = errors.New("malformed snapshot file")
)

const fileTimestamp = "20060102_150405"

// Repository persists scrape sessions as JSON files, one file per session.
type Repository struct {
	dir string
}

func NewRepository(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &Repository{dir: dir}, nil
}

// Save writes the collection to a timestamped file and returns its path.
// The write goes through a temp file so a crash never leaves a truncated
// snapshot behind.
func (r *Repository) Save(col *models.Collection) (string, error) {
	data, err := json.MarshalIndent(col, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal collection: %w", err)
	}

	name := fmt.Sprintf("%s_trending_%s.json", col.Source, col.ScrapedAt.Format(fileTimestamp))
	path := filepath.Join(r.dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to rename snapshot: %w", err)
	}

	return path, nil
}

// Load reads a session file back and validates every record. A file that
// does not round-trip cleanly yields ErrMalformed.
func (r *Repository) Load(path string) (*models.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var col models.Collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for i := range col.Products {
		if problems := col.Products[i].Validate(); len(problems) > 0 {
			return nil, fmt.Errorf("%w: product %d: %s", ErrMalformed, i, strings.Join(problems, "; "))
		}
	}

	return &col, nil
}

// LatestFile returns the most recent session file for a site.
func (r *Repository) LatestFile(source string) (string, error) {
	pattern := filepath.Join(r.dir, source+"_trending_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoSnapshot, source)
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func (r *Repository) LoadLatest(source string) (*models.Collection, error) {
	path, err := r.LatestFile(source)
	if err != nil {
		return nil, err
	}
	return r.Load(path)
}

// ExportCSV writes the collection as a flat CSV table, with empty cells for
// absent optional fields.
func (r *Repository) ExportCSV(col *models.Collection, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"id", "title", "url", "price", "rating", "review_count", "image_url", "category", "rank", "scraped_at"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, p := range col.Products {
		row := []string{
			p.ID,
			p.Title,
			p.URL,
			formatPrice(p),
			formatRating(p),
			formatReviewCount(p),
			p.ImageURL,
			p.Category,
			strconv.Itoa(p.Rank),
			p.ScrapedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}

func formatPrice(p models.Product) string {
	if p.Price == nil {
		return ""
	}
	return p.Price.String()
}

func formatRating(p models.Product) string {
	if p.Rating == nil {
		return ""
	}
	return strconv.FormatFloat(*p.Rating, 'f', 1, 64)
}

func formatReviewCount(p models.Product) string {
	if p.ReviewCount == nil {
		return ""
	}
	return strconv.Itoa(*p.ReviewCount)
}
