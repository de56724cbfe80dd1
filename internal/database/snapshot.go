package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore archives completed scrape sessions in postgres, alongside
// the JSON files on disk. One row per session plus one row per product.
type SnapshotStore struct {
	db *DB
}

func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Migrate creates the archive tables when they are missing.
func (s *SnapshotStore) Migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS scrape_sessions (
			session_id    UUID PRIMARY KEY,
			source        TEXT NOT NULL,
			scraped_at    TIMESTAMPTZ NOT NULL,
			pages_fetched INT NOT NULL,
			pages_skipped INT NOT NULL,
			accepted      INT NOT NULL,
			rejected      INT NOT NULL,
			duplicates    INT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS scraped_products (
			session_id   UUID NOT NULL REFERENCES scrape_sessions(session_id) ON DELETE CASCADE,
			product_id   TEXT NOT NULL,
			title        TEXT NOT NULL,
			url          TEXT NOT NULL,
			price        NUMERIC,
			rating       DOUBLE PRECISION,
			review_count INT,
			image_url    TEXT,
			category     TEXT,
			rank         INT NOT NULL,
			PRIMARY KEY (session_id, product_id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_source_scraped
			ON scrape_sessions(source, scraped_at DESC);
	`
	if _, err := s.db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate snapshot schema: %w", err)
	}
	return nil
}

// InsertSnapshot writes the session and all its products in one transaction.
func (s *SnapshotStore) InsertSnapshot(ctx context.Context, col *models.Collection) error {
	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO scrape_sessions
				(session_id, source, scraped_at, pages_fetched, pages_skipped, accepted, rejected, duplicates)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			col.SessionID, col.Source, col.ScrapedAt,
			col.Report.PagesFetched, col.Report.PagesSkipped,
			col.Report.Accepted, col.Report.Rejected, col.Report.Duplicates,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		for _, p := range col.Products {
			_, err := tx.Exec(ctx, `
				INSERT INTO scraped_products
					(session_id, product_id, title, url, price, rating, review_count, image_url, category, rank)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				col.SessionID, p.ID, p.Title, p.URL,
				priceArg(p.Price), p.Rating, p.ReviewCount,
				p.ImageURL, p.Category, p.Rank,
			)
			if err != nil {
				return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
			}
		}

		return nil
	})
}

// LatestSnapshot loads the most recent session for a source, products
// included in rank order.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, source string) (*models.Collection, error) {
	col := &models.Collection{}

	err := s.db.pool.QueryRow(ctx, `
		SELECT session_id, source, scraped_at, pages_fetched, pages_skipped, accepted, rejected, duplicates
		FROM scrape_sessions
		WHERE source = $1
		ORDER BY scraped_at DESC
		LIMIT 1`, source,
	).Scan(
		&col.SessionID, &col.Source, &col.ScrapedAt,
		&col.Report.PagesFetched, &col.Report.PagesSkipped,
		&col.Report.Accepted, &col.Report.Rejected, &col.Report.Duplicates,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w for %s", ErrSnapshotNotFound, source)
		}
		return nil, fmt.Errorf("failed to query latest session: %w", err)
	}

	rows, err := s.db.pool.Query(ctx, `
		SELECT product_id, title, url, price::TEXT, rating, review_count, image_url, category, rank
		FROM scraped_products
		WHERE session_id = $1
		ORDER BY rank`, col.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p        models.Product
			priceRaw *string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.URL, &priceRaw, &p.Rating, &p.ReviewCount, &p.ImageURL, &p.Category, &p.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		if priceRaw != nil {
			price, err := decimal.NewFromString(*priceRaw)
			if err != nil {
				return nil, fmt.Errorf("failed to parse stored price %q: %w", *priceRaw, err)
			}
			p.Price = &price
		}

		p.ScrapedAt = col.ScrapedAt
		col.Products = append(col.Products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	return col, nil
}

// SessionCount reports how many sessions were archived for a source since
// the given time.
func (s *SnapshotStore) SessionCount(ctx context.Context, source string, since time.Time) (int, error) {
	var count int
	err := s.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM scrape_sessions
		WHERE source = $1 AND scraped_at >= $2`, source, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func priceArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
