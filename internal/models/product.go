package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is one listing entry captured during a scrape session. Optional
// fields are pointers: nil means the value could not be extracted from the
// source markup.
type Product struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	URL         string           `json:"url"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Rating      *float64         `json:"rating,omitempty"`
	ReviewCount *int             `json:"review_count,omitempty"`
	ImageURL    string           `json:"image_url,omitempty"`
	Category    string           `json:"category,omitempty"`
	Rank        int              `json:"rank"`
	ScrapedAt   time.Time        `json:"scraped_at"`
}

// Validate returns a list of problems, empty for a well-formed record.
func (p *Product) Validate() []string {
	var errs []string

	if p.ID == "" {
		errs = append(errs, "id is required")
	}

	if p.Title == "" {
		errs = append(errs, "title is required")
	}

	if p.URL == "" {
		errs = append(errs, "url is required")
	} else if u, err := url.Parse(p.URL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, "url must be absolute")
	}

	if p.Rank < 1 {
		errs = append(errs, "rank must be positive")
	}

	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5) {
		errs = append(errs, "rating out of range")
	}

	if p.ReviewCount != nil && *p.ReviewCount < 0 {
		errs = append(errs, "review count must be non-negative")
	}

	return errs
}

// Report summarizes what happened during one collection run.
type Report struct {
	PagesFetched int `json:"pages_fetched"`
	PagesSkipped int `json:"pages_skipped"`
	Accepted     int `json:"accepted"`
	Rejected     int `json:"rejected"`
	Duplicates   int `json:"duplicates"`
}

// Collection is the snapshot produced by one scrape session.
type Collection struct {
	SessionID uuid.UUID `json:"session_id"`
	Source    string    `json:"source"`
	ScrapedAt time.Time `json:"scraped_at"`
	Products  []Product `json:"products"`
	Report    Report    `json:"report"`
}

func NewCollection(source string) *Collection {
	return &Collection{
		SessionID: uuid.New(),
		Source:    source,
		ScrapedAt: time.Now().UTC(),
		Products:  make([]Product, 0),
	}
}
