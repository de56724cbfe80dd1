package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

// ErrFragmentRejected marks a fragment that lacks the structurally required
// fields. The record is dropped; scraping continues.
var ErrFragmentRejected = errors.New("fragment rejected")

// Fragment is one unparsed listing entry in document order.
type Fragment struct {
	sel *goquery.Selection
}

func NewFragment(sel *goquery.Selection) Fragment {
	return Fragment{sel: sel}
}

func (f Fragment) Selection() *goquery.Selection {
	return f.sel
}

// ListingParser turns a listing page into normalized product records.
// One implementation exists per target site.
type ListingParser interface {
	ExtractFragments(html string) ([]Fragment, error)
	Normalize(frag Fragment, rank int, scrapedAt time.Time) (*models.Product, error)
}

var (
	pricePattern  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	countPattern  = regexp.MustCompile(`(\d+(?:[,.]\d+)*)\s*([KkMm])?`)
	ratingPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*out of 5`)
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

func cleanText(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// ParsePrice extracts a decimal amount from a display price such as
// "₹1,299.00". Unparseable input yields nil, never an error.
func ParsePrice(text string) *decimal.Decimal {
	match := pricePattern.FindString(text)
	if match == "" {
		return nil
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil || d.IsNegative() {
		return nil
	}

	return &d
}

// ParseRating extracts a star rating and discards values outside [0, 5].
func ParseRating(text string) *float64 {
	match := ratingPattern.FindStringSubmatch(text)
	var token string
	if match != nil {
		token = match[1]
	} else {
		token = numberPattern.FindString(text)
	}
	if token == "" {
		return nil
	}

	v, err := strconv.ParseFloat(token, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}

	return &v
}

// ParseReviewCount extracts a review total, tolerating thousands separators
// and K/M abbreviations ("1,234", "2.4K").
func ParseReviewCount(text string) *int {
	match := countPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return nil
	}

	switch match[2] {
	case "K", "k":
		v *= 1_000
	case "M", "m":
		v *= 1_000_000
	}

	n := int(v)
	if n < 0 {
		return nil
	}

	return &n
}
