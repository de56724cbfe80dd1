package scraper

import (
	"errors"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-trend-scraper/internal/parser"
)

var (
	ErrNoProducts      = errors.New("no products found on any listing page")
	ErrTooManyFailures = errors.New("too many consecutive page failures")
)

// Site binds a marketplace to its listing pages and parser. Adding a site
// means adding a Site value and a parser; the collector never changes.
type Site struct {
	Key          string
	BaseURL      string
	ListingPaths []string
	Parser       parser.ListingParser
}

// PageURL builds the URL for the nth page of a listing path.
func (s Site) PageURL(path string, page int) string {
	u := s.BaseURL + path
	if page <= 1 {
		return u
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return u + sep + "pg=" + strconv.Itoa(page)
}

// NewAmazonInSite targets the amazon.in trending surfaces, tried in order
// until one yields products.
func NewAmazonInSite() Site {
	const base = "https://www.amazon.in"
	return Site{
		Key:     "amazon_in",
		BaseURL: base,
		ListingPaths: []string{
			"/gp/bestsellers/",
			"/gp/new-releases/",
			"/gp/movers-and-shakers/",
			"/deals/",
		},
		Parser: parser.NewAmazon(base),
	}
}

func NewDarazNpSite() Site {
	const base = "https://www.daraz.com.np"
	return Site{
		Key:     "daraz_np",
		BaseURL: base,
		ListingPaths: []string{
			"/trending-products/",
			"/top-selling-products/",
		},
		Parser: parser.NewDaraz(base),
	}
}

// SiteByKey returns the configured site for a key, or false.
func SiteByKey(key string) (Site, bool) {
	switch key {
	case "amazon_in":
		return NewAmazonInSite(), true
	case "daraz_np":
		return NewDarazNpSite(), true
	default:
		return Site{}, false
	}
}
