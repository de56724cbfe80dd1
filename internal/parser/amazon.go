package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

var asinPattern = regexp.MustCompile(`/(?:dp|gp/product|product)/([A-Z0-9]{10})`)

// Amazon parses Amazon listing pages (bestsellers, new releases, deals).
type Amazon struct {
	baseURL string

	fragmentSelectors []string
	titleSelectors    []string
	priceSelectors    []string
	ratingSelectors   []string
	reviewSelectors   []string
}

func NewAmazon(baseURL string) *Amazon {
	return &Amazon{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		fragmentSelectors: []string{
			`div[data-asin]`,
			`li.a-carousel-card`,
			`.a-carousel-card`,
		},
		titleSelectors: []string{
			".p13n-sc-truncate",
			"._cDEzb_p13n-sc-css-line-clamp-3_g3dy1",
			".a-size-medium",
			".a-size-base-plus",
			"h2 a span",
		},
		priceSelectors: []string{
			".a-price .a-offscreen",
			".p13n-sc-price",
			"._cDEzb_p13n-sc-price_3mJ9Z",
			".a-price-whole",
		},
		ratingSelectors: []string{
			".a-icon-alt",
			"i.a-icon-star-small",
			"i.a-icon-star",
		},
		reviewSelectors: []string{
			".a-size-small .a-link-normal",
			"a.a-link-normal[title*='review']",
			"span.a-size-small",
		},
	}
}

// ExtractFragments locates the repeating item containers. An empty result
// with a nil error means the page has no items, which is distinct from a
// fetch failure.
func (p *Amazon) ExtractFragments(html string) ([]Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	fragments := make([]Fragment, 0)
	for _, selector := range p.fragmentSelectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			if selector == `div[data-asin]` {
				if asin, _ := s.Attr("data-asin"); asin == "" {
					return
				}
			}
			fragments = append(fragments, NewFragment(s))
		})

		if len(fragments) > 0 {
			break
		}
	}

	return fragments, nil
}

// Normalize converts one fragment into a validated record. Title, URL and
// the catalog id are required; everything else degrades to absent.
func (p *Amazon) Normalize(frag Fragment, rank int, scrapedAt time.Time) (*models.Product, error) {
	sel := frag.Selection()

	href, _ := sel.Find("a[href]").First().Attr("href")
	id := p.extractID(sel, href)
	if id == "" {
		return nil, fmt.Errorf("%w: missing catalog id", ErrFragmentRejected)
	}

	title := p.extractTitle(sel)
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrFragmentRejected)
	}

	productURL := p.resolveURL(href, id)
	if productURL == "" {
		return nil, fmt.Errorf("%w: malformed url", ErrFragmentRejected)
	}

	product := &models.Product{
		ID:        id,
		Title:     title,
		URL:       productURL,
		Rank:      rank,
		ScrapedAt: scrapedAt,
	}

	for _, selector := range p.priceSelectors {
		if text := sel.Find(selector).First().Text(); text != "" {
			if price := ParsePrice(text); price != nil {
				product.Price = price
				break
			}
		}
	}

	for _, selector := range p.ratingSelectors {
		node := sel.Find(selector).First()
		text := node.Text()
		if text == "" {
			text, _ = node.Attr("aria-label")
		}
		if rating := ParseRating(text); rating != nil {
			product.Rating = rating
			break
		}
	}

	for _, selector := range p.reviewSelectors {
		if text := cleanText(sel.Find(selector).First().Text()); text != "" {
			if count := ParseReviewCount(text); count != nil {
				product.ReviewCount = count
				break
			}
		}
	}

	if src, ok := sel.Find("img[src]").First().Attr("src"); ok {
		product.ImageURL = src
	}

	return product, nil
}

func (p *Amazon) extractID(sel *goquery.Selection, href string) string {
	if asin, ok := sel.Attr("data-asin"); ok && asin != "" {
		return asin
	}

	if match := asinPattern.FindStringSubmatch(href); match != nil {
		return match[1]
	}

	return ""
}

func (p *Amazon) extractTitle(sel *goquery.Selection) string {
	for _, selector := range p.titleSelectors {
		if title := cleanText(sel.Find(selector).First().Text()); title != "" {
			return title
		}
	}

	if alt, ok := sel.Find("img[alt]").First().Attr("alt"); ok {
		return cleanText(alt)
	}

	return ""
}

func (p *Amazon) resolveURL(href, id string) string {
	if href == "" {
		return p.baseURL + "/dp/" + id
	}

	if strings.HasPrefix(href, "http") {
		if u, err := url.Parse(href); err != nil || u.Host == "" {
			return ""
		}
		return href
	}

	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}

	return p.baseURL + href
}
