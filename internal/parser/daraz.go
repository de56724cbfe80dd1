package parser

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

// Daraz parses Daraz.np listing pages. Daraz identifies items with
// data-item-id attributes and obfuscated utility classes.
type Daraz struct {
	baseURL string
}

func NewDaraz(baseURL string) *Daraz {
	return &Daraz{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (p *Daraz) ExtractFragments(html string) ([]Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	fragments := make([]Fragment, 0)
	for _, selector := range []string{`[data-item-id]`, ".Bm3ON", ".c2iYAv", ".c1ZEkM"} {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			fragments = append(fragments, NewFragment(s))
		})

		if len(fragments) > 0 {
			break
		}
	}

	return fragments, nil
}

func (p *Daraz) Normalize(frag Fragment, rank int, scrapedAt time.Time) (*models.Product, error) {
	sel := frag.Selection()

	id, _ := sel.Attr("data-item-id")
	if id == "" {
		return nil, fmt.Errorf("%w: missing catalog id", ErrFragmentRejected)
	}

	title := p.extractTitle(sel)
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrFragmentRejected)
	}

	productURL := p.extractURL(sel, id)
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

	for _, selector := range []string{".c13VH6", ".c3gUW0", ".c1-B2V", ".c1hkC1"} {
		if text := sel.Find(selector).First().Text(); text != "" {
			if price := ParsePrice(text); price != nil {
				product.Price = price
				break
			}
		}
	}

	if text := sel.Find(".rating, .c3XbGJ").First().Text(); text != "" {
		product.Rating = ParseRating(text)
	}

	if text := cleanText(sel.Find(".rating__review, .c3XbGJ + span").First().Text()); text != "" {
		product.ReviewCount = ParseReviewCount(text)
	}

	if src, ok := sel.Find("img[src]").First().Attr("src"); ok {
		product.ImageURL = src
	}

	return product, nil
}

func (p *Daraz) extractTitle(sel *goquery.Selection) string {
	for _, selector := range []string{".c16H9d", ".c3KeDq", ".c16TX_"} {
		if title := cleanText(sel.Find(selector).First().Text()); title != "" {
			return title
		}
	}

	if alt, ok := sel.Find("img[alt]").First().Attr("alt"); ok {
		return cleanText(alt)
	}

	return ""
}

func (p *Daraz) extractURL(sel *goquery.Selection, id string) string {
	href, _ := sel.Find("a[href]").First().Attr("href")
	if href == "" {
		return p.baseURL + "/products/" + id
	}

	// Daraz often emits protocol-relative links.
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
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
