package analysis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

type PriceStats struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	StdDev    float64 `json:"std_dev"`
	Quartiles struct {
		Q1 float64 `json:"q1"`
		Q2 float64 `json:"q2"`
		Q3 float64 `json:"q3"`
	} `json:"quartiles"`
}

type RatingStats struct {
	Count        int            `json:"count"`
	Mean         float64        `json:"mean"`
	Median       float64        `json:"median"`
	Distribution map[string]int `json:"distribution"`
}

type ReviewStats struct {
	Count  int     `json:"count"`
	Total  int     `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    int     `json:"max"`
}

type CategoryStats struct {
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution"`
}

// RankedProduct is a row in a "top products" table.
type RankedProduct struct {
	Title       string           `json:"title"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Rating      *float64         `json:"rating,omitempty"`
	ReviewCount *int             `json:"review_count,omitempty"`
	ValueScore  float64          `json:"value_score,omitempty"`
}

// PriceBands splits the observed price range at the quartiles.
type PriceBands struct {
	Budget   [2]float64 `json:"budget"`
	MidRange [2]float64 `json:"mid_range"`
	Premium  [2]float64 `json:"premium"`
}

// Summary is the full analysis output for one collection. Sections are nil
// when the underlying field was absent across the whole collection.
type Summary struct {
	ProductCount int             `json:"product_count"`
	Source       string          `json:"source"`
	AnalyzedAt   time.Time       `json:"analyzed_at"`
	Price        *PriceStats     `json:"price_analysis,omitempty"`
	Rating       *RatingStats    `json:"rating_analysis,omitempty"`
	Reviews      *ReviewStats    `json:"review_analysis,omitempty"`
	Categories   *CategoryStats  `json:"category_analysis,omitempty"`
	HighestRated []RankedProduct `json:"highest_rated,omitempty"`
	MostReviewed []RankedProduct `json:"most_reviewed,omitempty"`
	BestValue    []RankedProduct `json:"best_value,omitempty"`
	PriceBands   *PriceBands     `json:"price_bands,omitempty"`
}

const topN = 5

// Analyzer computes summary statistics and narrative insights over an
// immutable collection. It never mutates its input.
type Analyzer struct {
	currency string
	logger   *slog.Logger
}

func NewAnalyzer(currency string, logger *slog.Logger) *Analyzer {
	if currency == "" {
		currency = "₹"
	}
	return &Analyzer{
		currency: currency,
		logger:   logger.With("component", "analyzer"),
	}
}

func (a *Analyzer) Analyze(col *models.Collection) *Summary {
	s := &Summary{
		ProductCount: len(col.Products),
		Source:       col.Source,
		AnalyzedAt:   time.Now().UTC(),
	}

	if len(col.Products) == 0 {
		return s
	}

	s.Price = priceStats(col.Products)
	s.Rating = ratingStats(col.Products)
	s.Reviews = reviewStats(col.Products)
	s.Categories = categoryStats(col.Products)
	s.HighestRated = topByRating(col.Products)
	s.MostReviewed = topByReviews(col.Products)
	s.BestValue = bestValue(col.Products)

	if s.Price != nil {
		s.PriceBands = &PriceBands{
			Budget:   [2]float64{0, s.Price.Quartiles.Q1},
			MidRange: [2]float64{s.Price.Quartiles.Q1, s.Price.Quartiles.Q3},
			Premium:  [2]float64{s.Price.Quartiles.Q3, s.Price.Max},
		}
	}

	a.logger.Info("analysis completed", "products", s.ProductCount, "source", s.Source)
	return s
}

// Insights renders the summary as human-readable statements.
func (a *Analyzer) Insights(s *Summary) []string {
	if s == nil || s.ProductCount == 0 {
		return []string{"Insufficient data for meaningful insights."}
	}

	insights := []string{
		fmt.Sprintf("Analysis based on %d products from %s.", s.ProductCount, s.Source),
	}

	if p := s.Price; p != nil {
		insights = append(insights,
			fmt.Sprintf("Average product price is %s%.2f.", a.currency, p.Mean),
			fmt.Sprintf("Price range spans %s%.2f to %s%.2f.", a.currency, p.Min, a.currency, p.Max),
		)
	}

	if r := s.Rating; r != nil {
		insights = append(insights, fmt.Sprintf("Average product rating is %.1f/5.0 stars.", r.Mean))
		if bucket, n := dominantBucket(r.Distribution); n > 0 {
			insights = append(insights, fmt.Sprintf("Most products fall in the %s rating range.", bucket))
		}
	}

	if rv := s.Reviews; rv != nil {
		insights = append(insights,
			fmt.Sprintf("Products have accumulated a total of %d reviews.", rv.Total),
			fmt.Sprintf("Products average %.0f reviews each.", rv.Mean),
		)
	}

	if c := s.Categories; c != nil && c.Count > 0 {
		insights = append(insights, fmt.Sprintf("Products span %d different categories.", c.Count))
	}

	if len(s.BestValue) > 0 {
		top := s.BestValue[0]
		rating := 0.0
		if top.Rating != nil {
			rating = *top.Rating
		}
		insights = append(insights,
			fmt.Sprintf("Best value for money: %q with a %.1f rating.", top.Title, rating))
	}

	if b := s.PriceBands; b != nil && b.MidRange[1] > b.MidRange[0] {
		insights = append(insights,
			fmt.Sprintf("Recommended mid-range products fall between %s%.2f and %s%.2f.",
				a.currency, b.MidRange[0], a.currency, b.MidRange[1]))
	}

	return insights
}

func priceStats(products []models.Product) *PriceStats {
	var values []float64
	for _, p := range products {
		if p.Price != nil {
			values = append(values, p.Price.InexactFloat64())
		}
	}
	if len(values) == 0 {
		return nil
	}

	sort.Float64s(values)
	stats := &PriceStats{
		Count:  len(values),
		Mean:   mean(values),
		Median: quantile(values, 0.5),
		Min:    values[0],
		Max:    values[len(values)-1],
		StdDev: stdDev(values),
	}
	stats.Quartiles.Q1 = quantile(values, 0.25)
	stats.Quartiles.Q2 = quantile(values, 0.5)
	stats.Quartiles.Q3 = quantile(values, 0.75)
	return stats
}

func ratingStats(products []models.Product) *RatingStats {
	var values []float64
	distribution := make(map[string]int)

	for _, p := range products {
		if p.Rating == nil {
			continue
		}
		values = append(values, *p.Rating)
		distribution[ratingBucket(*p.Rating)]++
	}
	if len(values) == 0 {
		return nil
	}

	sort.Float64s(values)
	return &RatingStats{
		Count:        len(values),
		Mean:         mean(values),
		Median:       quantile(values, 0.5),
		Distribution: distribution,
	}
}

func reviewStats(products []models.Product) *ReviewStats {
	var values []float64
	total, max := 0, 0

	for _, p := range products {
		if p.ReviewCount == nil {
			continue
		}
		n := *p.ReviewCount
		values = append(values, float64(n))
		total += n
		if n > max {
			max = n
		}
	}
	if len(values) == 0 {
		return nil
	}

	sort.Float64s(values)
	return &ReviewStats{
		Count:  len(values),
		Total:  total,
		Mean:   mean(values),
		Median: quantile(values, 0.5),
		Max:    max,
	}
}

func categoryStats(products []models.Product) *CategoryStats {
	distribution := make(map[string]int)
	for _, p := range products {
		if p.Category != "" {
			distribution[p.Category]++
		}
	}
	if len(distribution) == 0 {
		return nil
	}

	return &CategoryStats{
		Count:        len(distribution),
		Distribution: distribution,
	}
}

func topByRating(products []models.Product) []RankedProduct {
	rated := filter(products, func(p models.Product) bool { return p.Rating != nil })
	sort.SliceStable(rated, func(i, j int) bool { return *rated[i].Rating > *rated[j].Rating })
	return toRanked(rated, topN)
}

func topByReviews(products []models.Product) []RankedProduct {
	reviewed := filter(products, func(p models.Product) bool { return p.ReviewCount != nil })
	sort.SliceStable(reviewed, func(i, j int) bool { return *reviewed[i].ReviewCount > *reviewed[j].ReviewCount })
	return toRanked(reviewed, topN)
}

// bestValue scores products by rating percentile weighted against price
// percentile: a high rating at a low price wins.
func bestValue(products []models.Product) []RankedProduct {
	valid := filter(products, func(p models.Product) bool { return p.Rating != nil && p.Price != nil })
	if len(valid) == 0 {
		return nil
	}

	ratingRank := percentiles(valid, func(p models.Product) float64 { return *p.Rating })
	priceRank := percentiles(valid, func(p models.Product) float64 { return p.Price.InexactFloat64() })

	ranked := make([]RankedProduct, 0, len(valid))
	for i, p := range valid {
		ranked = append(ranked, RankedProduct{
			Title:       p.Title,
			Price:       p.Price,
			Rating:      p.Rating,
			ReviewCount: p.ReviewCount,
			ValueScore:  ratingRank[i] * (1 - priceRank[i]),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ValueScore > ranked[j].ValueScore })
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func toRanked(products []models.Product, limit int) []RankedProduct {
	if len(products) > limit {
		products = products[:limit]
	}

	ranked := make([]RankedProduct, 0, len(products))
	for _, p := range products {
		ranked = append(ranked, RankedProduct{
			Title:       p.Title,
			Price:       p.Price,
			Rating:      p.Rating,
			ReviewCount: p.ReviewCount,
		})
	}
	return ranked
}

func filter(products []models.Product, keep func(models.Product) bool) []models.Product {
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// percentiles returns the fractional rank of each element's value within
// the slice, in [0, 1].
func percentiles(products []models.Product, value func(models.Product) float64) []float64 {
	n := len(products)
	ranks := make([]float64, n)
	if n == 1 {
		ranks[0] = 1
		return ranks
	}

	for i, p := range products {
		below := 0
		for _, q := range products {
			if value(q) < value(p) {
				below++
			}
		}
		ranks[i] = float64(below) / float64(n-1)
	}
	return ranks
}

func ratingBucket(r float64) string {
	switch {
	case r <= 2:
		return "0-2 ★"
	case r <= 3:
		return "2-3 ★"
	case r <= 4:
		return "3-4 ★"
	default:
		return "4-5 ★"
	}
}

func dominantBucket(distribution map[string]int) (string, int) {
	best, n := "", 0
	for bucket, count := range distribution {
		if count > n {
			best, n = bucket, count
		}
	}
	return best, n
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// quantile assumes values is sorted ascending; linear interpolation between
// closest ranks.
func quantile(values []float64, q float64) float64 {
	if len(values) == 1 {
		return values[0]
	}

	pos := q * float64(len(values)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return values[lo]
	}
	return values[lo] + (pos-float64(lo))*(values[hi]-values[lo])
}
