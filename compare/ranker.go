package compare

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"

	"price-aggregator/models"
)

// Ranker orders and filters aggregated results. It holds configuration only.
type Ranker struct {
	threshold   decimal.Decimal
	commonTerms map[string]struct{}
}

// NewRanker creates a Ranker keeping prices up to min × (1 + threshold).
// Direct-mode filtering is skipped for queries equal to one of commonTerms.
func NewRanker(threshold decimal.Decimal, commonTerms []string) *Ranker {
	terms := make(map[string]struct{}, len(commonTerms))
	for _, t := range commonTerms {
		terms[foldTitle(t)] = struct{}{}
	}
	return &Ranker{threshold: threshold, commonTerms: terms}
}

// Threshold returns the configured price band fraction.
func (r *Ranker) Threshold() decimal.Decimal {
	return r.threshold
}

// RankPrices sorts records by ascending price and keeps those within the
// threshold of the cheapest. Records without a price are dropped: they have
// nothing to compare. The cheapest known price is always kept; a price-0
// record never is, even when every other record is dropped with it.
func (r *Ranker) RankPrices(records []models.PriceRecord) []models.PriceRecord {
	priced := make([]models.PriceRecord, 0, len(records))
	for _, rec := range records {
		if rec.Price > 0 {
			priced = append(priced, rec)
		}
	}
	if len(priced) == 0 {
		return priced
	}

	sort.SliceStable(priced, func(i, j int) bool {
		return priced[i].Price < priced[j].Price
	})

	limit := decimal.NewFromInt(int64(priced[0].Price)).Mul(decimal.NewFromInt(1).Add(r.threshold))
	cut := len(priced)
	for i, rec := range priced {
		if decimal.NewFromInt(int64(rec.Price)).GreaterThan(limit) {
			cut = i
			break
		}
	}
	return priced[:cut]
}

// RankDetails sorts listings by ascending price with unknown prices last.
func (r *Ranker) RankDetails(listings []models.Listing) []models.Listing {
	out := append([]models.Listing(nil), listings...)
	sort.SliceStable(out, func(i, j int) bool {
		return priceKey(out[i].Price) < priceKey(out[j].Price)
	})
	return out
}

// IsCommonTerm reports whether query is a generic category term for which
// title filtering would discard everything useful.
func (r *Ranker) IsCommonTerm(query string) bool {
	_, ok := r.commonTerms[foldTitle(query)]
	return ok
}

// FilterDirectPrices keeps records whose title contains query.
func (r *Ranker) FilterDirectPrices(query string, records []models.PriceRecord) []models.PriceRecord {
	return filterByTitle(r, query, records, func(p models.PriceRecord) string { return p.Title })
}

// FilterDirect keeps listings whose title contains query.
func (r *Ranker) FilterDirect(query string, listings []models.Listing) []models.Listing {
	return filterByTitle(r, query, listings, func(l models.Listing) string { return l.Title })
}

// filterByTitle is a case- and width-insensitive substring filter.
func filterByTitle[T any](r *Ranker, query string, items []T, title func(T) string) []T {
	if r.IsCommonTerm(query) {
		return items
	}
	needle := foldTitle(query)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if strings.Contains(foldTitle(title(it)), needle) {
			out = append(out, it)
		}
	}
	return out
}

// BestOf returns the n best listings ordered by price ascending, unknown
// price last, then ranking descending.
func BestOf(listings []models.Listing, n int) []models.Listing {
	out := append([]models.Listing(nil), listings...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priceKey(out[i].Price), priceKey(out[j].Price)
		if pi != pj {
			return pi < pj
		}
		return out[i].Ranking > out[j].Ranking
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func priceKey(price int) int {
	if price <= 0 {
		return math.MaxInt
	}
	return price
}

func foldTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(width.Fold.String(s)))
}
