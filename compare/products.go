package compare

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"price-aggregator/models"
	"price-aggregator/services"
	"price-aggregator/utils"
)

var (
	// ErrProductNotFound is returned when a compared product has no listings.
	ErrProductNotFound = errors.New("no listings found for product")
	// ErrPriceUnavailable is returned when a compared product has no known price.
	ErrPriceUnavailable = errors.New("price not available for product")
	// ErrEmptyBatch is returned for a batch without items.
	ErrEmptyBatch = errors.New("batch has no items")
	// ErrTooManyItems is returned for a batch over MaxBatchItems.
	ErrTooManyItems = errors.New("too many batch items")
)

// MaxBatchItems caps DetailedBatch.
const MaxBatchItems = 5

const unknownValue = "不明"

var (
	loadCapacityRegexp = regexp.MustCompile(`耐荷重[：:]\s*(\d+(?:kg|ｋｇ|KG)?)`)
	lineBreakRegexp    = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// CompareProducts searches both products and compares their top listings.
func (e *Engine) CompareProducts(ctx context.Context, productA, productB string) (*models.ProductComparison, error) {
	queries := make([]string, 2)
	for i, raw := range []string{productA, productB} {
		text, err := ValidateQuery(raw)
		if err != nil {
			return nil, fmt.Errorf("product %c: %w", 'A'+i, err)
		}
		queries[i] = text
	}

	found := make([][]models.Listing, len(queries))
	pool := utils.NewWorkerPool(len(queries), 0).OnPanic(func(r any) {
		e.logger.Error("[engine] Product search panic: %v", r)
	})
	for i, q := range queries {
		pool.Submit(ctx, func() {
			found[i], _ = e.GetDetailedProducts(ctx, models.SearchQuery{Text: q})
		})
	}
	pool.Wait()

	for i, q := range queries {
		if len(found[i]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, q)
		}
		if found[i][0].Price <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, q)
		}
	}

	a, b := found[0][0], found[1][0]
	cmp := &models.ProductComparison{
		ProductA:       a,
		ProductB:       b,
		Differences:    differences(a, b),
		Recommendation: recommend(a, b),
	}
	e.logger.Info("[engine] Compared %q (%d) with %q (%d)", queries[0], a.Price, queries[1], b.Price)
	return cmp, nil
}

// DetailedBatch runs a direct model-number search for every item. A failing
// item carries its error and does not abort the batch.
func (e *Engine) DetailedBatch(ctx context.Context, items []string) ([]models.BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > MaxBatchItems {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(items), MaxBatchItems)
	}

	results := make([]models.BatchResult, 0, len(items))
	for _, item := range items {
		res := models.BatchResult{
			ProductInfo:      item,
			Keywords:         []string{item},
			PriceComparison:  []models.PriceRecord{},
			DetailedProducts: []models.Listing{},
		}

		prices, err := e.CompareModelNumbers(ctx, []string{item})
		if err == nil {
			res.PriceComparison = prices
			var details []models.Listing
			if details, err = e.DetailedProductsForModelNumbers(ctx, []string{item}); len(details) > 0 {
				res.DetailedProducts = details
			}
		}
		if err != nil {
			e.logger.Warn("[engine] Batch item %q failed: %v", item, err)
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func differences(a, b models.Listing) []models.Difference {
	diffs := []models.Difference{
		{
			Category:     "price",
			Label:        "価格",
			ValueA:       yen(a.Price),
			ValueB:       yen(b.Price),
			Significance: grade(priceGap(a.Price, b.Price), 20, 5),
		},
		{
			Category:     "shipping",
			Label:        "送料",
			ValueA:       yen(shipping(a)),
			ValueB:       yen(shipping(b)),
			Significance: grade(math.Abs(float64(shipping(a)-shipping(b))), 500, 100),
		},
		{
			Category:     "rating",
			Label:        "評価",
			ValueA:       strconv.FormatFloat(a.Rating, 'f', -1, 64) + "点",
			ValueB:       strconv.FormatFloat(b.Rating, 'f', -1, 64) + "点",
			Significance: grade(math.Abs(a.Rating-b.Rating), 1.5, 0.5),
		},
	}

	if la, lb := loadCapacity(a), loadCapacity(b); la != unknownValue || lb != unknownValue {
		diffs = append(diffs, models.Difference{
			Category:     "load_capacity",
			Label:        "耐荷重",
			ValueA:       la,
			ValueB:       lb,
			Significance: models.SignificanceHigh,
		})
	}
	if fa, fb := features(a), features(b); fa != unknownValue || fb != unknownValue {
		diffs = append(diffs, models.Difference{
			Category:     "features",
			Label:        "特徴",
			ValueA:       fa,
			ValueB:       fb,
			Significance: models.SignificanceMedium,
		})
	}
	return diffs
}

// recommend prefers the cheaper product when prices differ by over 20%,
// then the better rated one when ratings differ by over 0.5.
func recommend(a, b models.Listing) string {
	if gap := priceGap(a.Price, b.Price); gap > 20 {
		cheaper := "商品A"
		if b.Price < a.Price {
			cheaper = "商品B"
		}
		return fmt.Sprintf("%sの方が%.1f%%安いため、コストパフォーマンスが良いでしょう。", cheaper, gap)
	}
	if math.Abs(a.Rating-b.Rating) > 0.5 {
		better := "商品A"
		if b.Rating > a.Rating {
			better = "商品B"
		}
		return better + "の方が評価が高いため、品質が良い可能性があります。"
	}
	return "両商品は価格と評価が似ていますが、詳細な特徴を比較して選択することをお勧めします。"
}

// priceGap is the price difference as a percentage of the higher price.
func priceGap(a, b int) float64 {
	high := max(a, b)
	if high <= 0 {
		return 0
	}
	return math.Abs(float64(a-b)) / float64(high) * 100
}

func grade(v, high, medium float64) models.Significance {
	switch {
	case v > high:
		return models.SignificanceHigh
	case v > medium:
		return models.SignificanceMedium
	default:
		return models.SignificanceLow
	}
}

func yen(n int) string {
	return strconv.Itoa(n) + "円"
}

func shipping(l models.Listing) int {
	if l.ShippingFee == nil {
		return 0
	}
	return *l.ShippingFee
}

// loadCapacity reads a 荷重 entry from additional info, then the description.
func loadCapacity(l models.Listing) string {
	keys := make([]string, 0, len(l.AdditionalInfo))
	for k := range l.AdditionalInfo {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.Contains(k, "荷重") {
			return fmt.Sprint(l.AdditionalInfo[k])
		}
	}
	if m := loadCapacityRegexp.FindStringSubmatch(l.Description); m != nil {
		return m[1]
	}
	return unknownValue
}

// features is the description with markup removed.
func features(l models.Listing) string {
	if strings.TrimSpace(l.Description) == "" {
		return unknownValue
	}
	desc := lineBreakRegexp.ReplaceAllString(l.Description, "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return services.NormaliseText(desc)
	}
	if text := services.NormaliseText(doc.Text()); text != "" {
		return text
	}
	return unknownValue
}
