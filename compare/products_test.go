package compare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-aggregator/models"
)

func comparisonEngine() *Engine {
	fee := 600
	rakuten := &fakeAdapter{name: "rakuten", byQuery: map[string][]models.Listing{
		"ea628w-25b": {{
			Source: "rakuten", Title: "ESCO EA628W-25B", Price: 1000, Rating: 4.5, URL: "https://item.rakuten.co.jp/a",
			Description: "耐荷重: 100kg<br>スチール製",
		}},
		"no-price": {{Source: "rakuten", Title: "no-price", URL: "https://item.rakuten.co.jp/n"}},
	}}
	yahoo := &fakeAdapter{name: "yahoo", byQuery: map[string][]models.Listing{
		"ea628w-30b": {{
			Source: "yahoo", Title: "ESCO EA628W-30B", Price: 1500, Rating: 3.0, ShippingFee: &fee,
			URL: "https://store.shopping.yahoo.co.jp/b",
		}},
	}}
	return newTestEngine(testOptions("0.9"), rakuten, yahoo)
}

func TestCompareProducts(t *testing.T) {
	e := comparisonEngine()

	cmp, err := e.CompareProducts(context.Background(), "EA628W-25B", "EA628W-30B")
	require.NoError(t, err)

	assert.Equal(t, 1000, cmp.ProductA.Price)
	assert.Equal(t, 1500, cmp.ProductB.Price)

	byCategory := make(map[string]models.Difference)
	for _, d := range cmp.Differences {
		byCategory[d.Category] = d
	}
	assert.Equal(t, models.Difference{Category: "price", Label: "価格", ValueA: "1000円", ValueB: "1500円", Significance: models.SignificanceHigh}, byCategory["price"])
	assert.Equal(t, "600円", byCategory["shipping"].ValueB)
	assert.Equal(t, models.SignificanceHigh, byCategory["shipping"].Significance)
	assert.Equal(t, "4.5点", byCategory["rating"].ValueA)
	assert.Equal(t, models.SignificanceMedium, byCategory["rating"].Significance, "a gap of exactly 1.5 is not high")
	assert.Equal(t, "100kg", byCategory["load_capacity"].ValueA)
	assert.Equal(t, unknownValue, byCategory["load_capacity"].ValueB)
	assert.Equal(t, "耐荷重: 100kg スチール製", byCategory["features"].ValueA)

	assert.Equal(t, "商品Aの方が33.3%安いため、コストパフォーマンスが良いでしょう。", cmp.Recommendation)
}

func TestCompareProductsErrors(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected error
	}{
		{"empty product", "", "EA628W-30B", ErrEmptyQuery},
		{"missing product", "EA628W-25B", "nothing-here", ErrProductNotFound},
		{"unknown price", "no-price", "EA628W-30B", ErrPriceUnavailable},
	}
	e := comparisonEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CompareProducts(context.Background(), tt.a, tt.b)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Listing
		want string
	}{
		{
			"cheaper b",
			models.Listing{Price: 2000, Rating: 5},
			models.Listing{Price: 1000, Rating: 1},
			"商品Bの方が50.0%安いため、コストパフォーマンスが良いでしょう。",
		},
		{
			"better rated when prices are close",
			models.Listing{Price: 1000, Rating: 3.5},
			models.Listing{Price: 1050, Rating: 4.5},
			"商品Bの方が評価が高いため、品質が良い可能性があります。",
		},
		{
			"similar",
			models.Listing{Price: 1000, Rating: 4.0},
			models.Listing{Price: 1010, Rating: 4.2},
			"両商品は価格と評価が似ていますが、詳細な特徴を比較して選択することをお勧めします。",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recommend(tt.a, tt.b))
		})
	}
}

func TestLoadCapacityPrefersAdditionalInfo(t *testing.T) {
	l := models.Listing{
		Description:    "耐荷重：50kg",
		AdditionalInfo: map[string]any{"最大荷重": "80kg"},
	}
	assert.Equal(t, "80kg", loadCapacity(l))
	assert.Equal(t, "50kg", loadCapacity(models.Listing{Description: "耐荷重：50kg"}))
	assert.Equal(t, unknownValue, loadCapacity(models.Listing{}))
}

func TestDetailedBatch(t *testing.T) {
	a := &fakeAdapter{name: "a", listings: []models.Listing{
		listing("a", "ESCO EA628W-25B", 1500),
		listing("a", "other", 900),
	}}
	e := newTestEngine(testOptions("0.9"), a)

	results, err := e.DetailedBatch(context.Background(), []string{"1. EA628W-25B", "以下"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	ok := results[0]
	assert.Empty(t, ok.Error)
	assert.Equal(t, []string{"1. EA628W-25B"}, ok.Keywords)
	require.Len(t, ok.PriceComparison, 1)
	assert.Equal(t, "EA628W-25B", ok.PriceComparison[0].ModelNumber)
	require.Len(t, ok.DetailedProducts, 1)

	failed := results[1]
	assert.Contains(t, failed.Error, ErrNoModelNumbers.Error())
	assert.NotNil(t, failed.PriceComparison)
	assert.Empty(t, failed.PriceComparison)
	assert.NotNil(t, failed.DetailedProducts)
}

func TestDetailedBatchLimits(t *testing.T) {
	e := newTestEngine(testOptions("0.9"), &fakeAdapter{name: "a"})

	_, err := e.DetailedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = e.DetailedBatch(context.Background(), []string{"a1", "b2", "c3", "d4", "e5", "f6"})
	assert.ErrorIs(t, err, ErrTooManyItems)
}
