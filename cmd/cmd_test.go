package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"price-aggregator/config"
	"price-aggregator/models"
)

func sampleRecords() []models.PriceRecord {
	return []models.PriceRecord{
		{Source: "rakuten", Title: "ラチェットハンドル EA628W-25B", Price: 1500, Shop: "楽天市場", URL: "https://item.rakuten.co.jp/a"},
		{Source: "kakaku", Title: "EA628W-25B Basic (価格.com)", Price: 1700, Shop: "価格.com", URL: "https://kakaku.com/search_results/x", IsFallback: true},
	}
}

func TestRenderPricesFormats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderPrices(&buf, outputJSON, sampleRecords()))
		var got []models.PriceRecord
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, sampleRecords(), got)
	})

	t.Run("yaml uses json field names", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderPrices(&buf, outputYAML, sampleRecords()))
		var got []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, 1500, got[0]["price"])
		assert.Equal(t, true, got[1]["is_fallback"])
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderPrices(&buf, outputCSV, sampleRecords()))
		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "source", rows[0][0])
		assert.Equal(t, "1500", rows[1][2])
		assert.Equal(t, "true", rows[2][5])
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderPrices(&buf, outputTable, sampleRecords()))
		out := buf.String()
		assert.Contains(t, out, "SOURCE")
		assert.Contains(t, out, "¥1,500")
		assert.Contains(t, out, "rakuten")
	})

	t.Run("empty table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderPrices(&buf, outputTable, nil))
		assert.Equal(t, "No results.\n", buf.String())
	})
}

func TestRenderListingsShipping(t *testing.T) {
	free, paid := 0, 550
	listings := []models.Listing{
		{Source: "yahoo", Title: "A", Price: 1000, ShippingFee: &free},
		{Source: "amazon", Title: "B", Price: 0, ShippingFee: &paid, Rating: 4.2, ReviewCount: 8},
		{Source: "kakaku", Title: "C", Price: 1200},
	}

	var table bytes.Buffer
	require.NoError(t, renderListings(&table, outputTable, listings))
	assert.Contains(t, table.String(), "free")
	assert.Contains(t, table.String(), "¥550")
	assert.Contains(t, table.String(), "4.20 (8)")

	var out bytes.Buffer
	require.NoError(t, renderListings(&out, outputCSV, listings))
	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "0", rows[1][7])
	assert.Equal(t, "550", rows[2][7])
	assert.Equal(t, "", rows[3][7])
}

func TestValidOutput(t *testing.T) {
	for _, f := range []string{"table", "json", "yaml", "csv"} {
		assert.NoError(t, validOutput(f))
	}
	assert.Error(t, validOutput("xml"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ラチェ…", truncate("ラチェットハンドル", 4))
}

func TestNewAppWiresConfiguredSources(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRICEAGG_CACHE_BACKEND", "none")
	t.Setenv("PRICEAGG_SCRAPE_ENABLED", "false")
	t.Setenv("PRICEAGG_SEARCH_SOURCES", "rakuten,kakaku")
	t.Setenv("PRICEAGG_LOG_LEVEL", "error")

	cfg, err := config.Load("")
	require.NoError(t, err)
	app, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close(context.Background())

	var names []string
	for _, a := range app.engine.Adapters() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"rakuten", "kakaku"}, names)
	assert.Len(t, app.caches, 2)
}

func TestNewAppServesSyntheticDataWithoutUpstreams(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRICEAGG_CACHE_BACKEND", "none")
	t.Setenv("PRICEAGG_SCRAPE_ENABLED", "false")
	t.Setenv("PRICEAGG_LOG_LEVEL", "error")
	for _, k := range []string{"RAKUTEN_APP_ID", "YAHOO_CLIENT_ID", "AMAZON_ACCESS_KEY", "AMAZON_SECRET_KEY"} {
		t.Setenv(k, "")
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	app, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close(context.Background())

	listings, err := app.engine.GetDetailedProducts(context.Background(), models.SearchQuery{Text: "電動ドリル"})
	require.NoError(t, err)
	require.NotEmpty(t, listings)
	for _, l := range listings {
		assert.True(t, l.IsFallback(), "%s returned live data without credentials", l.Source)
	}
}

func TestNewAppAppliesRakutenPriceLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, 0, 40)
		for i := 0; i < 40; i++ {
			items = append(items, fmt.Sprintf(
				`{"itemName":"ラチェット %d","itemPrice":%d,"itemUrl":"https://item.rakuten.co.jp/tool/%d/","shopName":"Tool Shop","availability":1}`,
				i, 1000+i*10, i))
		}
		_, _ = fmt.Fprintf(w, `{"Items":[%s]}`, strings.Join(items, ","))
	}))
	defer srv.Close()

	t.Chdir(t.TempDir())
	t.Setenv("PRICEAGG_CACHE_BACKEND", "none")
	t.Setenv("PRICEAGG_SCRAPE_ENABLED", "false")
	t.Setenv("PRICEAGG_SEARCH_SOURCES", "rakuten")
	t.Setenv("PRICEAGG_LOG_LEVEL", "error")
	t.Setenv("PRICEAGG_RAKUTEN_APP_ID", "app-1")
	t.Setenv("PRICEAGG_RAKUTEN_ENDPOINT", srv.URL)

	cfg, err := config.Load("")
	require.NoError(t, err)
	app, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close(context.Background())

	adapters := app.engine.Adapters()
	require.Len(t, adapters, 1)
	records := adapters[0].GetMultiplePrices(context.Background(), "ratchet")
	require.Len(t, records, 30)
	for _, r := range records {
		assert.False(t, r.IsFallback)
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "today")
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "price-aggregator 1.2.3"))
}
