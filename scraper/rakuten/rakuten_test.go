package rakuten

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

const apiResponse = `{"Items":[{
	"itemName":"ESCO EA628W-25B",
	"itemPrice":1500,
	"itemUrl":"https://item.rakuten.co.jp/tool/ea628w-25b/",
	"affiliateUrl":"",
	"shopName":"Tool Shop",
	"mediumImageUrls":["https://thumbnail.image.rakuten.co.jp/@0_mall/tool/cabinet/a.jpg?_ex=128x128"],
	"smallImageUrls":["https://thumbnail.image.rakuten.co.jp/@0_mall/tool/cabinet/a.jpg?_ex=64x64"],
	"reviewAverage":4.5,
	"reviewCount":10,
	"postageFlag":0,
	"availability":1,
	"pointRate":2
}]}`

func TestSearchByKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "app-1", q.Get("applicationId"))
		assert.Equal(t, "aff-1", q.Get("affiliateId"))
		assert.Equal(t, "EA628W-25B", q.Get("keyword"))
		assert.Equal(t, "+itemPrice", q.Get("sort"))
		assert.Equal(t, "30", q.Get("hits"))
		_, _ = w.Write([]byte(apiResponse))
	}))
	defer srv.Close()

	c := New(Config{ApplicationID: "app-1", AffiliateID: "aff-1", Endpoint: srv.URL}, srv.Client())
	got, err := c.SearchByKeyword(context.Background(), "EA628W-25B", 100)

	require.NoError(t, err)
	require.Len(t, got, 1)
	item := got[0]
	assert.Equal(t, json.Number("1500"), item.Price)
	assert.Equal(t, "https://item.rakuten.co.jp/tool/ea628w-25b/", item.URL)
	assert.Equal(t, "https://thumbnail.image.rakuten.co.jp/@0_mall/tool/cabinet/a.jpg?_ex=300x300", item.Images[0])
	require.NotNil(t, item.ShippingFee)
	assert.Equal(t, 0, *item.ShippingFee)
	assert.Equal(t, 45.0, item.Ranking)
	assert.True(t, item.Available)
	assert.Equal(t, 2, item.Extra[models.InfoPoints])
}

func TestSearchByKeywordRetriesSimplifiedParamsOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("sort") != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"wrong_parameter"}`))
			return
		}
		_, _ = w.Write([]byte(apiResponse))
	}))
	defer srv.Close()

	c := New(Config{ApplicationID: "app-1", Endpoint: srv.URL}, srv.Client())
	got, err := c.SearchByKeyword(context.Background(), "EA628W-25B", 5)

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), calls)
}

func TestSearchByKeywordFormatVersion1Images(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Items":[{"itemName":"x","itemPrice":"980","mediumImageUrls":[{"imageUrl":"https://shop.r10s.jp/a.jpg"}]}]}`))
	}))
	defer srv.Close()

	c := New(Config{ApplicationID: "app-1", Endpoint: srv.URL}, srv.Client())
	got, err := c.SearchByKeyword(context.Background(), "x", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, json.Number("980"), got[0].Price)
	assert.Equal(t, []string{"https://shop.r10s.jp/a.jpg"}, got[0].Images)

	var list imageList
	require.NoError(t, list.UnmarshalJSON([]byte(`[{"imageUrl":"https://a"},"https://b"]`)))
	assert.Equal(t, imageList{"https://a", "https://b"}, list)
}

func TestSearchByKeywordRequiresCredentials(t *testing.T) {
	_, err := New(Config{}, nil).SearchByKeyword(context.Background(), "x", 5)
	assert.ErrorIs(t, err, scraper.ErrNotConfigured)
}

func TestUpgradeThumbnail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://thumbnail.image.rakuten.co.jp/@0_mall/a.jpg?_ex=128x128", "https://thumbnail.image.rakuten.co.jp/@0_mall/a.jpg?_ex=300x300"},
		{"https://thumbnail.image.rakuten.co.jp/@0_mall/a.jpg", "https://thumbnail.image.rakuten.co.jp/@0_mall/a.jpg?_ex=300x300"},
		{"https://thumbnail.image.rakuten.co.jp/@0_mall/a.jpg?fit=1", "https://thumbnail.image.rakuten.co.jp/@0_mall/a.jpg?fit=1&_ex=300x300"},
		{"https://shop.r10s.jp/a.jpg", "https://shop.r10s.jp/a.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UpgradeThumbnail(tt.in))
	}
}

func TestParseSearchPage(t *testing.T) {
	page := `<html><body>
	<div class="searchresultitem">
	  <div class="image"><img src="https://thumbnail.image.rakuten.co.jp/@0_mall/tool/b.jpg?_ex=128x128"></div>
	  <h2><a href="https://item.rakuten.co.jp/tool/b/">ESCO EA628W-25B 6.3mm</a></h2>
	  <div class="important">1,650円</div>
	  <div class="merchant"><a href="https://www.rakuten.co.jp/tool/">工具屋</a></div>
	</div>
	</body></html>`

	got, err := New(Config{}, nil).ParseSearchPage("EA628W-25B", []byte(page), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ESCO EA628W-25B 6.3mm", got[0].Title)
	assert.Equal(t, "1,650円", got[0].Price)
	assert.Equal(t, "工具屋", got[0].Shop)
	assert.Equal(t, "https://thumbnail.image.rakuten.co.jp/@0_mall/tool/b.jpg?_ex=300x300", got[0].Images[0])
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://search.rakuten.co.jp/search/mall/EA628W-25B/", New(Config{}, nil).SearchURL("EA628W-25B"))
}
