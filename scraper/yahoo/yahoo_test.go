package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

func TestSearchByKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "client-1", q.Get("appid"))
		assert.Equal(t, "EA628W-25B", q.Get("query"))
		assert.Equal(t, "+price", q.Get("sort"))
		assert.Equal(t, "5", q.Get("results"))
		_, _ = w.Write([]byte(`{"totalResultsAvailable":2,"hits":[
			{"name":"ESCO EA628W-25B","price":1580,"url":"https://store.shopping.yahoo.co.jp/tool/ea628w.html",
			 "inStock":true,"image":{"small":"https://item-shopping.c.yimg.jp/i/c/s.jpg","medium":"https://item-shopping.c.yimg.jp/i/g/m.jpg"},
			 "exImage":{"url":"https://item-shopping.c.yimg.jp/i/n/ex.jpg"},
			 "review":{"rate":4.0,"count":3},"store":{"name":"工具のお店"},
			 "shipping":{"code":2,"name":"送料無料"},"point":{"amount":15}},
			{"name":"Out of stock","price":1200,"url":"https://store.shopping.yahoo.co.jp/tool/x.html","inStock":false,
			 "shipping":{"code":1,"name":"設定なし"}}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{ClientID: "client-1", Endpoint: srv.URL}, srv.Client())
	got, err := c.SearchByKeyword(context.Background(), " EA628W-25B ", 5)

	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, 1580, first.Price)
	assert.Equal(t, "https://item-shopping.c.yimg.jp/i/n/ex.jpg", first.Images[0])
	assert.Equal(t, "工具のお店", first.Shop)
	require.NotNil(t, first.ShippingFee)
	assert.Equal(t, 0, *first.ShippingFee)
	assert.Equal(t, 12.0, first.Ranking)
	assert.Equal(t, 15, first.Extra[models.InfoPoints])
	assert.True(t, first.Available)

	assert.False(t, got[1].Available)
	assert.Nil(t, got[1].ShippingFee)
}

func TestSearchByKeywordServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(Config{ClientID: "c", Endpoint: srv.URL}, srv.Client()).SearchByKeyword(context.Background(), "x", 5)
	var status *scraper.StatusError
	assert.ErrorAs(t, err, &status)
}

func TestSearchByKeywordRequiresCredentials(t *testing.T) {
	_, err := New(Config{}, nil).SearchByKeyword(context.Background(), "x", 5)
	assert.ErrorIs(t, err, scraper.ErrNotConfigured)
}

func TestParseSearchPage(t *testing.T) {
	page := `<html><body><ul>
	<li class="LoopList__item">
	  <img class="SearchResultItemImage_image" src="https://item-shopping.c.yimg.jp/i/j/a.jpg">
	  <a class="SearchResultItemTitle_SearchResultItemTitle__name ItemTitle" href="https://store.shopping.yahoo.co.jp/tool/a.html">EA628W-25B レンチ</a>
	  <span class="SearchResultItemPrice ItemPrice">1,700円</span>
	  <a class="SearchResultItemStore StoreName" href="https://store.shopping.yahoo.co.jp/tool/">工具のお店</a>
	</li>
	</ul></body></html>`

	got, err := New(Config{}, nil).ParseSearchPage("EA628W-25B", []byte(page), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EA628W-25B レンチ", got[0].Title)
	assert.Equal(t, "1,700円", got[0].Price)
	assert.Equal(t, "https://store.shopping.yahoo.co.jp/tool/a.html", got[0].URL)
	assert.Equal(t, "工具のお店", got[0].Shop)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://shopping.yahoo.co.jp/search?p=EA628W-25B", New(Config{}, nil).SearchURL("EA628W-25B"))
}
