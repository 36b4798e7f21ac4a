package amazon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

func testConfig(endpoint string) Config {
	return Config{AccessKey: "AKID", SecretKey: "SECRET", PartnerTag: "tag-22", Endpoint: endpoint}
}

func TestSearchByKeywordSignsAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, searchTarget, r.Header.Get("X-Amz-Target"))
		assert.Equal(t, "amz-1.0", r.Header.Get("Content-Encoding"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=AKID/"))
		assert.Contains(t, r.Header.Get("Authorization"), "/us-west-2/ProductAdvertisingAPI/aws4_request")

		var body searchItemsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "EA628W-25B", body.Keywords)
		assert.Equal(t, "tag-22", body.PartnerTag)
		assert.Equal(t, maxItemCount, body.ItemCount)

		_, _ = w.Write([]byte(`{"SearchResult":{"Items":[{
			"ASIN":"B000TEST01",
			"DetailPageURL":"https://www.amazon.co.jp/dp/B000TEST01?tag=tag-22",
			"ItemInfo":{"Title":{"DisplayValue":"ESCO EA628W-25B"}},
			"Images":{"Primary":{"Large":{"URL":"https://m.media-amazon.com/images/I/large.jpg"},"Small":{"URL":"https://m.media-amazon.com/images/I/small.jpg"}}},
			"Offers":{"Listings":[{"Price":{"Amount":1500,"DisplayAmount":"￥1,500"},"MerchantInfo":{"Name":"Tool Store"},"DeliveryInfo":{"IsPrimeEligible":true}}]}
		}]}}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), srv.Client())
	got, err := c.SearchByKeyword(context.Background(), "EA628W-25B", 25)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ESCO EA628W-25B", got[0].Title)
	assert.Equal(t, 1500.0, got[0].Price)
	assert.Equal(t, "Tool Store", got[0].Shop)
	assert.Equal(t, []string{"https://m.media-amazon.com/images/I/large.jpg", "https://m.media-amazon.com/images/I/small.jpg"}, got[0].Images)
	assert.Equal(t, true, got[0].Extra[models.InfoPrime])
	assert.True(t, got[0].Available)
}

func TestSearchByKeywordNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Errors":[{"Code":"NoResults","Message":"no items"}]}`))
	}))
	defer srv.Close()

	got, err := New(testConfig(srv.URL), srv.Client()).SearchByKeyword(context.Background(), "zzz", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchByKeywordThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), srv.Client()).SearchByKeyword(context.Background(), "x", 3)
	var status *scraper.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusTooManyRequests, status.Code)
}

func TestSearchByKeywordRequiresCredentials(t *testing.T) {
	_, err := New(Config{}, nil).SearchByKeyword(context.Background(), "x", 3)
	assert.ErrorIs(t, err, scraper.ErrNotConfigured)
}

const searchPage = `<html><body>
<div class="s-result-item" data-asin="">sponsored header</div>
<div class="s-result-item" data-asin="B0AAAAAAA1">
  <h2><a class="a-link-normal" href="/sspa/click?x=1"><span>ESCO EA628W-25B ラチェットレンチ</span></a></h2>
  <span class="a-price"><span class="a-offscreen">￥1,480</span></span>
  <img class="s-image" src="https://m.media-amazon.com/images/I/71abc._AC_UL320_.jpg">
  <span class="a-icon-alt">5つ星のうち4.3</span>
  <span class="a-size-base s-underline-text">1,024</span>
  <i class="a-icon a-icon-prime"></i>
</div>
<div class="s-result-item" data-asin="B0AAAAAAA2">
  <h2><a href="/dp/B0AAAAAAA2"><span>Other wrench</span></a></h2>
</div>
</body></html>`

func TestParseSearchPage(t *testing.T) {
	c := New(Config{PartnerTag: "tag-22"}, nil)
	got, err := c.ParseSearchPage("EA628W-25B", []byte(searchPage), 10)

	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "ESCO EA628W-25B ラチェットレンチ", first.Title)
	assert.Equal(t, "￥1,480", first.Price)
	assert.Equal(t, "https://www.amazon.co.jp/dp/B0AAAAAAA1?tag=tag-22", first.URL)
	assert.Equal(t, "https://m.media-amazon.com/images/I/71abc._AC_SL500_.jpg", first.Images[0])
	assert.Equal(t, 4.3, first.Rating)
	assert.Equal(t, 1024, first.ReviewCount)
	assert.Equal(t, true, first.Extra[models.InfoPrime])

	assert.Equal(t, false, got[1].Extra[models.InfoPrime])
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://www.amazon.co.jp/s?k=EA628W-25B+wrench", New(Config{}, nil).SearchURL(" EA628W-25B wrench "))
}
