package scraper

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-aggregator/models"
)

const searchPage = `<html><body>
<div class="result">
  <h3><a href="/item/1">Wrench EA628W-25B</a></h3>
  <span class="price">¥1,500</span>
  <img srcset="//img.example.com/1-small.jpg 1x, //img.example.com/1-large.jpg 2x" src="data:image/gif;base64,AAA">
  <span class="shop">Tool Store</span>
  <span class="stars">4.5</span><span class="count">(120)</span>
</div>
<div class="result">
  <h3><a href="/item/1">Duplicate card</a></h3>
  <span class="price">¥1,600</span>
</div>
<div class="result">
  <h3><a href="https://other.example.com/item/2">Wrench set</a></h3>
  <span class="amount">2,980円</span>
  <img data-src="/images/2.jpg">
</div>
<div class="result">
  <h3><a href="/item/3">Third</a></h3>
  <span class="price">¥3,000</span>
</div>
</body></html>`

var testSelectors = CardSelectors{
	Cards:   []string{".missing-card", ".result"},
	Title:   []string{".missing-title", "h3 a"},
	Price:   []string{".price", ".amount"},
	Link:    []string{"h3 a"},
	Image:   []string{"img"},
	Shop:    []string{".shop"},
	Rating:  []string{".stars"},
	Reviews: []string{".count"},
}

func TestExtractCardsCascade(t *testing.T) {
	got, err := ExtractCards("fake", []byte(searchPage), "https://shop.example.com/search", testSelectors, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	first := got[0]
	assert.Equal(t, "Wrench EA628W-25B", first.Title)
	assert.Equal(t, "¥1,500", first.Price)
	assert.Equal(t, "https://shop.example.com/item/1", first.URL)
	assert.Equal(t, "//img.example.com/1-large.jpg", first.Images[0])
	assert.Equal(t, "Tool Store", first.Shop)
	assert.Equal(t, 4.5, first.Rating)
	assert.Equal(t, 120, first.ReviewCount)
	assert.Equal(t, 540.0, first.Ranking)
	assert.True(t, first.Available)

	second := got[1]
	assert.Equal(t, "2,980円", second.Price, "price cascade falls through to the second selector")
	assert.Equal(t, "https://other.example.com/item/2", second.URL)
	assert.Equal(t, []string{"https://shop.example.com/images/2.jpg"}, second.Images)
}

func TestExtractCardsLimit(t *testing.T) {
	got, err := ExtractCards("fake", []byte(searchPage), "https://shop.example.com/", testSelectors, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestExtractCardsNoMatch(t *testing.T) {
	_, err := ExtractCards("fake", []byte("<html><body><p>captcha</p></body></html>"), "https://shop.example.com/", testSelectors, 0)
	assert.ErrorIs(t, err, ErrNoCards)
}

func TestExtractCardsDecorate(t *testing.T) {
	sel := testSelectors
	sel.Decorate = func(card *goquery.Selection, raw *models.RawListing) {
		raw.Extra = map[string]any{"has_shop": card.Find(".shop").Length() > 0}
	}

	got, err := ExtractCards("fake", []byte(searchPage), "https://shop.example.com/", sel, 0)
	require.NoError(t, err)
	assert.Equal(t, true, got[0].Extra["has_shop"])
	assert.Equal(t, false, got[1].Extra["has_shop"])
}

func TestLargestSrcset(t *testing.T) {
	assert.Equal(t, "b.jpg", largestSrcset("a.jpg 1x, b.jpg 2x"))
	assert.Equal(t, "a.jpg", largestSrcset("a.jpg"))
	assert.Equal(t, "", largestSrcset(""))
}
