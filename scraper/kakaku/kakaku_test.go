package kakaku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"price-aggregator/scraper"
)

const resultsPage = `<html><head><meta charset="Shift_JIS"></head><body>
<div class="p-result_item">
  <div class="p-result_item_image"><img src="//img1.kakaku.k-img.com/images/productimage/m/K0001.jpg"></div>
  <p class="p-result_item_title"><a href="/item/K0001/">エスコ EA628W-25B ラチェットハンドル</a></p>
  <p class="p-result_item_price">¥1,420～</p>
  <p class="p-result_item_shop">工具ショップ</p>
</div>
<div class="p-result_item">
  <p class="p-result_item_title"><a href="/item/K0002/">エスコ EA628W-25B セット</a></p>
  <p class="p-result_item_price">¥2,980</p>
</div>
</body></html>`

func TestParseSearchPageShiftJIS(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(resultsPage))
	require.NoError(t, err)

	got, err := New("").ParseSearchPage("EA628W-25B", encoded, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "エスコ EA628W-25B ラチェットハンドル", got[0].Title)
	assert.Equal(t, "https://kakaku.com/item/K0001/", got[0].URL)
	assert.Equal(t, "工具ショップ", got[0].Shop)
	assert.Equal(t, "//img1.kakaku.k-img.com/images/productimage/m/K0001.jpg", got[0].Images[0])
	assert.Equal(t, "https://kakaku.com/item/K0002/", got[1].URL)
}

func TestParseSearchPageUTF8(t *testing.T) {
	got, err := New("").ParseSearchPage("EA628W-25B", []byte(resultsPage), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseSearchPageNoResults(t *testing.T) {
	_, err := New("").ParseSearchPage("zzz", []byte(`<html><body><p>該当する製品はありません</p></body></html>`), 10)
	assert.ErrorIs(t, err, scraper.ErrNoCards)
}

func TestKakakuHasNoAPI(t *testing.T) {
	var backend scraper.Backend = New("")
	_, ok := backend.(scraper.APISearcher)
	assert.False(t, ok)
	assert.Equal(t, "https://kakaku.com/search_results/EA628W-25B/", backend.SearchURL("EA628W-25B"))
}
