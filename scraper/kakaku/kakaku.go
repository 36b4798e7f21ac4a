// Package kakaku implements the 価格.com backend. Kakaku has no public
// search API, so listings come from its search-results page only.
package kakaku

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

const defaultSite = "https://kakaku.com"

// Client is the 価格.com backend.
type Client struct {
	siteURL string
}

// New creates the backend. An empty siteURL targets kakaku.com.
func New(siteURL string) *Client {
	if siteURL == "" {
		siteURL = defaultSite
	}
	return &Client{siteURL: siteURL}
}

func (c *Client) Name() string { return models.SourceKakaku }

func (c *Client) SearchURL(query string) string {
	return c.siteURL + "/search_results/" + url.PathEscape(strings.TrimSpace(query)) + "/"
}

// ParseSearchPage reads result cards from a search-results page. Pages are
// served as Shift_JIS and decoded when they are not valid UTF-8.
func (c *Client) ParseSearchPage(query string, page []byte, limit int) ([]models.RawListing, error) {
	decoded, err := toUTF8(page)
	if err != nil {
		return nil, err
	}
	return scraper.ExtractCards(models.SourceKakaku, decoded, c.siteURL, selectors, limit)
}

func toUTF8(page []byte) ([]byte, error) {
	if utf8.Valid(page) {
		return page, nil
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(page)
	if err != nil {
		return nil, fmt.Errorf("decoding Shift_JIS page: %w", err)
	}
	return decoded, nil
}

var selectors = scraper.CardSelectors{
	Cards:   []string{".p-result_item", ".c-list1_item", `div[class*="p-item"]`},
	Title:   []string{".p-result_item_title a", ".p-item_name", "a"},
	Price:   []string{".p-result_item_price", ".p-item_price", `[class*="price"]`},
	Link:    []string{".p-result_item_title a", ".p-item_name a", "a"},
	Image:   []string{".p-result_item_image img", "img"},
	Shop:    []string{".p-result_item_shop", `[class*="shop"]`},
	Rating:  []string{`[class*="rating"]`, `[class*="star"]`},
	Reviews: []string{`[class*="review"]`},
}
