// Package yahoo implements the Yahoo!ショッピング backend: the V3 item
// search API with a search-page scraping fallback.
package yahoo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

const (
	defaultEndpoint = "https://shopping.yahooapis.jp/ShoppingWebService/V3/itemSearch"
	defaultSite     = "https://shopping.yahoo.co.jp"
	maxResults      = 50
	shippingFree    = 2
)

// Config holds the Yahoo! Developer client id.
type Config struct {
	ClientID string
	Endpoint string
	SiteURL  string
}

// Client is the Yahoo!ショッピング backend.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates the backend. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = defaultSite
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) Name() string { return models.SourceYahoo }

func (c *Client) SearchURL(query string) string {
	return c.cfg.SiteURL + "/search?p=" + url.QueryEscape(strings.TrimSpace(query))
}

type hit struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	URL         string `json:"url"`
	InStock     *bool  `json:"inStock"`
	Image       struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
	} `json:"image"`
	ExImage struct {
		URL string `json:"url"`
	} `json:"exImage"`
	Review struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"review"`
	Store struct {
		Name string `json:"name"`
	} `json:"store"`
	Shipping struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"shipping"`
	Point struct {
		Amount int `json:"amount"`
	} `json:"point"`
}

type searchResponse struct {
	TotalResultsAvailable int   `json:"totalResultsAvailable"`
	Hits                  []hit `json:"hits"`
}

// SearchByKeyword queries the item search API, cheapest first.
func (c *Client) SearchByKeyword(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	if c.cfg.ClientID == "" {
		return nil, scraper.ErrNotConfigured
	}

	params := url.Values{
		"appid":   {c.cfg.ClientID},
		"query":   {strings.TrimSpace(query)},
		"results": {strconv.Itoa(min(max(limit, 1), maxResults))},
		"sort":    {"+price"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := scraper.DoJSON(c.http, req, &resp); err != nil {
		return nil, err
	}

	out := make([]models.RawListing, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		out = append(out, toRaw(h))
	}
	return out, nil
}

func toRaw(h hit) models.RawListing {
	raw := models.RawListing{
		Source:      models.SourceYahoo,
		Title:       h.Name,
		Price:       h.Price,
		URL:         h.URL,
		Images:      []string{h.ExImage.URL, h.Image.Medium, h.Image.Small},
		Description: h.Description,
		Shop:        h.Store.Name,
		Available:   h.InStock == nil || *h.InStock,
		Rating:      h.Review.Rate,
		ReviewCount: h.Review.Count,
		Ranking:     h.Review.Rate * float64(h.Review.Count),
		ScrapedAt:   time.Now(),
	}
	if h.Shipping.Code == shippingFree {
		free := 0
		raw.ShippingFee = &free
	}
	if h.Point.Amount > 0 {
		raw.Extra = map[string]any{models.InfoPoints: h.Point.Amount}
	}
	return raw
}

// ParseSearchPage reads result cards from a shopping.yahoo.co.jp page.
func (c *Client) ParseSearchPage(query string, page []byte, limit int) ([]models.RawListing, error) {
	return scraper.ExtractCards(models.SourceYahoo, page, c.cfg.SiteURL, selectors, limit)
}

var selectors = scraper.CardSelectors{
	Cards: []string{
		"li.LoopList__item",
		`div[class*="SearchResult_SearchResult__detail"]`,
		`li[class*="SearchResultItem"]`,
	},
	Title:   []string{`a[class*="ItemTitle"]`, `[class*="SearchResultItemTitle"] a`, "p a"},
	Price:   []string{`span[class*="ItemPrice"]`, `[class*="SearchResultItemPrice"]`, `[class*="Price"]`},
	Link:    []string{`a[class*="ItemTitle"]`, `[class*="SearchResultItemTitle"] a`, "a"},
	Image:   []string{`img[class*="Image"]`, "img"},
	Shop:    []string{`a[class*="Store"]`, `[class*="StoreName"]`},
	Rating:  []string{`[class*="Review"] [class*="rate"]`, `[class*="ReviewRate"]`},
	Reviews: []string{`[class*="ReviewCount"]`, `[class*="Review"] a`},
}
