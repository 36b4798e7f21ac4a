// Package rakuten implements the Rakuten Ichiba backend: the Ichiba item
// search API with a search-page scraping fallback.
package rakuten

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

const (
	defaultEndpoint = "https://app.rakuten.co.jp/services/api/IchibaItem/Search/20170706"
	defaultSite     = "https://search.rakuten.co.jp"
	maxHits         = 30
	thumbnailHost   = "thumbnail.image.rakuten.co.jp"
	thumbnailSize   = "300x300"
)

var exSizeRegexp = regexp.MustCompile(`_ex=\d+x\d+`)

// Config holds the Rakuten Web Service credentials.
type Config struct {
	ApplicationID string
	AffiliateID   string
	Endpoint      string
	SiteURL       string
}

// Client is the Rakuten backend.
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

func (c *Client) Name() string { return models.SourceRakuten }

func (c *Client) SearchURL(query string) string {
	return c.cfg.SiteURL + "/search/mall/" + url.PathEscape(strings.TrimSpace(query)) + "/"
}

// imageList accepts both formatVersion 2 (plain strings) and formatVersion 1
// ({"imageUrl": ...}) image arrays.
type imageList []string

func (l *imageList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			*l = append(*l, s)
			continue
		}
		var obj struct {
			ImageURL string `json:"imageUrl"`
		}
		if err := json.Unmarshal(r, &obj); err == nil && obj.ImageURL != "" {
			*l = append(*l, obj.ImageURL)
		}
	}
	return nil
}

type item struct {
	ItemName        string      `json:"itemName"`
	ItemPrice       json.Number `json:"itemPrice"`
	ItemURL         string      `json:"itemUrl"`
	AffiliateURL    string      `json:"affiliateUrl"`
	ItemCode        string      `json:"itemCode"`
	ItemCaption     string      `json:"itemCaption"`
	ShopName        string      `json:"shopName"`
	MediumImageURLs imageList   `json:"mediumImageUrls"`
	SmallImageURLs  imageList   `json:"smallImageUrls"`
	ReviewAverage   float64     `json:"reviewAverage"`
	ReviewCount     int         `json:"reviewCount"`
	PostageFlag     *int        `json:"postageFlag"`
	Availability    *int        `json:"availability"`
	PointRate       int         `json:"pointRate"`
}

type searchResponse struct {
	Items []item `json:"Items"`
}

// SearchByKeyword queries the Ichiba item search API, cheapest first. A 400
// for the full parameter set is retried once with the minimal set.
func (c *Client) SearchByKeyword(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	if c.cfg.ApplicationID == "" {
		return nil, scraper.ErrNotConfigured
	}
	hits := strconv.Itoa(min(max(limit, 1), maxHits))
	keyword := strings.TrimSpace(query)

	full := url.Values{
		"applicationId": {c.cfg.ApplicationID},
		"keyword":       {keyword},
		"hits":          {hits},
		"page":          {"1"},
		"sort":          {"+itemPrice"},
		"imageFlag":     {"1"},
		"availability":  {"1"},
		"formatVersion": {"2"},
	}
	if c.cfg.AffiliateID != "" {
		full.Set("affiliateId", c.cfg.AffiliateID)
	}

	resp, err := c.search(ctx, full)
	var status *scraper.StatusError
	if errors.As(err, &status) && status.Code == http.StatusBadRequest {
		resp, err = c.search(ctx, url.Values{
			"applicationId": {c.cfg.ApplicationID},
			"keyword":       {keyword},
			"hits":          {hits},
			"formatVersion": {"2"},
		})
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.RawListing, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, toRaw(it))
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, params url.Values) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := scraper.DoJSON(c.http, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func toRaw(it item) models.RawListing {
	raw := models.RawListing{
		Source:      models.SourceRakuten,
		Title:       it.ItemName,
		Price:       it.ItemPrice,
		URL:         it.AffiliateURL,
		Description: it.ItemCaption,
		Shop:        it.ShopName,
		Available:   it.Availability == nil || *it.Availability != 0,
		Rating:      it.ReviewAverage,
		ReviewCount: it.ReviewCount,
		Ranking:     it.ReviewAverage * float64(it.ReviewCount),
		ScrapedAt:   time.Now(),
	}
	if raw.URL == "" {
		raw.URL = it.ItemURL
	}
	for _, img := range it.MediumImageURLs {
		raw.Images = append(raw.Images, UpgradeThumbnail(img))
	}
	raw.Images = append(raw.Images, it.SmallImageURLs...)
	if it.ItemCode != "" {
		code := strings.ReplaceAll(it.ItemCode, ":", "/")
		raw.Images = append(raw.Images, fmt.Sprintf("https://%s/@0_mall/%s.jpg", thumbnailHost, code))
	}
	if it.PostageFlag != nil && *it.PostageFlag == 0 {
		free := 0
		raw.ShippingFee = &free
	}
	if it.PointRate > 0 {
		raw.Extra = map[string]any{models.InfoPoints: it.PointRate}
	}
	return raw
}

// UpgradeThumbnail requests the 300x300 rendition of a Rakuten thumbnail.
func UpgradeThumbnail(img string) string {
	u, err := url.Parse(img)
	if err != nil || u.Host != thumbnailHost {
		return img
	}
	if exSizeRegexp.MatchString(img) {
		return exSizeRegexp.ReplaceAllString(img, "_ex="+thumbnailSize)
	}
	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	return img + sep + "_ex=" + thumbnailSize
}

// ParseSearchPage reads result cards from a search.rakuten.co.jp page.
func (c *Client) ParseSearchPage(query string, page []byte, limit int) ([]models.RawListing, error) {
	items, err := scraper.ExtractCards(models.SourceRakuten, page, c.cfg.SiteURL, selectors, limit)
	if err != nil {
		return nil, err
	}
	for i := range items {
		for j, img := range items[i].Images {
			items[i].Images[j] = UpgradeThumbnail(img)
		}
	}
	return items, nil
}

var selectors = scraper.CardSelectors{
	Cards: []string{
		"div.searchresultitem",
		`div[class*="searchresultitem"]`,
		`div[class*="dui-card"]`,
	},
	Title:   []string{"h2 a", ".title a", `a[class*="title-link"]`},
	Price:   []string{".important", `[class*="price--"]`, ".price"},
	Link:    []string{"h2 a", ".title a", `a[class*="title-link"]`, "a"},
	Image:   []string{"img._verticallyaligned", ".image img", "img"},
	Shop:    []string{".merchant a", `[class*="merchant"] a`},
	Rating:  []string{".score", `[class*="score"]`},
	Reviews: []string{".legend", `[class*="review"] a`},
}
