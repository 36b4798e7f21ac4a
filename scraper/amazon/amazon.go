// Package amazon implements the Amazon.co.jp backend: Product Advertising
// API 5.0 SearchItems with a search-page scraping fallback.
package amazon

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"price-aggregator/models"
	"price-aggregator/scraper"
)

const (
	defaultHost   = "webservices.amazon.co.jp"
	defaultRegion = "us-west-2"
	defaultSite   = "https://www.amazon.co.jp"
	marketplace   = "www.amazon.co.jp"
	service       = "ProductAdvertisingAPI"
	searchTarget  = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.SearchItems"
	maxItemCount  = 10
)

var searchResources = []string{
	"ItemInfo.Title",
	"Images.Primary.Large",
	"Images.Primary.Medium",
	"Images.Primary.Small",
	"Offers.Listings.Price",
	"Offers.Listings.MerchantInfo",
	"Offers.Listings.Availability.Type",
	"Offers.Listings.DeliveryInfo.IsPrimeEligible",
}

// sizeTokenRegexp matches the rendition token in image URLs such as
// "._AC_UL320_.jpg".
var sizeTokenRegexp = regexp.MustCompile(`\._[A-Z0-9_,]+_\.(jpg|jpeg|png|webp)$`)

// Config holds PA-API credentials. Endpoint and SiteURL override the
// production hosts.
type Config struct {
	AccessKey  string
	SecretKey  string
	PartnerTag string
	Region     string
	Host       string
	Endpoint   string
	SiteURL    string
}

// Client is the Amazon backend.
type Client struct {
	cfg    Config
	http   *http.Client
	signer *v4.Signer
	now    func() time.Time
}

// New creates the backend. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://" + cfg.Host + "/paapi5/searchitems"
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = defaultSite
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient, signer: v4.NewSigner(), now: time.Now}
}

func (c *Client) Name() string { return models.SourceAmazon }

// Configured reports whether PA-API credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.AccessKey != "" && c.cfg.SecretKey != "" && c.cfg.PartnerTag != ""
}

func (c *Client) SearchURL(query string) string {
	return c.cfg.SiteURL + "/s?k=" + url.QueryEscape(strings.TrimSpace(query))
}

type searchItemsRequest struct {
	Keywords    string   `json:"Keywords"`
	SearchIndex string   `json:"SearchIndex"`
	ItemCount   int      `json:"ItemCount"`
	PartnerTag  string   `json:"PartnerTag"`
	PartnerType string   `json:"PartnerType"`
	Marketplace string   `json:"Marketplace"`
	Resources   []string `json:"Resources"`
}

type imageRef struct {
	URL string `json:"URL"`
}

type item struct {
	ASIN          string `json:"ASIN"`
	DetailPageURL string `json:"DetailPageURL"`
	ItemInfo      struct {
		Title struct {
			DisplayValue string `json:"DisplayValue"`
		} `json:"Title"`
	} `json:"ItemInfo"`
	Images struct {
		Primary struct {
			Large  *imageRef `json:"Large"`
			Medium *imageRef `json:"Medium"`
			Small  *imageRef `json:"Small"`
		} `json:"Primary"`
	} `json:"Images"`
	Offers struct {
		Listings []struct {
			Price struct {
				Amount        float64 `json:"Amount"`
				DisplayAmount string  `json:"DisplayAmount"`
			} `json:"Price"`
			MerchantInfo struct {
				Name string `json:"Name"`
			} `json:"MerchantInfo"`
			Availability struct {
				Type string `json:"Type"`
			} `json:"Availability"`
			DeliveryInfo struct {
				IsPrimeEligible bool `json:"IsPrimeEligible"`
			} `json:"DeliveryInfo"`
		} `json:"Listings"`
	} `json:"Offers"`
}

type searchItemsResponse struct {
	SearchResult *struct {
		Items []item `json:"Items"`
	} `json:"SearchResult"`
	Errors []struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Errors"`
}

// SearchByKeyword calls PA-API SearchItems with a SigV4-signed request.
func (c *Client) SearchByKeyword(ctx context.Context, query string, limit int) ([]models.RawListing, error) {
	if !c.Configured() {
		return nil, scraper.ErrNotConfigured
	}

	payload, err := json.Marshal(searchItemsRequest{
		Keywords:    strings.TrimSpace(query),
		SearchIndex: "All",
		ItemCount:   min(max(limit, 1), maxItemCount),
		PartnerTag:  c.cfg.PartnerTag,
		PartnerType: "Associates",
		Marketplace: marketplace,
		Resources:   searchResources,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Content-Encoding", "amz-1.0")
	req.Header.Set("X-Amz-Target", searchTarget)

	sum := sha256.Sum256(payload)
	creds := aws.Credentials{AccessKeyID: c.cfg.AccessKey, SecretAccessKey: c.cfg.SecretKey}
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), service, c.cfg.Region, c.now()); err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	var resp searchItemsResponse
	if err := scraper.DoJSON(c.http, req, &resp); err != nil {
		return nil, err
	}
	if resp.SearchResult == nil {
		if len(resp.Errors) > 0 {
			if resp.Errors[0].Code == "NoResults" {
				return nil, nil
			}
			return nil, fmt.Errorf("paapi %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
		}
		return nil, fmt.Errorf("paapi: response without SearchResult")
	}

	out := make([]models.RawListing, 0, len(resp.SearchResult.Items))
	for _, it := range resp.SearchResult.Items {
		out = append(out, c.toRaw(it))
	}
	return out, nil
}

func (c *Client) toRaw(it item) models.RawListing {
	raw := models.RawListing{
		Source:    models.SourceAmazon,
		Title:     it.ItemInfo.Title.DisplayValue,
		URL:       it.DetailPageURL,
		ScrapedAt: time.Now(),
	}
	if raw.URL == "" && it.ASIN != "" {
		raw.URL = c.itemURL(it.ASIN)
	}
	for _, img := range []*imageRef{it.Images.Primary.Large, it.Images.Primary.Medium, it.Images.Primary.Small} {
		if img != nil && img.URL != "" {
			raw.Images = append(raw.Images, img.URL)
		}
	}
	if len(it.Offers.Listings) > 0 {
		offer := it.Offers.Listings[0]
		if offer.Price.Amount > 0 {
			raw.Price = offer.Price.Amount
		} else {
			raw.Price = offer.Price.DisplayAmount
		}
		raw.Shop = offer.MerchantInfo.Name
		raw.Available = offer.Availability.Type != "OutOfStock"
		raw.Extra = map[string]any{models.InfoPrime: offer.DeliveryInfo.IsPrimeEligible}
	}
	return raw
}

func (c *Client) itemURL(asin string) string {
	u := c.cfg.SiteURL + "/dp/" + asin
	if c.cfg.PartnerTag != "" {
		u += "?tag=" + url.QueryEscape(c.cfg.PartnerTag)
	}
	return u
}

// ParseSearchPage reads result cards from an amazon.co.jp search page.
func (c *Client) ParseSearchPage(query string, page []byte, limit int) ([]models.RawListing, error) {
	return scraper.ExtractCards(models.SourceAmazon, page, c.cfg.SiteURL, c.selectors(), limit)
}

func (c *Client) selectors() scraper.CardSelectors {
	return scraper.CardSelectors{
		Cards: []string{
			`div.s-result-item[data-asin]:not([data-asin=""])`,
			`div[data-component-type="s-search-result"]`,
			`[data-asin]:not([data-asin=""])`,
		},
		Title:   []string{"h2 a span", "h2 span", ".a-text-normal"},
		Price:   []string{".a-price .a-offscreen", ".a-price-whole", ".a-color-price"},
		Link:    []string{"h2 a", "a.a-link-normal"},
		Image:   []string{"img.s-image", "img"},
		Rating:  []string{".a-icon-alt"},
		Reviews: []string{"span.a-size-base.s-underline-text", `a[href*="#customerReviews"] span`},
		Decorate: func(card *goquery.Selection, raw *models.RawListing) {
			if asin, ok := card.Attr("data-asin"); ok && asin != "" {
				raw.URL = c.itemURL(asin)
			}
			raw.Extra = map[string]any{models.InfoPrime: card.Find("i.a-icon-prime").Length() > 0}
			raw.Images = upgradeImages(raw.Images)
		},
	}
}

// upgradeImages puts a large rendition of every sized image ahead of the
// original.
func upgradeImages(images []string) []string {
	out := make([]string, 0, len(images)*2)
	for _, img := range images {
		if sizeTokenRegexp.MatchString(img) {
			out = append(out, sizeTokenRegexp.ReplaceAllString(img, "._AC_SL500_.$1"))
		}
		out = append(out, img)
	}
	return out
}
