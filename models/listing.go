package models

import (
	"strings"
	"time"
)

// Marketplace identifiers carried in Listing.Source.
const (
	SourceAmazon  = "amazon"
	SourceRakuten = "rakuten"
	SourceYahoo   = "yahoo"
	SourceKakaku  = "kakaku"
)

// Keys used in Listing.AdditionalInfo.
const (
	InfoFallback    = "is_fallback"
	InfoModelNumber = "model_number_used"
	InfoPrime       = "prime"
	InfoPoints      = "points"
)

// RawListing holds unprocessed data straight from an API response or a
// scraped search page. Price may be a string or a number depending on the
// upstream.
type RawListing struct {
	Source      string
	Title       string
	Price       any
	URL         string
	Images      []string // candidates, largest first
	Description string
	Shop        string
	Available   bool
	Rating      float64
	ReviewCount int
	ShippingFee *int
	Ranking     float64
	Extra       map[string]any
	ScrapedAt   time.Time
}

// Listing is the canonical, normalized product record shared by every
// marketplace.
type Listing struct {
	Source         string         `json:"source"`
	Title          string         `json:"title"`
	Price          int            `json:"price"`
	URL            string         `json:"url"`
	ImageURL       string         `json:"image_url"`
	Description    string         `json:"description,omitempty"`
	Shop           string         `json:"shop"`
	Availability   bool           `json:"availability"`
	Rating         float64        `json:"rating"`
	ReviewCount    int            `json:"review_count"`
	ShippingFee    *int           `json:"shipping_fee"`
	Ranking        float64        `json:"ranking,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

// IsFallback reports whether the listing is synthetic placeholder data.
func (l Listing) IsFallback() bool {
	v, _ := l.AdditionalInfo[InfoFallback].(bool)
	return v
}

// ModelNumber returns the model number the listing was searched with, if any.
func (l Listing) ModelNumber() string {
	v, _ := l.AdditionalInfo[InfoModelNumber].(string)
	return v
}

// WithInfo returns a copy of l with key set in AdditionalInfo. The receiver's
// map is never modified.
func (l Listing) WithInfo(key string, value any) Listing {
	info := make(map[string]any, len(l.AdditionalInfo)+1)
	for k, v := range l.AdditionalInfo {
		info[k] = v
	}
	info[key] = value
	l.AdditionalInfo = info
	return l
}

// PriceRecord projects the listing onto the flat price-comparison shape.
func (l Listing) PriceRecord() PriceRecord {
	return PriceRecord{
		Source:       l.Source,
		Title:        l.Title,
		Price:        l.Price,
		URL:          l.URL,
		Shop:         l.Shop,
		ImageURL:     l.ImageURL,
		Availability: l.Availability,
		IsFallback:   l.IsFallback(),
		ModelNumber:  l.ModelNumber(),
	}
}

// PriceRecord is the reduced projection used for price comparison.
type PriceRecord struct {
	Source       string `json:"source"`
	Title        string `json:"title"`
	Price        int    `json:"price"`
	URL          string `json:"url"`
	Shop         string `json:"shop"`
	ImageURL     string `json:"image_url"`
	Availability bool   `json:"availability"`
	IsFallback   bool   `json:"is_fallback,omitempty"`
	ModelNumber  string `json:"model_number_used,omitempty"`
}

// Listing widens the record back into a Listing, for writers that only
// accept listings. Fields the record does not carry stay zero.
func (p PriceRecord) Listing() Listing {
	l := Listing{
		Source:       p.Source,
		Title:        p.Title,
		Price:        p.Price,
		URL:          p.URL,
		ImageURL:     p.ImageURL,
		Shop:         p.Shop,
		Availability: p.Availability,
	}
	if p.IsFallback {
		l = l.WithInfo(InfoFallback, true)
	}
	if p.ModelNumber != "" {
		l = l.WithInfo(InfoModelNumber, p.ModelNumber)
	}
	return l
}

// SearchQuery is a user search. Direct marks an exact model-number search.
type SearchQuery struct {
	Text   string `json:"query"`
	Direct bool   `json:"direct"`
}

// NormalizeQuery lowercases q, trims it and collapses inner whitespace. It is
// the key under which results for q are cached.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// SourceStats holds per-marketplace price statistics for a report.
type SourceStats struct {
	Source   string
	Count    int
	Fallback int
	MinPrice int
	MaxPrice int
	AvgPrice float64
}

// InsightReport summarizes an aggregated result set.
type InsightReport struct {
	Query         string
	TotalListings int
	RealListings  int
	AveragePrice  float64
	MinPrice      int
	MaxPrice      int
	Cheapest      *Listing
	TopRated      []Listing
	BySource      []SourceStats
}
