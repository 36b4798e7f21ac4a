// Package scraper implements the marketplace source adapters: a fallback
// ladder over cache, live API, scraped search pages and synthetic data.
package scraper

import (
	"context"
	"errors"

	"price-aggregator/models"
)

var (
	// ErrNotConfigured means the marketplace API has no credentials.
	ErrNotConfigured = errors.New("api credentials not configured")
	// ErrNoAPI means the marketplace offers no API tier.
	ErrNoAPI = errors.New("marketplace has no api")
	// ErrNoFetcher means scraping is disabled for the adapter.
	ErrNoFetcher = errors.New("no page fetcher configured")
	// ErrNoResults means a tier answered but yielded no usable listings.
	ErrNoResults = errors.New("no results")
	// ErrNoCards means no card selector matched the search page.
	ErrNoCards = errors.New("no product cards matched")
)

// Adapter is one marketplace as seen by the dispatcher. Implementations
// never return errors: every failure degrades to an empty, zero-priced or
// synthetic result.
type Adapter interface {
	Name() string
	GetPrice(ctx context.Context, query string) models.PriceRecord
	GetProductDetails(ctx context.Context, query string, limit int) []models.Listing
	GetMultiplePrices(ctx context.Context, query string) []models.PriceRecord
}

// Backend is what a marketplace package provides to a Source.
type Backend interface {
	Name() string
	// SearchURL is the public search-results page for query. It doubles as
	// the link for listings without an item page.
	SearchURL(query string) string
	// ParseSearchPage extracts up to limit items from a search-results page.
	ParseSearchPage(query string, page []byte, limit int) ([]models.RawListing, error)
}

// APISearcher is implemented by backends with a keyword search API.
type APISearcher interface {
	SearchByKeyword(ctx context.Context, query string, limit int) ([]models.RawListing, error)
}

// PageFetcher downloads a page and returns its raw HTML.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
