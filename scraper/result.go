package scraper

import "price-aggregator/models"

// Tier names one rung of the fallback ladder.
type Tier string

const (
	TierCache     Tier = "cache"
	TierAPI       Tier = "api"
	TierScrape    Tier = "scrape"
	TierSynthetic Tier = "synthetic"
)

// Result is the outcome of one tier: either listings or the reason the tier
// failed.
type Result struct {
	Tier     Tier
	Listings []models.Listing
	Err      error
}

// Success wraps listings produced by tier.
func Success(tier Tier, listings []models.Listing) Result {
	if len(listings) == 0 {
		return Failure(tier, ErrNoResults)
	}
	return Result{Tier: tier, Listings: listings}
}

// Failure records why tier produced nothing.
func Failure(tier Tier, err error) Result {
	if err == nil {
		err = ErrNoResults
	}
	return Result{Tier: tier, Err: err}
}

// OK reports whether the tier produced listings.
func (r Result) OK() bool {
	return r.Err == nil && len(r.Listings) > 0
}
