package scraper

import (
	"context"
	"errors"
	"fmt"

	"price-aggregator/cache"
	"price-aggregator/metrics"
	"price-aggregator/models"
	"price-aggregator/services"
	"price-aggregator/utils"
)

// Options bound how many listings each operation returns.
type Options struct {
	DetailLimit int // GetProductDetails default
	PriceLimit  int // GetMultiplePrices
	FetchSize   int // items requested from the API or page
}

// DefaultOptions mirrors the marketplace defaults used in production.
func DefaultOptions() Options {
	return Options{DetailLimit: 3, PriceLimit: 5, FetchSize: 10}
}

// Deps are the collaborators a Source is built from. Any of them may be nil:
// a nil Cache never hits, a nil Fetcher skips scraping, a nil Retry makes a
// single API attempt.
type Deps struct {
	Cache   *cache.Cache
	Fetcher PageFetcher
	Retry   *utils.RetryConfig
	Logger  *utils.Logger
	Metrics *metrics.Metrics
}

// Source is the Adapter shared by every marketplace. The Backend supplies the
// marketplace specifics; Source walks the ladder cache → API → scrape →
// synthetic.
type Source struct {
	backend Backend
	api     APISearcher
	cache   *cache.Cache
	fetcher PageFetcher
	retry   *utils.RetryConfig
	cleaner *services.Cleaner
	logger  *utils.Logger
	metrics *metrics.Metrics
	opts    Options
}

// NewSource wires backend into an Adapter.
func NewSource(backend Backend, deps Deps, opts Options) *Source {
	defaults := DefaultOptions()
	if opts.DetailLimit <= 0 {
		opts.DetailLimit = defaults.DetailLimit
	}
	if opts.PriceLimit <= 0 {
		opts.PriceLimit = defaults.PriceLimit
	}
	if opts.FetchSize <= 0 {
		opts.FetchSize = defaults.FetchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	retry := deps.Retry
	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1}
	}

	api, _ := backend.(APISearcher)
	return &Source{
		backend: backend,
		api:     api,
		cache:   deps.Cache,
		fetcher: deps.Fetcher,
		retry:   retry,
		cleaner: services.NewCleaner(logger),
		logger:  logger,
		metrics: deps.Metrics,
		opts:    opts,
	}
}

func (s *Source) Name() string { return s.backend.Name() }

// Cache exposes the adapter's cache for maintenance commands.
func (s *Source) Cache() *cache.Cache { return s.cache }

// GetPrice returns the cheapest priced listing found. When every tier fails
// the record has price 0, availability false and links to the search page.
func (s *Source) GetPrice(ctx context.Context, query string) models.PriceRecord {
	res := s.lookup(ctx, query, s.opts.PriceLimit)
	if res.OK() {
		return cheapest(res.Listings).PriceRecord()
	}
	return models.PriceRecord{
		Source:   s.Name(),
		Title:    fmt.Sprintf("%s (%s)", services.NormaliseText(query), s.Name()),
		URL:      s.backend.SearchURL(query),
		Shop:     services.DefaultShop(s.Name()),
		ImageURL: services.SampleImage(query),
	}
}

// GetProductDetails returns up to limit listings, or synthetic placeholders
// when every live tier fails. limit <= 0 uses the configured default.
func (s *Source) GetProductDetails(ctx context.Context, query string, limit int) []models.Listing {
	if limit <= 0 {
		limit = s.opts.DetailLimit
	}
	return head(s.resolve(ctx, query, limit).Listings, limit)
}

// GetMultiplePrices returns price records for up to the configured price
// limit, falling back to synthetic records.
func (s *Source) GetMultiplePrices(ctx context.Context, query string) []models.PriceRecord {
	listings := head(s.resolve(ctx, query, s.opts.PriceLimit).Listings, s.opts.PriceLimit)
	records := make([]models.PriceRecord, 0, len(listings))
	for _, l := range listings {
		records = append(records, l.PriceRecord())
	}
	return records
}

// resolve walks the full ladder including the synthetic tier.
func (s *Source) resolve(ctx context.Context, query string, limit int) Result {
	res := s.lookup(ctx, query, limit)
	if res.OK() {
		return res
	}
	s.logger.Warn("[%s] All live tiers failed for %q, serving sample data: %v", s.Name(), query, res.Err)
	synthetic := Success(TierSynthetic, Synthesize(s.Name(), query, s.backend.SearchURL(query), limit))
	s.metrics.ObserveTier(s.Name(), string(TierSynthetic), true)
	return synthetic
}

// lookup walks cache, API and scrape tiers and stops at the first one that
// yields listings. Live results are cached.
func (s *Source) lookup(ctx context.Context, query string, limit int) Result {
	if cached, ok := s.cache.Get(query); ok && len(cached) > 0 {
		s.metrics.ObserveTier(s.Name(), string(TierCache), true)
		s.logger.Debug("[%s] Cache hit for %q", s.Name(), query)
		return Success(TierCache, cached)
	}

	size := max(s.opts.FetchSize, limit)
	tiers := []struct {
		tier Tier
		run  func(context.Context, string, int) Result
	}{
		{TierAPI, s.fromAPI},
		{TierScrape, s.fromScrape},
	}

	last := Failure(TierCache, ErrNoResults)
	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return Failure(t.tier, err)
		}
		res := s.guard(ctx, t.tier, query, size, t.run)
		s.metrics.ObserveTier(s.Name(), string(t.tier), res.OK())
		if res.OK() {
			s.logger.Debug("[%s] %s tier returned %d listings for %q", s.Name(), t.tier, len(res.Listings), query)
			s.cache.Put(ctx, query, res.Listings)
			return res
		}
		s.logger.Debug("[%s] %s tier failed for %q: %v", s.Name(), t.tier, query, res.Err)
		last = res
	}
	return last
}

// guard turns a panic inside a tier into a failure of that tier.
func (s *Source) guard(ctx context.Context, tier Tier, query string, size int,
	run func(context.Context, string, int) Result) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[%s] %s tier panicked: %v", s.Name(), tier, r)
			res = Failure(tier, fmt.Errorf("panic: %v", r))
		}
	}()
	return run(ctx, query, size)
}

func (s *Source) fromAPI(ctx context.Context, query string, size int) Result {
	if s.api == nil {
		return Failure(TierAPI, ErrNoAPI)
	}

	var raw []models.RawListing
	err := s.retry.Do(ctx, s.Name()+" api search", func() error {
		items, err := s.api.SearchByKeyword(ctx, query, size)
		if errors.Is(err, ErrNotConfigured) {
			return utils.Permanent(err)
		}
		if err != nil {
			return err
		}
		raw = items
		return nil
	})
	if err != nil {
		return Failure(TierAPI, err)
	}
	return Success(TierAPI, s.cleaner.Clean(query, s.backend.SearchURL(query), raw))
}

func (s *Source) fromScrape(ctx context.Context, query string, size int) Result {
	if s.fetcher == nil {
		return Failure(TierScrape, ErrNoFetcher)
	}

	searchURL := s.backend.SearchURL(query)
	page, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return Failure(TierScrape, err)
	}
	raw, err := s.backend.ParseSearchPage(query, page, size)
	if err != nil {
		return Failure(TierScrape, err)
	}
	return Success(TierScrape, s.cleaner.Clean(query, searchURL, raw))
}

// cheapest returns the lowest positively priced listing, or the first one
// when none carries a price.
func cheapest(listings []models.Listing) models.Listing {
	best := listings[0]
	for _, l := range listings[1:] {
		if l.Price > 0 && (best.Price == 0 || l.Price < best.Price) {
			best = l
		}
	}
	return best
}

func head(listings []models.Listing, n int) []models.Listing {
	if n > 0 && len(listings) > n {
		return listings[:n]
	}
	return listings
}
