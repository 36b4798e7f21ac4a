package compare

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"price-aggregator/metrics"
	"price-aggregator/models"
	"price-aggregator/scraper"
	"price-aggregator/services"
	"price-aggregator/storage"
	"price-aggregator/utils"
)

var (
	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrQueryTooShort is returned for a query under MinQueryLength runes.
	ErrQueryTooShort = errors.New("query is too short")
	// ErrNoModelNumbers is returned when no usable model number remains
	// after cleaning.
	ErrNoModelNumbers = errors.New("no usable model numbers")
)

// MinQueryLength is the shortest accepted query, in runes.
const MinQueryLength = 2

// Options configures an Engine.
type Options struct {
	Threshold        decimal.Decimal
	CommonTerms      []string
	DetailLimit      int
	BestPicks        int
	AdapterTimeout   time.Duration
	ModelConcurrency int
	RateLimitMs      int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:        decimal.RequireFromString("0.9"),
		DetailLimit:      3,
		BestPicks:        10,
		AdapterTimeout:   20 * time.Second,
		ModelConcurrency: 2,
	}
}

// Engine is the price comparison entry point. Upstream failures never
// surface as errors; only invalid input does.
type Engine struct {
	dispatcher *Dispatcher
	ranker     *Ranker
	opts       Options
	writers    []storage.ListingWriter
	logger     *utils.Logger
}

// NewEngine wires a dispatcher and ranker over adapters.
func NewEngine(adapters []scraper.Adapter, opts Options, logger *utils.Logger, m *metrics.Metrics) *Engine {
	if opts.DetailLimit <= 0 {
		opts.DetailLimit = 3
	}
	if opts.BestPicks <= 0 {
		opts.BestPicks = 10
	}
	if opts.ModelConcurrency <= 0 {
		opts.ModelConcurrency = 1
	}
	return &Engine{
		dispatcher: NewDispatcher(adapters, opts.AdapterTimeout, logger, m),
		ranker:     NewRanker(opts.Threshold, opts.CommonTerms),
		opts:       opts,
		logger:     logger,
	}
}

// WithWriters archives every detailed result set to ws.
func (e *Engine) WithWriters(ws ...storage.ListingWriter) *Engine {
	e.writers = append(e.writers, ws...)
	return e
}

// Adapters returns the engine's adapters in dispatch order.
func (e *Engine) Adapters() []scraper.Adapter {
	return e.dispatcher.Adapters()
}

// Ranker exposes the engine's ranking configuration.
func (e *Engine) Ranker() *Ranker {
	return e.ranker
}

// ComparePrices gathers price records from every adapter and returns those
// within the threshold of the cheapest, ascending.
func (e *Engine) ComparePrices(ctx context.Context, q models.SearchQuery) ([]models.PriceRecord, error) {
	text, err := ValidateQuery(q.Text)
	if err != nil {
		return nil, err
	}

	records := e.dispatcher.Prices(ctx, text)
	if q.Direct {
		records = e.ranker.FilterDirectPrices(text, records)
	}
	ranked := e.ranker.RankPrices(records)
	e.logger.Info("[engine] %q: %d price records, %d within threshold", text, len(records), len(ranked))
	return ranked, nil
}

// GetDetailedProducts gathers full listings from every adapter, sorted by
// price with unknown prices last.
func (e *Engine) GetDetailedProducts(ctx context.Context, q models.SearchQuery) ([]models.Listing, error) {
	text, err := ValidateQuery(q.Text)
	if err != nil {
		return nil, err
	}

	listings := e.details(ctx, text, q.Direct)
	e.archive(ctx, text, listings)
	e.logger.Info("[engine] %q: %d detailed listings", text, len(listings))
	return listings, nil
}

// BestPicks returns the n best detailed listings. n <= 0 uses the
// configured default.
func (e *Engine) BestPicks(ctx context.Context, q models.SearchQuery, n int) ([]models.Listing, error) {
	listings, err := e.GetDetailedProducts(ctx, q)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = e.opts.BestPicks
	}
	return BestOf(listings, n), nil
}

// CompareModelNumbers runs a direct price search per model number and ranks
// the union. Each record carries the model number it was found under.
func (e *Engine) CompareModelNumbers(ctx context.Context, modelNumbers []string) ([]models.PriceRecord, error) {
	cleaned := CleanModelNumbers(modelNumbers)
	if len(cleaned) == 0 {
		return nil, ErrNoModelNumbers
	}

	perModel := forEachModel(ctx, e, cleaned, func(ctx context.Context, model string) []models.PriceRecord {
		records := e.ranker.FilterDirectPrices(model, e.dispatcher.Prices(ctx, model))
		for i := range records {
			records[i].ModelNumber = model
		}
		return records
	})
	return e.ranker.RankPrices(perModel), nil
}

// DetailedProductsForModelNumbers runs a direct detailed search per model
// number and ranks the union.
func (e *Engine) DetailedProductsForModelNumbers(ctx context.Context, modelNumbers []string) ([]models.Listing, error) {
	cleaned := CleanModelNumbers(modelNumbers)
	if len(cleaned) == 0 {
		return nil, ErrNoModelNumbers
	}

	perModel := forEachModel(ctx, e, cleaned, func(ctx context.Context, model string) []models.Listing {
		listings := e.details(ctx, model, true)
		for i := range listings {
			listings[i] = listings[i].WithInfo(models.InfoModelNumber, model)
		}
		return listings
	})
	ranked := e.ranker.RankDetails(perModel)
	for _, model := range cleaned {
		e.archive(ctx, model, byModel(ranked, model))
	}
	return ranked, nil
}

func (e *Engine) details(ctx context.Context, text string, direct bool) []models.Listing {
	listings := e.dispatcher.Details(ctx, text, e.opts.DetailLimit)
	if direct {
		listings = e.ranker.FilterDirect(text, listings)
	}
	return e.ranker.RankDetails(listings)
}

func (e *Engine) archive(ctx context.Context, query string, listings []models.Listing) {
	if len(listings) == 0 {
		return
	}
	for _, w := range e.writers {
		if err := w.Write(ctx, query, listings); err != nil {
			e.logger.Warn("[engine] Archive write for %q failed: %v", query, err)
		}
	}
}

// forEachModel searches every model number on a rate-limited pool and
// concatenates the results in input order.
func forEachModel[T any](ctx context.Context, e *Engine, modelNumbers []string, search func(context.Context, string) []T) []T {
	slots := make([][]T, len(modelNumbers))
	pool := utils.NewWorkerPool(e.opts.ModelConcurrency, e.opts.RateLimitMs).OnPanic(func(r any) {
		e.logger.Error("[engine] Model search panic: %v", r)
	})

	for i, model := range modelNumbers {
		pool.Submit(ctx, func() {
			slots[i] = search(ctx, model)
		})
	}
	pool.Wait()

	var out []T
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

func byModel(listings []models.Listing, model string) []models.Listing {
	var out []models.Listing
	for _, l := range listings {
		if l.ModelNumber() == model {
			out = append(out, l)
		}
	}
	return out
}

// ValidateQuery normalizes whitespace in raw and rejects blank or too short
// queries.
func ValidateQuery(raw string) (string, error) {
	text := services.NormaliseText(raw)
	if text == "" {
		return "", ErrEmptyQuery
	}
	if utf8.RuneCountInString(text) < MinQueryLength {
		return "", ErrQueryTooShort
	}
	return text, nil
}
