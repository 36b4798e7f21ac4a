package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"price-aggregator/utils"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetchOptions configure page fetchers.
type FetchOptions struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7"
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	return o
}

// HTTPFetcher downloads static search pages with colly.
type HTTPFetcher struct {
	opts   FetchOptions
	logger *utils.Logger
}

// NewHTTPFetcher creates a fetcher sending browser-like headers.
func NewHTTPFetcher(opts FetchOptions, logger *utils.Logger) *HTTPFetcher {
	return &HTTPFetcher{opts: opts.withDefaults(), logger: logger}
}

// Fetch returns the body of pageURL. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.opts.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", f.opts.AcceptLanguage)
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetching %s (status %d): %w", pageURL, status, err)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetching %s: empty body", pageURL)
	}
	f.logger.Debug("[fetch] %s → %d bytes", pageURL, len(body))
	return body, nil
}
