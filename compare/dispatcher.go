// Package compare fans a query out to every marketplace adapter and ranks
// what comes back.
package compare

import (
	"context"
	"time"

	"price-aggregator/metrics"
	"price-aggregator/models"
	"price-aggregator/scraper"
	"price-aggregator/utils"
)

// Dispatcher runs one task per adapter concurrently and joins the results.
// A panicking adapter or one that overruns its deadline contributes nothing.
type Dispatcher struct {
	adapters []scraper.Adapter
	timeout  time.Duration
	logger   *utils.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. timeout <= 0 disables the per-adapter
// deadline.
func NewDispatcher(adapters []scraper.Adapter, timeout time.Duration, logger *utils.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{adapters: adapters, timeout: timeout, logger: logger, metrics: m}
}

// Adapters returns the adapters in dispatch order.
func (d *Dispatcher) Adapters() []scraper.Adapter {
	return d.adapters
}

// Prices collects GetMultiplePrices from every adapter.
func (d *Dispatcher) Prices(ctx context.Context, query string) []models.PriceRecord {
	return fanOut(ctx, d, func(ctx context.Context, a scraper.Adapter) []models.PriceRecord {
		return a.GetMultiplePrices(ctx, query)
	})
}

// Details collects GetProductDetails from every adapter.
func (d *Dispatcher) Details(ctx context.Context, query string, limit int) []models.Listing {
	return fanOut(ctx, d, func(ctx context.Context, a scraper.Adapter) []models.Listing {
		return a.GetProductDetails(ctx, query, limit)
	})
}

// fanOut calls every adapter on a pool sized to the adapter count and
// concatenates the results in adapter order.
func fanOut[T any](ctx context.Context, d *Dispatcher, call func(context.Context, scraper.Adapter) []T) []T {
	if len(d.adapters) == 0 {
		return nil
	}

	slots := make([][]T, len(d.adapters))
	pool := utils.NewWorkerPool(len(d.adapters), 0).OnPanic(func(r any) {
		d.logger.Error("[dispatcher] Worker panic: %v", r)
	})
	for i, a := range d.adapters {
		pool.Submit(ctx, func() {
			slots[i] = runAdapter(ctx, d, a, call)
		})
	}
	pool.Wait()

	var out []T
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

func runAdapter[T any](ctx context.Context, d *Dispatcher, a scraper.Adapter, call func(context.Context, scraper.Adapter) []T) []T {
	name := a.Name()
	start := time.Now()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	done := make(chan []T, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("[dispatcher] %s panicked: %v", name, r)
				d.metrics.AdapterFailed(name, metrics.OutcomePanic)
				done <- nil
			}
		}()
		done <- call(ctx, a)
	}()

	select {
	case res := <-done:
		d.metrics.ObserveAdapter(name, time.Since(start))
		d.logger.Debug("[dispatcher] %s returned %d results in %v", name, len(res), time.Since(start).Round(time.Millisecond))
		return res
	case <-ctx.Done():
		d.metrics.AdapterFailed(name, metrics.OutcomeTimeout)
		d.logger.Warn("[dispatcher] %s abandoned after %v: %v", name, time.Since(start).Round(time.Millisecond), ctx.Err())
		return nil
	}
}
