package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"price-aggregator/cache"
	"price-aggregator/compare"
	"price-aggregator/config"
	"price-aggregator/metrics"
	"price-aggregator/models"
	"price-aggregator/scraper"
	"price-aggregator/scraper/amazon"
	"price-aggregator/scraper/kakaku"
	"price-aggregator/scraper/rakuten"
	"price-aggregator/scraper/yahoo"
	"price-aggregator/services"
	"price-aggregator/storage"
	"price-aggregator/utils"
)

// App holds every long-lived component. Nothing is global: commands build
// an App, use it and close it.
type App struct {
	cfg      *config.Config
	logger   *utils.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	engine   *compare.Engine
	insights *services.InsightService
	caches   []*cache.Cache
	closers  []func() error
}

// loadApp reads configuration and wires the application.
func loadApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := utils.NewLogger(utils.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
		insights: services.NewInsightService(logger),
	}

	storeFor, err := app.cacheStores()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	retry := &utils.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Logger:      logger,
	}
	fetcher := app.pageFetcher()
	backends := app.backends()

	adapters := make([]scraper.Adapter, 0, len(cfg.Search.Sources))
	for _, name := range cfg.Search.Sources {
		adapterLogger := logger.With("adapter", name)
		c := cache.New(ctx, name, storeFor(name), cache.Options{
			TTL:        cfg.Cache.TTL,
			FlushEvery: cfg.Cache.FlushEvery,
			Metrics:    app.metrics,
		}, adapterLogger)
		app.caches = append(app.caches, c)

		adapters = append(adapters, scraper.NewSource(backends[name], scraper.Deps{
			Cache:   c,
			Fetcher: fetcher,
			Retry:   retry,
			Logger:  adapterLogger,
			Metrics: app.metrics,
		}, scraper.Options{
			DetailLimit: cfg.Search.DetailLimit,
			PriceLimit:  cfg.Search.PriceLimitFor(name),
		}))
	}

	app.engine = compare.NewEngine(adapters, compare.Options{
		Threshold:        cfg.Search.PriceThreshold,
		CommonTerms:      cfg.Search.CommonTerms,
		DetailLimit:      cfg.Search.DetailLimit,
		BestPicks:        cfg.Search.BestPicks,
		AdapterTimeout:   cfg.Search.AdapterTimeout,
		ModelConcurrency: cfg.Search.ModelConcurrency,
		RateLimitMs:      cfg.Search.RateLimitMs,
	}, logger, app.metrics)

	if err := app.archiveWriters(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}

	logger.Info("[app] Sources: %v | cache: %s | threshold: %s | timeout: %v",
		cfg.Search.Sources, cfg.Cache.Backend, cfg.Search.PriceThreshold, cfg.Search.AdapterTimeout)
	return app, nil
}

// cacheStores opens the configured durable store and returns a per-adapter
// store constructor.
func (a *App) cacheStores() (func(name string) cache.Store, error) {
	cfg := a.cfg.Cache
	switch cfg.Backend {
	case "sqlite":
		db, err := cache.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return func(name string) cache.Store { return cache.NewSQLiteStore(db, name) }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		return func(name string) cache.Store { return cache.NewRedisStore(client, name, cfg.TTL) }, nil
	case "none":
		return func(string) cache.Store { return nil }, nil
	default:
		return func(name string) cache.Store { return cache.NewFileStore(cfg.Dir, name) }, nil
	}
}

func (a *App) pageFetcher() scraper.PageFetcher {
	cfg := a.cfg.Scrape
	if !cfg.Enabled {
		return nil
	}
	opts := scraper.FetchOptions{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout}
	if cfg.UseBrowser {
		b := scraper.NewBrowserFetcher(scraper.BrowserOptions{
			FetchOptions: opts,
			ChromeBin:    cfg.ChromeBin,
			SettleDelay:  cfg.SettleDelay,
		}, a.logger.With("fetcher", "browser"))
		a.closers = append(a.closers, func() error { b.Close(); return nil })
		return b
	}
	return scraper.NewHTTPFetcher(opts, a.logger.With("fetcher", "http"))
}

func (a *App) backends() map[string]scraper.Backend {
	httpClient := &http.Client{Timeout: a.cfg.Scrape.Timeout}
	return map[string]scraper.Backend{
		models.SourceAmazon: amazon.New(amazon.Config{
			AccessKey:  a.cfg.Amazon.AccessKey,
			SecretKey:  a.cfg.Amazon.SecretKey,
			PartnerTag: a.cfg.Amazon.PartnerTag,
			Region:     a.cfg.Amazon.Region,
		}, httpClient),
		models.SourceRakuten: rakuten.New(rakuten.Config{
			ApplicationID: a.cfg.Rakuten.AppID,
			AffiliateID:   a.cfg.Rakuten.AffiliateID,
			Endpoint:      a.cfg.Rakuten.Endpoint,
		}, httpClient),
		models.SourceYahoo: yahoo.New(yahoo.Config{ClientID: a.cfg.Yahoo.ClientID}, httpClient),
		models.SourceKakaku: kakaku.New(a.cfg.Kakaku.SiteURL),
	}
}

func (a *App) archiveWriters(ctx context.Context) error {
	if a.cfg.Archive.Enabled {
		pg, err := storage.NewPostgresWriter(ctx, a.cfg.DSN())
		if err != nil {
			return fmt.Errorf("connecting to archive database: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.engine.WithWriters(pg)
	}
	if a.cfg.Archive.CSVPath != "" {
		w, err := storage.NewCSVWriter(a.cfg.Archive.CSVPath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, w.Close)
		a.engine.WithWriters(w)
	}
	return nil
}

// Close flushes every cache and releases stores, writers and the browser.
func (a *App) Close(ctx context.Context) {
	for _, c := range a.caches {
		if err := c.Close(ctx); err != nil {
			a.logger.Warn("[app] Closing cache %s: %v", c.Name(), err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("[app] Close: %v", err)
		}
	}
	_ = a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
