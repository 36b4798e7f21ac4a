// Package api exposes the comparison engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"price-aggregator/compare"
	"price-aggregator/utils"
)

// Options configure the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// BestPicks bounds the detailed products returned by /api/search.
	BestPicks int
}

// Server serves the search API.
type Server struct {
	engine *compare.Engine
	router *gin.Engine
	opts   Options
	logger *utils.Logger
}

// NewServer builds the router. gatherer may be nil to disable /metrics.
func NewServer(engine *compare.Engine, opts Options, gatherer prometheus.Gatherer, logger *utils.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	router := gin.New()
	router.Use(RequestID(), RequestLogger(logger), Recovery(logger))

	s := &Server{engine: engine, router: router, opts: opts, logger: logger}

	api := router.Group("/api")
	api.GET("/health", s.health)
	api.POST("/search", s.search)
	api.POST("/search/product", s.searchProduct)
	api.POST("/search/models", s.searchModels)
	api.POST("/search/detailed-batch", s.detailedBatch)
	api.POST("/compare", s.compareProducts)

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[http] Listening on %s", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("[http] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
