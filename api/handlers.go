package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"price-aggregator/compare"
	"price-aggregator/models"
)

type searchRequest struct {
	Query  string `json:"query"`
	Direct bool   `json:"direct"`
}

type searchResponse struct {
	Query            string               `json:"query"`
	PriceResults     []models.PriceRecord `json:"price_results"`
	DetailedProducts []models.Listing     `json:"detailed_products"`
}

type productRequest struct {
	ProductInfo string `json:"product_info"`
}

type productResponse struct {
	Query    string           `json:"query"`
	Products []models.Listing `json:"products"`
}

type modelsRequest struct {
	ModelNumbers []string `json:"model_numbers"`
}

type modelsResponse struct {
	ModelNumbers     []string             `json:"model_numbers"`
	PriceResults     []models.PriceRecord `json:"price_results"`
	DetailedProducts []models.Listing     `json:"detailed_products"`
}

type compareRequest struct {
	ProductA string `json:"product_a"`
	ProductB string `json:"product_b"`
}

type batchRequest struct {
	ProductInfoList []string `json:"product_info_list"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	sources := make([]string, 0, len(s.engine.Adapters()))
	for _, a := range s.engine.Adapters() {
		sources = append(sources, a.Name())
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sources": sources})
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	q := models.SearchQuery{Text: req.Query, Direct: req.Direct}
	prices, err := s.engine.ComparePrices(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	picks, err := s.engine.BestPicks(c.Request.Context(), q, s.opts.BestPicks)
	if err != nil {
		s.fail(c, err)
		return
	}

	requestLogger(c, s.logger).Info("[http] Search %q: %d prices, %d products", req.Query, len(prices), len(picks))
	c.JSON(http.StatusOK, searchResponse{
		Query:            req.Query,
		PriceResults:     orEmpty(prices),
		DetailedProducts: orEmpty(picks),
	})
}

func (s *Server) searchProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	products, err := s.engine.GetDetailedProducts(c.Request.Context(), models.SearchQuery{Text: req.ProductInfo, Direct: true})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, productResponse{Query: req.ProductInfo, Products: orEmpty(products)})
}

func (s *Server) searchModels(c *gin.Context) {
	var req modelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	prices, err := s.engine.CompareModelNumbers(c.Request.Context(), req.ModelNumbers)
	if err != nil {
		s.fail(c, err)
		return
	}
	products, err := s.engine.DetailedProductsForModelNumbers(c.Request.Context(), req.ModelNumbers)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, modelsResponse{
		ModelNumbers:     compare.CleanModelNumbers(req.ModelNumbers),
		PriceResults:     orEmpty(prices),
		DetailedProducts: orEmpty(products),
	})
}

func (s *Server) compareProducts(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	cmp, err := s.engine.CompareProducts(c.Request.Context(), req.ProductA, req.ProductB)
	if err != nil {
		s.fail(c, err)
		return
	}
	requestLogger(c, s.logger).Info("[http] Compare %q vs %q: %d differences", req.ProductA, req.ProductB, len(cmp.Differences))
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) detailedBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	results, err := s.engine.DetailedBatch(c.Request.Context(), req.ProductInfoList)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// fail maps input errors to 400 and missing products to 404; anything else
// is unexpected.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, compare.ErrEmptyQuery),
		errors.Is(err, compare.ErrQueryTooShort),
		errors.Is(err, compare.ErrNoModelNumbers),
		errors.Is(err, compare.ErrPriceUnavailable),
		errors.Is(err, compare.ErrEmptyBatch),
		errors.Is(err, compare.ErrTooManyItems):
		badRequest(c, err.Error())
	case errors.Is(err, compare.ErrProductNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
