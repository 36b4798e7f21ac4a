package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"price-aggregator/models"
)

var csvHeader = []string{
	"query", "source", "title", "price", "shop", "availability",
	"rating", "review_count", "shipping_fee", "is_fallback", "model_number", "url", "image_url",
}

// CSVWriter exports listings to a CSV file, one row per listing.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends one row per listing.
func (c *CSVWriter) Write(_ context.Context, query string, listings []models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		if err := c.writer.Write(csvRow(query, l)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}

func csvRow(query string, l models.Listing) []string {
	shipping := ""
	if l.ShippingFee != nil {
		shipping = strconv.Itoa(*l.ShippingFee)
	}
	return []string{
		query,
		l.Source,
		l.Title,
		strconv.Itoa(l.Price),
		l.Shop,
		strconv.FormatBool(l.Availability),
		strconv.FormatFloat(l.Rating, 'f', -1, 64),
		strconv.Itoa(l.ReviewCount),
		shipping,
		strconv.FormatBool(l.IsFallback()),
		l.ModelNumber(),
		l.URL,
		l.ImageURL,
	}
}
