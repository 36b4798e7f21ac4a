// Package storage archives search results outside the per-adapter caches.
package storage

import (
	"context"

	"price-aggregator/models"
)

// ListingWriter is the interface any archive backend must satisfy.
type ListingWriter interface {
	Write(ctx context.Context, query string, listings []models.Listing) error
	Close() error
}
