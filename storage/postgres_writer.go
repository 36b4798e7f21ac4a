package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"price-aggregator/models"
)

const (
	batchSize = 50
	// archiveColumns is the number of bind parameters per inserted row.
	archiveColumns = 13
)

// ArchivedListing is a listing as stored in the archive table.
type ArchivedListing struct {
	ID        int64
	Query     string
	Listing   models.Listing
	CreatedAt time.Time
}

// PostgresWriter archives search results to PostgreSQL. The same
// (query, source, url, title) is stored once and refreshed on re-archive.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, waits for it to answer,
// runs schema migrations and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw, err := NewPostgresWriterFromDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return pw, nil
}

// NewPostgresWriterFromDB migrates db and wraps it.
func NewPostgresWriterFromDB(ctx context.Context, db *sql.DB) (*PostgresWriter, error) {
	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id              BIGSERIAL PRIMARY KEY,
			query           TEXT         NOT NULL,
			source          VARCHAR(32)  NOT NULL,
			title           TEXT         NOT NULL,
			price           INTEGER      NOT NULL DEFAULT 0,
			url             TEXT         NOT NULL,
			image_url       TEXT         NOT NULL DEFAULT '',
			shop            TEXT         NOT NULL DEFAULT '',
			availability    BOOLEAN      NOT NULL DEFAULT FALSE,
			rating          NUMERIC(3,2) NOT NULL DEFAULT 0,
			review_count    INTEGER      NOT NULL DEFAULT 0,
			shipping_fee    INTEGER,
			additional_info JSONB        NOT NULL DEFAULT '{}',
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (query, source, url, title)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_query  ON listings(query);
		CREATE INDEX IF NOT EXISTS idx_listings_price  ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);
	`)
	return err
}

// Write upserts listings for query in batches.
func (pw *PostgresWriter) Write(ctx context.Context, query string, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(ctx, query, listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(ctx context.Context, query string, batch []models.Listing) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*archiveColumns)

	for idx, l := range batch {
		base := idx * archiveColumns
		placeholders := make([]string, archiveColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		info, err := json.Marshal(l.AdditionalInfo)
		if err != nil {
			return fmt.Errorf("postgres: encode additional_info: %w", err)
		}
		if l.AdditionalInfo == nil {
			info = []byte("{}")
		}
		var shipping any
		if l.ShippingFee != nil {
			shipping = *l.ShippingFee
		}
		valueArgs = append(valueArgs,
			query, l.Source, l.Title, l.Price, l.URL, l.ImageURL, l.Shop,
			l.Availability, l.Rating, l.ReviewCount, shipping, string(info), time.Now().UTC())
	}

	stmt := fmt.Sprintf(`
		INSERT INTO listings (query, source, title, price, url, image_url, shop,
			availability, rating, review_count, shipping_fee, additional_info, created_at)
		VALUES %s
		ON CONFLICT (query, source, url, title) DO UPDATE SET
			price = EXCLUDED.price,
			availability = EXCLUDED.availability,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			shipping_fee = EXCLUDED.shipping_fee,
			additional_info = EXCLUDED.additional_info,
			created_at = EXCLUDED.created_at
	`, strings.Join(valueStrings, ","))

	if _, err := pw.db.ExecContext(ctx, stmt, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert batch: %w", err)
	}
	return nil
}

// Clear deletes every archived listing.
func (pw *PostgresWriter) Clear(ctx context.Context) error {
	if _, err := pw.db.ExecContext(ctx, "DELETE FROM listings"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchRecent returns up to limit archived listings for query, newest first.
func (pw *PostgresWriter) FetchRecent(ctx context.Context, query string, limit int) ([]ArchivedListing, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT id, query, source, title, price, url, image_url, shop,
			availability, rating, review_count, shipping_fee, additional_info, created_at
		FROM listings
		WHERE query = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch recent: %w", err)
	}
	defer rows.Close()

	var out []ArchivedListing
	for rows.Next() {
		var (
			a        ArchivedListing
			shipping sql.NullInt64
			info     []byte
		)
		l := &a.Listing
		if err := rows.Scan(
			&a.ID, &a.Query, &l.Source, &l.Title, &l.Price, &l.URL, &l.ImageURL, &l.Shop,
			&l.Availability, &l.Rating, &l.ReviewCount, &shipping, &info, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		if shipping.Valid {
			fee := int(shipping.Int64)
			l.ShippingFee = &fee
		}
		if len(info) > 0 {
			if err := json.Unmarshal(info, &l.AdditionalInfo); err != nil {
				return nil, fmt.Errorf("postgres: decode additional_info: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
