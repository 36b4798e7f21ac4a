package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-aggregator/models"
)

func sampleListings(n int) []models.Listing {
	fee := 0
	out := make([]models.Listing, 0, n)
	for i := 0; i < n; i++ {
		l := models.Listing{
			Source:       models.SourceRakuten,
			Title:        "ラチェットハンドル",
			Price:        1000 + i,
			URL:          "https://item.rakuten.co.jp/shop/" + string(rune('a'+i%26)),
			Shop:         "楽天市場",
			Availability: true,
			Rating:       4.5,
			ReviewCount:  12,
			ShippingFee:  &fee,
		}
		out = append(out, l)
	}
	return out
}

func newMockWriter(t *testing.T) (*PostgresWriter, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS listings`).WillReturnResult(sqlmock.NewResult(0, 0))
	pw, err := NewPostgresWriterFromDB(context.Background(), db)
	require.NoError(t, err)
	return pw, mock, db
}

func TestCSVWriterWritesQueryColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	listings := sampleListings(2)
	listings[1] = listings[1].WithInfo(models.InfoFallback, true)
	listings[1].ShippingFee = nil
	require.NoError(t, w.Write(context.Background(), "ラチェット", listings))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "ラチェット", rows[1][0])
	assert.Equal(t, "rakuten", rows[1][1])
	assert.Equal(t, "1000", rows[1][3])
	assert.Equal(t, "0", rows[1][8])
	assert.Equal(t, "false", rows[1][9])
	assert.Equal(t, "", rows[2][8], "unknown shipping fee stays blank")
	assert.Equal(t, "true", rows[2][9])
}

func TestPostgresWriterBatchesUpserts(t *testing.T) {
	pw, mock, db := newMockWriter(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO listings .* ON CONFLICT \(query, source, url, title\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, batchSize))
	mock.ExpectExec(`INSERT INTO listings`).
		WillReturnResult(sqlmock.NewResult(0, 10))

	require.NoError(t, pw.Write(context.Background(), "ratchet", sampleListings(batchSize+10)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterSkipsEmptyWrites(t *testing.T) {
	pw, mock, db := newMockWriter(t)
	defer db.Close()

	require.NoError(t, pw.Write(context.Background(), "ratchet", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterBindsListingFields(t *testing.T) {
	pw, mock, db := newMockWriter(t)
	defer db.Close()

	l := sampleListings(1)[0]
	mock.ExpectExec(`INSERT INTO listings`).
		WithArgs("ratchet", l.Source, l.Title, l.Price, l.URL, l.ImageURL, l.Shop,
			l.Availability, l.Rating, l.ReviewCount, 0, "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pw.Write(context.Background(), "ratchet", []models.Listing{l}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterWrapsInsertErrors(t *testing.T) {
	pw, mock, db := newMockWriter(t)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO listings`).WillReturnError(boom)

	err := pw.Write(context.Background(), "ratchet", sampleListings(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPostgresWriterFetchRecent(t *testing.T) {
	pw, mock, db := newMockWriter(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "query", "source", "title", "price", "url", "image_url", "shop",
		"availability", "rating", "review_count", "shipping_fee", "additional_info", "created_at",
	}).
		AddRow(2, "ratchet", "yahoo", "B", 900, "https://b", "", "Yahoo!ショッピング", true, 4.0, 3, nil, []byte(`{"is_fallback":true}`), now).
		AddRow(1, "ratchet", "amazon", "A", 1200, "https://a", "", "Amazon.co.jp", false, 0.0, 0, 500, []byte(`{}`), now)

	mock.ExpectQuery(`SELECT .* FROM listings\s+WHERE query = \$1`).
		WithArgs("ratchet", 5).
		WillReturnRows(rows)

	got, err := pw.FetchRecent(context.Background(), "ratchet", 5)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.True(t, got[0].Listing.IsFallback())
	assert.Nil(t, got[0].Listing.ShippingFee)
	require.NotNil(t, got[1].Listing.ShippingFee)
	assert.Equal(t, 500, *got[1].Listing.ShippingFee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterClear(t *testing.T) {
	pw, mock, db := newMockWriter(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM listings`).WillReturnResult(sqlmock.NewResult(0, 7))

	require.NoError(t, pw.Clear(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
