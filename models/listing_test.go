package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithInfoDoesNotMutateReceiver(t *testing.T) {
	orig := Listing{Source: SourceAmazon, Title: "X", AdditionalInfo: map[string]any{"a": 1}}
	tagged := orig.WithInfo(InfoModelNumber, "EA628W-25B")

	assert.Equal(t, "EA628W-25B", tagged.ModelNumber())
	assert.Empty(t, orig.ModelNumber())
	assert.Len(t, orig.AdditionalInfo, 1)
	assert.Equal(t, 1, tagged.AdditionalInfo["a"])
}

func TestPriceRecordProjection(t *testing.T) {
	l := Listing{
		Source:       SourceRakuten,
		Title:        "Wrench",
		Price:        1500,
		URL:          "https://item.rakuten.co.jp/x",
		Shop:         "Tool Shop",
		ImageURL:     "https://img/x.jpg",
		Availability: true,
	}.WithInfo(InfoFallback, true)

	rec := l.PriceRecord()
	assert.Equal(t, PriceRecord{
		Source:       SourceRakuten,
		Title:        "Wrench",
		Price:        1500,
		URL:          "https://item.rakuten.co.jp/x",
		Shop:         "Tool Shop",
		ImageURL:     "https://img/x.jpg",
		Availability: true,
		IsFallback:   true,
	}, rec)
}

func TestPriceRecordListingRoundTrip(t *testing.T) {
	rec := PriceRecord{Source: SourceYahoo, Title: "Drill", Price: 900, ModelNumber: "DF484DZ"}

	l := rec.Listing()

	assert.Equal(t, "DF484DZ", l.ModelNumber())
	assert.False(t, l.IsFallback())
	assert.Equal(t, rec, l.PriceRecord())
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  EA628W-25B ", "ea628w-25b"},
		{"iPhone   15\tPro", "iphone 15 pro"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeQuery(tt.in), "NormalizeQuery(%q)", tt.in)
	}
}
