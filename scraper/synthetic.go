package scraper

import (
	"fmt"
	"hash/fnv"

	"price-aggregator/models"
	"price-aggregator/services"
)

var syntheticVariants = []string{"Premium", "Standard", "Basic"}

// Synthesize builds up to three placeholder listings for query. Prices and
// images derive from a hash of the normalized query, so repeated calls give
// identical output. Every listing is tagged as fallback data.
func Synthesize(source, query, searchURL string, n int) []models.Listing {
	n = min(max(n, 1), len(syntheticVariants))

	h := fnv.New64a()
	_, _ = h.Write([]byte(models.NormalizeQuery(query)))
	seed := h.Sum64()

	base := 1000 + int(seed%9000)/10*10
	images := services.SampleImages()
	shop := services.DefaultShop(source)
	text := services.NormaliseText(query)

	out := make([]models.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Listing{
			Source:         source,
			Title:          fmt.Sprintf("%s %s (%s)", text, syntheticVariants[i], shop),
			Price:          base + (len(syntheticVariants)-1-i)*100,
			URL:            searchURL,
			ImageURL:       images[(seed+uint64(i))%uint64(len(images))],
			Description:    "Sample listing shown while live results are unavailable.",
			Shop:           shop,
			AdditionalInfo: map[string]any{models.InfoFallback: true},
		})
	}
	return out
}
