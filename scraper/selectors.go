package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"price-aggregator/models"
	"price-aggregator/services"
	"price-aggregator/utils"
)

// CardSelectors describes how to read product cards from a search page. Each
// field is a cascade: the first selector that matches wins, so markup
// changes on one variant fall through to the next.
type CardSelectors struct {
	Cards   []string
	Title   []string
	Price   []string
	Link    []string
	Image   []string
	Shop    []string
	Rating  []string
	Reviews []string

	// Decorate, when set, runs on every card after the generic fields are
	// read and may adjust the raw listing.
	Decorate func(card *goquery.Selection, raw *models.RawListing)
}

// ExtractCards parses page and returns up to limit listings. Relative links
// and images resolve against baseURL. Cards sharing a link are kept once.
func ExtractCards(source string, page []byte, baseURL string, sel CardSelectors, limit int) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing %s page: %w", source, err)
	}

	cards := firstMatch(doc.Selection, sel.Cards)
	if cards.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrNoCards)
	}

	base, _ := url.Parse(baseURL)
	seen := utils.NewURLSet()
	now := time.Now()
	out := make([]models.RawListing, 0, cards.Length())

	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		raw := models.RawListing{
			Source:      source,
			Title:       firstText(card, sel.Title),
			Price:       firstText(card, sel.Price),
			URL:         resolveRef(base, firstAttr(card, sel.Link, "href")),
			Images:      imageCandidates(card, sel.Image, base),
			Shop:        firstText(card, sel.Shop),
			Available:   true,
			Rating:      services.ParseRating(firstText(card, sel.Rating)),
			ReviewCount: services.ParseCount(firstText(card, sel.Reviews)),
			ScrapedAt:   now,
		}
		raw.Ranking = raw.Rating * float64(raw.ReviewCount)
		if sel.Decorate != nil {
			sel.Decorate(card, &raw)
		}

		if raw.URL != "" && !seen.Add(raw.URL) {
			return true
		}
		out = append(out, raw)
		return limit <= 0 || len(out) < limit
	})

	return out, nil
}

func firstMatch(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if found := root.Find(s); found.Length() > 0 {
			return found
		}
	}
	return root.Find("__none__")
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if t := strings.TrimSpace(card.Find(s).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func firstAttr(card *goquery.Selection, selectors []string, attr string) string {
	for _, s := range selectors {
		if v, ok := card.Find(s).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// imageCandidates lists every image URL found under the selectors, the
// largest srcset entry first.
func imageCandidates(card *goquery.Selection, selectors []string, base *url.URL) []string {
	var out []string
	for _, s := range selectors {
		card.Find(s).Each(func(_ int, img *goquery.Selection) {
			if srcset, ok := img.Attr("srcset"); ok {
				if u := largestSrcset(srcset); u != "" {
					out = append(out, resolveRef(base, u))
				}
			}
			for _, attr := range []string{"data-src", "data-original", "src"} {
				if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
					out = append(out, resolveRef(base, strings.TrimSpace(v)))
				}
			}
		})
	}
	return out
}

// largestSrcset returns the last candidate of a srcset attribute; pages list
// them in ascending size.
func largestSrcset(srcset string) string {
	parts := strings.Split(srcset, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		if fields := strings.Fields(parts[i]); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "//") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
