package services

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"price-aggregator/models"
	"price-aggregator/utils"
)

var (
	// digitsRegexp captures the first contiguous digit run
	digitsRegexp = regexp.MustCompile(`\d+`)
	// ratingRegexp captures a decimal number
	ratingRegexp = regexp.MustCompile(`\d+(?:\.\d+)?`)
	// pixelSizeRegexp matches a standalone 1x1 size token, not 121x121 or 11x11
	pixelSizeRegexp = regexp.MustCompile(`(^|[^0-9])1x1([^0-9]|$)`)
)

// Images that are never real product photos: tracking pixels, spacers and
// "now loading" / "no image" sentinels. 1x1 size tokens are matched by
// pixelSizeRegexp.
var rejectedImageMarkers = []string{
	"pixel.gif", "spacer.gif", "transparent-pixel", "grey-pixel",
	"blank.gif", "now_loading", "nowloading", "loading.gif",
	"noimage", "no_image", "no-image",
}

var sampleImages = []string{
	"https://placehold.co/300x300/eeeeee/999999?text=Sample+1",
	"https://placehold.co/300x300/eeeeee/999999?text=Sample+2",
	"https://placehold.co/300x300/eeeeee/999999?text=Sample+3",
	"https://placehold.co/300x300/eeeeee/999999?text=Sample+4",
}

var defaultShops = map[string]string{
	models.SourceAmazon:  "Amazon.co.jp",
	models.SourceRakuten: "楽天市場",
	models.SourceYahoo:   "Yahoo!ショッピング",
	models.SourceKakaku:  "価格.com",
}

// Cleaner transforms RawListings into clean, validated Listings.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean normalizes every raw item for query. Items without a link point at
// fallbackURL. Items carrying neither a title nor a price are dropped, and
// repeated item URLs collapse to the first occurrence.
func (c *Cleaner) Clean(query, fallbackURL string, raw []models.RawListing) []models.Listing {
	seen := make(map[string]struct{})
	result := make([]models.Listing, 0, len(raw))

	for _, r := range raw {
		title := NormaliseText(r.Title)
		price := ParsePrice(r.Price)
		if title == "" && price == 0 {
			c.logger.Debug("[cleaner] Dropping %s item without title or price", r.Source)
			continue
		}
		if title == "" {
			title = fmt.Sprintf("%s (%s)", NormaliseText(query), r.Source)
		}

		link := EnsureHTTPS(r.URL)
		if link == "" {
			link = fallbackURL
		}
		if link != fallbackURL {
			if _, dup := seen[link]; dup {
				c.logger.Debug("[cleaner] Duplicate URL skipped: %s", link)
				continue
			}
			seen[link] = struct{}{}
		}

		shop := NormaliseText(r.Shop)
		if shop == "" {
			shop = DefaultShop(r.Source)
		}

		listing := models.Listing{
			Source:       r.Source,
			Title:        title,
			Price:        price,
			URL:          link,
			ImageURL:     ResolveImageURL(r.Images, title),
			Description:  NormaliseText(r.Description),
			Shop:         shop,
			Availability: r.Available,
			Rating:       clampRating(r.Rating),
			ReviewCount:  max(r.ReviewCount, 0),
			ShippingFee:  r.ShippingFee,
			Ranking:      r.Ranking,
		}
		if len(r.Extra) > 0 {
			listing.AdditionalInfo = make(map[string]any, len(r.Extra))
			for k, v := range r.Extra {
				listing.AdditionalInfo[k] = v
			}
		}

		result = append(result, listing)
	}

	c.logger.Debug("[cleaner] Cleaned %d → %d listings for %q", len(raw), len(result), query)
	return result
}

// ParsePrice converts a price in any upstream shape to whole yen. Numbers are
// truncated; text is width-folded, stripped of thousands separators and read
// up to the end of its first digit run. Anything unparseable yields 0.
func ParsePrice(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case int:
		return max(x, 0)
	case int64:
		return max(int(x), 0)
	case int32:
		return max(int(x), 0)
	case float64:
		return max(int(x), 0)
	case float32:
		return max(int(x), 0)
	case json.Number:
		return parsePriceText(x.String())
	case string:
		return parsePriceText(x)
	default:
		return parsePriceText(fmt.Sprint(x))
	}
}

func parsePriceText(raw string) int {
	cleaned := strings.ReplaceAll(width.Fold.String(raw), ",", "")
	match := digitsRegexp.FindString(cleaned)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

// FormatPrice renders n as "¥1,234".
func FormatPrice(n int) string {
	digits := strconv.Itoa(max(n, 0))
	var b strings.Builder
	b.WriteString("¥")
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

// ParseRating extracts a 0.0-5.0 rating from text such as "4.5" or
// "5つ星のうち4.3".
func ParseRating(raw string) float64 {
	if idx := strings.Index(raw, "のうち"); idx >= 0 {
		raw = raw[idx+len("のうち"):]
	}
	match := ratingRegexp.FindString(width.Fold.String(raw))
	if match == "" {
		return 0
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil || val < 0 || val > 5 {
		return 0
	}
	return val
}

// ParseCount extracts an integer count such as a review total from text.
func ParseCount(raw string) int {
	return parsePriceText(raw)
}

// EnsureHTTPS turns protocol-relative and plain-HTTP URLs into HTTPS ones.
func EnsureHTTPS(raw string) string {
	u := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "http://"):
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// ResolveImageURL returns the first usable candidate, coerced to HTTPS.
// Candidates are expected in preference order. When none qualifies a sample
// image chosen by seed is returned.
func ResolveImageURL(candidates []string, seed string) string {
	for _, c := range candidates {
		if u, ok := usableImage(c); ok {
			return u
		}
	}
	return SampleImage(seed)
}

func usableImage(raw string) (string, bool) {
	u := EnsureHTTPS(raw)
	if u == "" || !strings.HasPrefix(u, "https://") {
		return "", false
	}
	lower := strings.ToLower(u)
	if pixelSizeRegexp.MatchString(lower) {
		return "", false
	}
	for _, marker := range rejectedImageMarkers {
		if strings.Contains(lower, marker) {
			return "", false
		}
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return u, true
}

// SampleImage picks one of the known-good sample images. The same seed always
// yields the same image.
func SampleImage(seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(models.NormalizeQuery(seed)))
	return sampleImages[int(h.Sum32()%uint32(len(sampleImages)))]
}

// SampleImages returns the rotation used for placeholder images.
func SampleImages() []string {
	return append([]string(nil), sampleImages...)
}

// DefaultShop is the shop name shown when a marketplace omits one.
func DefaultShop(source string) string {
	if shop, ok := defaultShops[source]; ok {
		return shop
	}
	return source
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

func clampRating(r float64) float64 {
	if r < 0 || r > 5 {
		return 0
	}
	return r
}
