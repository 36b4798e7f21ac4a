package compare

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"price-aggregator/services"
)

var (
	enumerationPrefix = regexp.MustCompile(`^\d{1,2}(?:\s*[.:、)）]\s*|\s+)`)
	labelPrefix       = regexp.MustCompile(`^(?i)(?:型番|品番|model(?:\s*number)?)\s*[:：]\s*`)
	bulletPrefix      = regexp.MustCompile(`^[-*•・]+\s*`)
)

// Lines produced by keyword generators that are commentary, not model numbers.
var debrisMarkers = []string{
	"以下", "申し訳", "型番リスト", "候補", "sorry", "here are", "model numbers", "cannot",
}

// CleanModelNumber strips list decoration from a model number line and
// returns "" for lines that are not model numbers at all.
func CleanModelNumber(raw string) string {
	s := services.NormaliseText(raw)
	s = bulletPrefix.ReplaceAllString(s, "")
	s = stripEnumeration(s)
	s = labelPrefix.ReplaceAllString(s, "")
	s = strings.Trim(s, "\"'`*「」 ")

	lower := strings.ToLower(s)
	for _, m := range debrisMarkers {
		if strings.Contains(lower, m) {
			return ""
		}
	}
	if len([]rune(s)) < MinQueryLength {
		return ""
	}
	return s
}

// stripEnumeration removes a "1." or "2 " list marker unless what follows is
// a digit, as in "2.5" which is a value rather than a list position.
func stripEnumeration(s string) string {
	m := enumerationPrefix.FindString(s)
	if m == "" {
		return s
	}
	rest := s[len(m):]
	if r, _ := utf8.DecodeRuneInString(rest); rest == "" || unicode.IsDigit(r) {
		return s
	}
	return rest
}

// CleanModelNumbers cleans every entry, dropping empty results and
// case-insensitive duplicates while keeping input order.
func CleanModelNumbers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		m := CleanModelNumber(r)
		if m == "" {
			continue
		}
		key := strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}
