package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"price-aggregator/models"
	"price-aggregator/services"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputCSV   = "csv"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	fallbackStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"})
)

func validOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML, outputCSV:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json, yaml or csv)", format)
}

func renderPrices(w io.Writer, format string, records []models.PriceRecord) error {
	switch format {
	case outputJSON:
		return writeJSON(w, records)
	case outputYAML:
		return writeYAML(w, records)
	case outputCSV:
		rows := [][]string{{"source", "title", "price", "shop", "availability", "is_fallback", "model_number", "url"}}
		for _, r := range records {
			rows = append(rows, []string{r.Source, r.Title, strconv.Itoa(r.Price), r.Shop,
				strconv.FormatBool(r.Availability), strconv.FormatBool(r.IsFallback), r.ModelNumber, r.URL})
		}
		return writeCSV(w, rows)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	fallback := make(map[int]bool)
	rows := make([][]string, 0, len(records))
	for i, r := range records {
		fallback[i] = r.IsFallback
		rows = append(rows, []string{strconv.Itoa(i + 1), r.Source, truncate(r.Title, 48), priceCell(r.Price), r.Shop, r.URL})
	}
	_, err := fmt.Fprintln(w, newTable(fallback, "#", "SOURCE", "TITLE", "PRICE", "SHOP", "URL").Rows(rows...))
	return err
}

func renderListings(w io.Writer, format string, listings []models.Listing) error {
	switch format {
	case outputJSON:
		return writeJSON(w, listings)
	case outputYAML:
		return writeYAML(w, listings)
	case outputCSV:
		rows := [][]string{{"source", "title", "price", "shop", "availability", "rating", "review_count", "shipping_fee", "url", "image_url"}}
		for _, l := range listings {
			rows = append(rows, []string{l.Source, l.Title, strconv.Itoa(l.Price), l.Shop,
				strconv.FormatBool(l.Availability), strconv.FormatFloat(l.Rating, 'f', -1, 64),
				strconv.Itoa(l.ReviewCount), shippingValue(l.ShippingFee), l.URL, l.ImageURL})
		}
		return writeCSV(w, rows)
	}

	if len(listings) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	fallback := make(map[int]bool)
	rows := make([][]string, 0, len(listings))
	for i, l := range listings {
		fallback[i] = l.IsFallback()
		rating := "-"
		if l.Rating > 0 {
			rating = fmt.Sprintf("%.2f (%d)", l.Rating, l.ReviewCount)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), l.Source, truncate(l.Title, 40), priceCell(l.Price),
			shippingCell(l.ShippingFee), rating, l.Shop, l.URL})
	}
	_, err := fmt.Fprintln(w, newTable(fallback, "#", "SOURCE", "TITLE", "PRICE", "SHIPPING", "RATING", "SHOP", "URL").Rows(rows...))
	return err
}

// newTable dims rows holding placeholder data.
func newTable(fallback map[int]bool, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case fallback[row]:
				return fallbackStyle
			default:
				return cellStyle
			}
		})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	// Round-trip through JSON so YAML keys follow the json tags.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(integralNumbers(generic)); err != nil {
		return err
	}
	return enc.Close()
}

// integralNumbers turns whole float64 values decoded from JSON back into
// integers so prices render as 1500000 rather than 1.5e+06.
func integralNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = integralNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = integralNumbers(e)
		}
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
	}
	return v
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

func priceCell(price int) string {
	if price <= 0 {
		return "-"
	}
	return services.FormatPrice(price)
}

func shippingCell(fee *int) string {
	switch {
	case fee == nil:
		return ""
	case *fee == 0:
		return "free"
	default:
		return services.FormatPrice(*fee)
	}
}

func shippingValue(fee *int) string {
	if fee == nil {
		return ""
	}
	return strconv.Itoa(*fee)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
