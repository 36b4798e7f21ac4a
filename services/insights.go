package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"price-aggregator/models"
	"price-aggregator/utils"
)

const topRatedCount = 5

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorDim     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorGreen   = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().Foreground(colorDim).Width(16)
	priceStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)
)

// InsightService summarizes aggregated listings.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate builds a report for listings found under query. Price statistics
// only consider real listings with a known price; synthetic placeholders are
// counted but never priced.
func (s *InsightService) Generate(query string, listings []models.Listing) *models.InsightReport {
	report := &models.InsightReport{Query: query, TotalListings: len(listings)}
	if len(listings) == 0 {
		return report
	}

	bySource := map[string]*models.SourceStats{}
	var order []string
	var priced, rated []models.Listing
	var total float64

	for _, l := range listings {
		st, ok := bySource[l.Source]
		if !ok {
			st = &models.SourceStats{Source: l.Source}
			bySource[l.Source] = st
			order = append(order, l.Source)
		}
		st.Count++
		if l.IsFallback() {
			st.Fallback++
			continue
		}
		report.RealListings++

		if l.Price > 0 {
			priced = append(priced, l)
			total += float64(l.Price)
			if st.MinPrice == 0 || l.Price < st.MinPrice {
				st.MinPrice = l.Price
			}
			if l.Price > st.MaxPrice {
				st.MaxPrice = l.Price
			}
			st.AvgPrice += float64(l.Price)
		}
		if l.Rating > 0 {
			rated = append(rated, l)
		}
	}

	for _, src := range order {
		st := bySource[src]
		if c := pricedCount(priced, src); c > 0 {
			st.AvgPrice = round2(st.AvgPrice / float64(c))
		}
		report.BySource = append(report.BySource, *st)
	}

	if len(priced) > 0 {
		cheapest := priced[0]
		report.MinPrice, report.MaxPrice = priced[0].Price, priced[0].Price
		for _, l := range priced {
			if l.Price < report.MinPrice {
				report.MinPrice = l.Price
				cheapest = l
			}
			if l.Price > report.MaxPrice {
				report.MaxPrice = l.Price
			}
		}
		report.Cheapest = &cheapest
		report.AveragePrice = round2(total / float64(len(priced)))
	}

	sort.SliceStable(rated, func(i, j int) bool {
		if rated[i].Rating != rated[j].Rating {
			return rated[i].Rating > rated[j].Rating
		}
		return rated[i].ReviewCount > rated[j].ReviewCount
	})
	if len(rated) > topRatedCount {
		rated = rated[:topRatedCount]
	}
	report.TopRated = rated

	s.logger.Debug("[insights] %q: %d listings, %d real, %d priced", query, report.TotalListings, report.RealListings, len(priced))
	return report
}

// Print renders r to w.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("PRICE SUMMARY: %s", r.Query)))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Overview"))
	b.WriteString("\n")
	b.WriteString(row("Listings", fmt.Sprintf("%d", r.TotalListings)))
	b.WriteString(row("Real listings", fmt.Sprintf("%d", r.RealListings)))

	b.WriteString(sectionStyle.Render("Prices"))
	b.WriteString("\n")
	if r.MinPrice > 0 {
		b.WriteString(row("Minimum", priceStyle.Render(FormatPrice(r.MinPrice))))
		b.WriteString(row("Average", priceStyle.Render(FormatPrice(int(math.Round(r.AveragePrice))))))
		b.WriteString(row("Maximum", priceStyle.Render(FormatPrice(r.MaxPrice))))
	} else {
		b.WriteString("No price data available\n")
	}

	if r.Cheapest != nil {
		b.WriteString(sectionStyle.Render("Cheapest"))
		b.WriteString("\n")
		b.WriteString(truncate(r.Cheapest.Title, 50) + "\n")
		b.WriteString(row("Shop", r.Cheapest.Shop))
		b.WriteString(row("Price", priceStyle.Render(FormatPrice(r.Cheapest.Price))))
		b.WriteString(row("URL", r.Cheapest.URL))
	}

	b.WriteString(sectionStyle.Render("Top rated"))
	b.WriteString("\n")
	if len(r.TopRated) == 0 {
		b.WriteString("No rated listings found\n")
	}
	for i, l := range r.TopRated {
		fmt.Fprintf(&b, "%d. %-40s %.2f ★ (%d)\n", i+1, truncate(l.Title, 38), l.Rating, l.ReviewCount)
	}

	b.WriteString(sectionStyle.Render("By marketplace"))
	b.WriteString("\n")
	for _, st := range r.BySource {
		line := fmt.Sprintf("%-8s %3d listings", st.Source, st.Count)
		if st.Fallback > 0 {
			line += fmt.Sprintf(" (%d placeholder)", st.Fallback)
		}
		if st.MinPrice > 0 {
			line += fmt.Sprintf("  %s-%s", FormatPrice(st.MinPrice), FormatPrice(st.MaxPrice))
		}
		b.WriteString(line + "\n")
	}

	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func pricedCount(priced []models.Listing, source string) int {
	n := 0
	for _, l := range priced {
		if l.Source == source {
			n++
		}
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
