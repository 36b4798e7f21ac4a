package models

// Significance grades how much a difference between two products matters.
type Significance string

const (
	SignificanceHigh   Significance = "high"
	SignificanceMedium Significance = "medium"
	SignificanceLow    Significance = "low"
)

// Difference is one compared attribute of two products.
type Difference struct {
	Category     string       `json:"category"`
	Label        string       `json:"label"`
	ValueA       string       `json:"product_a_value"`
	ValueB       string       `json:"product_b_value"`
	Significance Significance `json:"significance"`
}

// ProductComparison is the side-by-side result for two product queries.
type ProductComparison struct {
	ProductA       Listing      `json:"product_a"`
	ProductB       Listing      `json:"product_b"`
	Differences    []Difference `json:"differences"`
	Recommendation string       `json:"recommendation"`
}

// BatchResult is the outcome for one item of a batch search. Error is set
// when the item failed; the other items are unaffected.
type BatchResult struct {
	ProductInfo      string        `json:"product_info"`
	Keywords         []string      `json:"keywords"`
	PriceComparison  []PriceRecord `json:"price_comparison"`
	DetailedProducts []Listing     `json:"detailed_products"`
	Error            string        `json:"error,omitempty"`
}
