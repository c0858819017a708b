package model

// ProductSearchResult is a read-only projection of a product returned by the backend
type ProductSearchResult struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Brand            string   `json:"brand,omitempty"`
	Category         string   `json:"category,omitempty"`
	ImageURL         string   `json:"image_url,omitempty"`
	Price            float64  `json:"price"`
	OriginalPrice    *float64 `json:"original_price,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	ReviewCount      *int     `json:"review_count,omitempty"`
	InStock          bool     `json:"in_stock"`
	MatchScore       *float64 `json:"match_score,omitempty"`
	MatchExplanation string   `json:"match_explanation,omitempty"`
}

// Product is the full product detail record
type Product struct {
	ProductSearchResult
	Description string            `json:"description,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Specs       map[string]string `json:"specs,omitempty"`
}

// AffordabilityTier is one of the budget-fit bands
type AffordabilityTier string

const (
	TierNoBudget     AffordabilityTier = "no_budget_set"
	TierWithinBudget AffordabilityTier = "within_budget"
	TierConsider     AffordabilityTier = "consider"
	TierSlightlyOver AffordabilityTier = "slightly_over"
	TierOverBudget   AffordabilityTier = "over_budget"
)

// AffordabilityVerdict is derived from (price, budget) on every render, never stored
type AffordabilityVerdict struct {
	IsAffordable bool              `json:"is_affordable"`
	Percentage   float64           `json:"percentage"`
	Tier         AffordabilityTier `json:"tier"`
}

// DisplayPercentage clamps the percentage to [0,100] for progress bars
func (v AffordabilityVerdict) DisplayPercentage() float64 {
	switch {
	case v.Percentage < 0:
		return 0
	case v.Percentage > 100:
		return 100
	default:
		return v.Percentage
	}
}

// AnnotatedProduct is a result annotated for display
type AnnotatedProduct struct {
	ProductSearchResult
	Affordability   AffordabilityVerdict `json:"affordability"`
	DiscountPercent int                  `json:"discount_percent,omitempty"`
}

// Deal is a result whose original price exceeds its current price
type Deal struct {
	Product         ProductSearchResult `json:"product"`
	DiscountPercent int                 `json:"discount_percent"`
}

// BudgetOverview summarizes the displayed set against the user's budget
type BudgetOverview struct {
	BudgetSet         bool                      `json:"budget_set"`
	MonthlyBudget     float64                   `json:"monthly_budget,omitempty"`
	Total             int                       `json:"total"`
	Affordable        int                       `json:"affordable"`
	TierCounts        map[AffordabilityTier]int `json:"tier_counts"`
	AveragePercentage float64                   `json:"average_percentage"`
	CheapestID        string                    `json:"cheapest_id,omitempty"`
	PriciestID        string                    `json:"priciest_id,omitempty"`
}

// RecommendationResponse is the backend answer for personalized picks.
// An empty list is a valid cold-start answer, not an error.
type RecommendationResponse struct {
	Recommendations []ProductSearchResult `json:"recommendations"`
	Explanation     string                `json:"explanation,omitempty"`
}

// TrendingResponse is the backend answer for popular products
type TrendingResponse struct {
	Products []ProductSearchResult `json:"products"`
}
