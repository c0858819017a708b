package service

import (
	"math"

	"storefront/internal/model"
)

// Tier breakpoints, inclusive on the upper bound of each band
const (
	withinBudgetMax = 20.0
	considerMax     = 40.0
	slightlyOverMax = 60.0
)

// ClassifyAffordability maps a price against the monthly budget.
// Without a usable budget (nil, non-positive or not finite) the verdict is neutral so the UI never
// shows an affordability claim it cannot back.
func ClassifyAffordability(price float64, monthlyBudget *float64) model.AffordabilityVerdict {
	if monthlyBudget == nil || !(*monthlyBudget > 0) || math.IsInf(*monthlyBudget, 1) {
		return model.AffordabilityVerdict{IsAffordable: true, Percentage: 0, Tier: model.TierNoBudget}
	}

	percentage := 100 * price / *monthlyBudget

	var tier model.AffordabilityTier
	switch {
	case percentage <= withinBudgetMax:
		tier = model.TierWithinBudget
	case percentage <= considerMax:
		tier = model.TierConsider
	case percentage <= slightlyOverMax:
		tier = model.TierSlightlyOver
	default:
		tier = model.TierOverBudget
	}

	return model.AffordabilityVerdict{
		IsAffordable: tier == model.TierWithinBudget || tier == model.TierConsider,
		Percentage:   percentage,
		Tier:         tier,
	}
}

// DiscountPercent returns the rounded discount, or 0 when the product is not a deal
func DiscountPercent(p model.ProductSearchResult) int {
	if p.OriginalPrice == nil || *p.OriginalPrice <= p.Price || *p.OriginalPrice <= 0 {
		return 0
	}
	return int(math.Round(100 * (1 - p.Price / *p.OriginalPrice)))
}

// DeriveDeals keeps the products whose original price exceeds the current one
func DeriveDeals(products []model.ProductSearchResult) []model.Deal {
	deals := make([]model.Deal, 0)
	for _, p := range products {
		if p.OriginalPrice == nil || *p.OriginalPrice <= p.Price {
			continue
		}
		deals = append(deals, model.Deal{Product: p, DiscountPercent: DiscountPercent(p)})
	}
	return deals
}

// Annotate attaches a fresh verdict and discount to every product
func Annotate(products []model.ProductSearchResult, monthlyBudget *float64) []model.AnnotatedProduct {
	out := make([]model.AnnotatedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, model.AnnotatedProduct{
			ProductSearchResult: p,
			Affordability:       ClassifyAffordability(p.Price, monthlyBudget),
			DiscountPercent:     DiscountPercent(p),
		})
	}
	return out
}

// SummarizeBudget computes the budget overview for the displayed set
func SummarizeBudget(products []model.ProductSearchResult, monthlyBudget *float64) model.BudgetOverview {
	overview := model.BudgetOverview{
		Total:      len(products),
		TierCounts: make(map[model.AffordabilityTier]int),
	}
	if monthlyBudget != nil && *monthlyBudget > 0 {
		overview.BudgetSet = true
		overview.MonthlyBudget = *monthlyBudget
	}
	if len(products) == 0 {
		return overview
	}

	var sum float64
	cheapest, priciest := products[0], products[0]
	for _, p := range products {
		verdict := ClassifyAffordability(p.Price, monthlyBudget)
		overview.TierCounts[verdict.Tier]++
		if verdict.IsAffordable {
			overview.Affordable++
		}
		sum += verdict.Percentage
		if p.Price < cheapest.Price {
			cheapest = p
		}
		if p.Price > priciest.Price {
			priciest = p
		}
	}

	overview.AveragePercentage = sum / float64(len(products))
	overview.CheapestID = cheapest.ID
	overview.PriciestID = priciest.ID
	return overview
}
