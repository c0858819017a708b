package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/service"
)

// CatalogHandler serves recommendations, deals, product pages and the
// affordability calculator
type CatalogHandler struct {
	sessions *service.SessionManager
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(sessions *service.SessionManager) *CatalogHandler {
	return &CatalogHandler{sessions: sessions}
}

type recommendationsResponse struct {
	Seq         uint64                   `json:"seq"`
	Products    []model.AnnotatedProduct `json:"products"`
	Fallback    bool                     `json:"fallback"`
	Explanation string                   `json:"explanation,omitempty"`
	Overview    model.BudgetOverview     `json:"budget_overview"`
	Error       *service.ViewError       `json:"error,omitempty"`
}

// Recommendations handles GET /api/v1/sessions/:id/recommendations
func (h *CatalogHandler) Recommendations(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	view := s.LoadRecommendations(ctx)
	budget := s.Store.MonthlyBudget(ctx)
	c.JSON(http.StatusOK, recommendationsResponse{
		Seq:         view.Seq,
		Products:    service.Annotate(view.Products, budget),
		Fallback:    view.Fallback,
		Explanation: view.Explanation,
		Overview:    s.Feed.Overview(budget),
		Error:       view.Error,
	})
}

// Deals handles GET /api/v1/sessions/:id/deals. Deals come from the last
// loaded recommendation set.
func (h *CatalogHandler) Deals(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": s.Feed.Deals()})
}

// Product handles GET /api/v1/sessions/:id/products/:pid
func (h *CatalogHandler) Product(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Products.Detail(c.Request.Context(), s.Store, s.UserID, c.Param("pid")))
}

// Affordability handles GET /api/v1/affordability?price=&budget=
func (h *CatalogHandler) Affordability(c *gin.Context) {
	price, ok := parseAmount(c.Query("price"))
	if !ok || price < 0 {
		respondError(c, apperr.Validation("price must be a non-negative number"))
		return
	}

	var budget *float64
	if raw := c.Query("budget"); raw != "" {
		b, ok := parseAmount(raw)
		if !ok {
			respondError(c, apperr.Validation("budget must be a number"))
			return
		}
		budget = &b
	}

	verdict := service.ClassifyAffordability(price, budget)
	c.JSON(http.StatusOK, gin.H{
		"is_affordable":      verdict.IsAffordable,
		"percentage":         verdict.Percentage,
		"display_percentage": verdict.DisplayPercentage(),
		"tier":               verdict.Tier,
	})
}

// parseAmount accepts finite decimal numbers only; ParseFloat also takes NaN and Inf
func parseAmount(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
