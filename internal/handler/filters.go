package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/model"
	"storefront/internal/service"
)

// FilterHandler edits the filter and sort state of a session
type FilterHandler struct {
	sessions *service.SessionManager
}

// NewFilterHandler creates a new filter handler
func NewFilterHandler(sessions *service.SessionManager) *FilterHandler {
	return &FilterHandler{sessions: sessions}
}

type filtersResponse struct {
	Filters           model.FilterSet   `json:"filters"`
	PendingPriceRange *model.PriceRange `json:"pending_price_range,omitempty"`
	Results           resultsResponse   `json:"results"`
}

func (h *FilterHandler) respond(c *gin.Context, status int, s *service.Session) {
	c.JSON(status, filtersResponse{
		Filters:           s.Filters.Current(),
		PendingPriceRange: s.Filters.PendingPriceRange(),
		Results:           results(c, s),
	})
}

// Get handles GET /api/v1/sessions/:id/filters
func (h *FilterHandler) Get(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, s)
}

type toggleRequest struct {
	Field string `json:"field" validate:"required,oneof=category brand"`
	Value string `json:"value" validate:"required,max=100"`
}

// Toggle handles POST /api/v1/sessions/:id/filters/toggle
func (h *FilterHandler) Toggle(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req toggleRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	if err := s.Filters.Toggle(service.FilterField(req.Field), req.Value); err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, s)
}

type priceRequest struct {
	Min *float64 `json:"min" validate:"omitempty,gte=0"`
	Max *float64 `json:"max" validate:"omitempty,gte=0"`
}

// SetPrice handles PUT /api/v1/sessions/:id/filters/price. The range is
// committed after the debounce, so the response shows it as pending.
func (h *FilterHandler) SetPrice(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req priceRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	if err := s.Filters.SetPriceRange(req.Min, req.Max); err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusAccepted, s)
}

type updateFiltersRequest struct {
	MinRating      *float64         `json:"min_rating" validate:"omitempty,gte=0,lte=5"`
	ClearMinRating bool             `json:"clear_min_rating"`
	InStock        *bool            `json:"in_stock"`
	ClearInStock   bool             `json:"clear_in_stock"`
	Sort           *model.SortOrder `json:"sort" validate:"omitempty,oneof=relevance price_asc price_desc rating newest"`
}

// Update handles PUT /api/v1/sessions/:id/filters
func (h *FilterHandler) Update(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req updateFiltersRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	err := s.Filters.Apply(service.FilterUpdate{
		MinRating:      req.MinRating,
		ClearMinRating: req.ClearMinRating,
		InStock:        req.InStock,
		ClearInStock:   req.ClearInStock,
		Sort:           req.Sort,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, s)
}

// Clear handles DELETE /api/v1/sessions/:id/filters
func (h *FilterHandler) Clear(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	s.Filters.ClearAll()
	h.respond(c, http.StatusOK, s)
}
