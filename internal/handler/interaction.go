package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/model"
	"storefront/internal/service"
)

// InteractionHandler handles cart, wishlist, history and preference requests
type InteractionHandler struct {
	sessions *service.SessionManager
}

// NewInteractionHandler creates a new interaction handler
func NewInteractionHandler(sessions *service.SessionManager) *InteractionHandler {
	return &InteractionHandler{sessions: sessions}
}

type productIDRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
}

// Cart handles GET /api/v1/sessions/:id/cart
func (h *InteractionHandler) Cart(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	entries, err := s.Cart(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// AddToCart handles POST /api/v1/sessions/:id/cart
func (h *InteractionHandler) AddToCart(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req productIDRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	added, err := s.AddToCart(c.Request.Context(), req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added, "product_id": req.ProductID})
}

// RemoveFromCart handles DELETE /api/v1/sessions/:id/cart/:pid
func (h *InteractionHandler) RemoveFromCart(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	removed, err := s.Store.RemoveFromCart(c.Request.Context(), c.Param("pid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Wishlist handles GET /api/v1/sessions/:id/wishlist
func (h *InteractionHandler) Wishlist(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	entries, err := s.Wishlist(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// AddToWishlist handles POST /api/v1/sessions/:id/wishlist
func (h *InteractionHandler) AddToWishlist(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req productIDRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	added, err := s.AddToWishlist(c.Request.Context(), req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"added": added, "product_id": req.ProductID})
}

// RemoveFromWishlist handles DELETE /api/v1/sessions/:id/wishlist/:pid
func (h *InteractionHandler) RemoveFromWishlist(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	removed, err := s.Store.RemoveFromWishlist(c.Request.Context(), c.Param("pid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Recent handles GET /api/v1/sessions/:id/recent
func (h *InteractionHandler) Recent(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	items, err := s.Store.RecentlyViewed(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type preferencesRequest struct {
	Theme    *string `json:"theme" validate:"omitempty,oneof=light dark system"`
	LoggedIn *bool   `json:"logged_in"`
}

// Preferences handles GET /api/v1/sessions/:id/preferences
func (h *InteractionHandler) Preferences(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	theme, err := s.Store.Theme(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if theme == "" {
		theme = "system"
	}
	loggedIn, err := s.Store.LoggedIn(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme, "logged_in": loggedIn})
}

// UpdatePreferences handles PUT /api/v1/sessions/:id/preferences
func (h *InteractionHandler) UpdatePreferences(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req preferencesRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()

	if req.Theme != nil {
		if err := s.Store.SetTheme(ctx, *req.Theme); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.LoggedIn != nil {
		if err := s.Store.SetLoggedIn(ctx, *req.LoggedIn); err != nil {
			respondError(c, err)
			return
		}
	}
	h.Preferences(c)
}

// Profile handles GET /api/v1/sessions/:id/profile
func (h *InteractionHandler) Profile(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	profile, err := s.Profile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type profileRequest struct {
	MonthlyBudget      *float64 `json:"monthly_budget" validate:"omitempty,gte=0"`
	FavoriteCategories []string `json:"favorite_categories" validate:"omitempty,max=50,dive,max=100"`
	FavoriteBrands     []string `json:"favorite_brands" validate:"omitempty,max=50,dive,max=100"`
}

// UpdateProfile handles PUT /api/v1/sessions/:id/profile
func (h *InteractionHandler) UpdateProfile(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	profile, err := s.UpdateProfile(c.Request.Context(), model.UserProfile{
		UserID:           s.UserID,
		FinancialProfile: model.FinancialProfile{MonthlyBudget: req.MonthlyBudget},
		Preferences: model.Preferences{
			FavoriteCategories: req.FavoriteCategories,
			FavoriteBrands:     req.FavoriteBrands,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
