package model

import "time"

// RecentlyViewedItem is one entry of the recently-viewed list
type RecentlyViewedItem struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	ImageURL  string    `json:"image_url,omitempty"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// CartEntry is a hydrated cart line for display
type CartEntry struct {
	ProductID string               `json:"product_id"`
	Product   *ProductSearchResult `json:"product,omitempty"`
}

// WishlistEntry is a hydrated wishlist line for display
type WishlistEntry struct {
	ProductID string               `json:"product_id"`
	Product   *ProductSearchResult `json:"product,omitempty"`
}

// FinancialProfile holds the budget the affordability classifier reads
type FinancialProfile struct {
	MonthlyBudget *float64 `json:"monthly_budget,omitempty"`
}

// Preferences holds the user's favorite categories and brands
type Preferences struct {
	FavoriteCategories []string `json:"favorite_categories,omitempty"`
	FavoriteBrands     []string `json:"favorite_brands,omitempty"`
}

// UserProfile is read from and written to the backend and cached locally
type UserProfile struct {
	UserID           string           `json:"user_id"`
	FinancialProfile FinancialProfile `json:"financial_profile"`
	Preferences      Preferences      `json:"preferences"`
}

// Interaction types sent to the backend interaction log
const (
	InteractionView          = "view"
	InteractionAddToCart     = "add_to_cart"
	InteractionAddToWishlist = "add_to_wishlist"
	InteractionSearch        = "search"
)

// Interaction is a fire-and-forget analytics record
type Interaction struct {
	UserID          string         `json:"user_id,omitempty"`
	ProductID       string         `json:"product_id"`
	InteractionType string         `json:"interaction_type"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// StoreChange announces that a key of a browser namespace was rewritten
type StoreChange struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Origin    string `json:"origin"`
}
