package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"storefront/internal/model"
)

// ProductDetailView is the product page. Product and related products load
// independently, so each carries its own error.
type ProductDetailView struct {
	Product       *model.Product              `json:"product,omitempty"`
	ProductError  *ViewError                  `json:"product_error,omitempty"`
	Related       []model.ProductSearchResult `json:"related"`
	RelatedError  *ViewError                  `json:"related_error,omitempty"`
	Affordability *model.AffordabilityVerdict `json:"affordability,omitempty"`
	Discount      int                         `json:"discount_percent,omitempty"`
}

// ProductService loads product pages and records their side effects
type ProductService struct {
	catalog      CatalogBackend
	interactions *InteractionLogger
	log          *slog.Logger
}

// NewProductService creates a product page loader
func NewProductService(catalog CatalogBackend, interactions *InteractionLogger, log *slog.Logger) *ProductService {
	if log == nil {
		log = slog.Default()
	}
	return &ProductService{catalog: catalog, interactions: interactions, log: log}
}

// Detail loads the product and related products concurrently. A found product
// is recorded as recently viewed and logged as a view.
func (s *ProductService) Detail(ctx context.Context, store *InteractionStore, userID, productID string) ProductDetailView {
	view := ProductDetailView{Related: []model.ProductSearchResult{}}

	var g errgroup.Group
	g.Go(func() error {
		p, err := s.catalog.Product(ctx, productID)
		if err != nil {
			view.ProductError = NewViewError(err)
			return nil
		}
		view.Product = p
		return nil
	})
	g.Go(func() error {
		related, err := s.catalog.RelatedProducts(ctx, productID)
		if err != nil {
			s.log.Warn("related products failed", "product_id", productID, "error", err)
			view.RelatedError = NewViewError(err)
			return nil
		}
		if related != nil {
			view.Related = related
		}
		return nil
	})
	_ = g.Wait()

	if view.Product == nil {
		return view
	}

	p := view.Product.ProductSearchResult
	if p.ID == "" {
		p.ID = productID
	}
	budget := store.MonthlyBudget(ctx)
	verdict := ClassifyAffordability(p.Price, budget)
	view.Affordability = &verdict
	view.Discount = DiscountPercent(p)

	if _, err := store.RecordView(ctx, model.RecentlyViewedItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
	}); err != nil {
		// the page still renders without a history entry
		s.log.Warn("failed to record recently viewed", "product_id", p.ID, "error", err)
	}

	s.interactions.Log(model.Interaction{
		UserID:          userID,
		ProductID:       p.ID,
		InteractionType: model.InteractionView,
	})
	return view
}
