package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"storefront/internal/model"
)

// RecommendationView is the recommendation surface. Fallback is set when the
// displayed products are trending picks shown in place of an empty personalized set.
type RecommendationView struct {
	Seq         uint64                      `json:"seq"`
	Loading     bool                        `json:"loading"`
	Products    []model.ProductSearchResult `json:"products"`
	Fallback    bool                        `json:"fallback"`
	Explanation string                      `json:"explanation,omitempty"`
	Error       *ViewError                  `json:"error,omitempty"`
}

// RecommendationFeed loads personalized picks with a trending fallback
type RecommendationFeed struct {
	mu sync.Mutex

	backend       RecommendationBackend
	trendingLimit int
	log           *slog.Logger

	seq  uint64
	view RecommendationView

	// OnChange is called with every settled view
	OnChange func(RecommendationView)
}

// NewRecommendationFeed creates an empty feed
func NewRecommendationFeed(backend RecommendationBackend, trendingLimit int, log *slog.Logger) *RecommendationFeed {
	if trendingLimit <= 0 {
		trendingLimit = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &RecommendationFeed{
		backend:       backend,
		trendingLimit: trendingLimit,
		log:           log,
		view:          RecommendationView{Products: []model.ProductSearchResult{}},
	}
}

// Load fetches personalized and trending products concurrently and settles the view.
// Anonymous users go straight to the trending fallback.
func (f *RecommendationFeed) Load(ctx context.Context, userID string) RecommendationView {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.view = RecommendationView{Seq: seq, Loading: true, Products: []model.ProductSearchResult{}}
	f.mu.Unlock()

	var (
		personalized *model.RecommendationResponse
		trending     []model.ProductSearchResult
		trendingErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	if userID != "" {
		g.Go(func() error {
			resp, err := f.backend.Recommendations(gctx, userID)
			if err != nil {
				return err
			}
			personalized = resp
			return nil
		})
	}
	g.Go(func() error {
		// only needed for the fallback, so its failure is judged later
		trending, trendingErr = f.backend.Trending(gctx, f.trendingLimit)
		return nil
	})
	err := g.Wait()

	view := RecommendationView{Seq: seq, Products: []model.ProductSearchResult{}}
	switch {
	case err != nil:
		f.log.Warn("recommendations failed", "user_id", userID, "error", err)
		view.Error = NewViewError(err)
	case personalized != nil && len(personalized.Recommendations) > 0:
		view.Products = personalized.Recommendations
		view.Explanation = personalized.Explanation
	case trendingErr != nil:
		f.log.Warn("trending fallback failed", "error", trendingErr)
		view.Error = NewViewError(trendingErr)
		view.Fallback = true
	default:
		if trending != nil {
			view.Products = trending
		}
		view.Fallback = true
	}

	f.mu.Lock()
	if seq != f.seq {
		current := f.view
		f.mu.Unlock()
		return current
	}
	f.view = view
	hook := f.OnChange
	f.mu.Unlock()

	if hook != nil {
		hook(view)
	}
	return view
}

// Snapshot returns the current view
func (f *RecommendationFeed) Snapshot() RecommendationView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

// Deals derives deals from whichever set is displayed
func (f *RecommendationFeed) Deals() []model.Deal {
	return DeriveDeals(f.Snapshot().Products)
}

// Overview derives budget statistics from whichever set is displayed
func (f *RecommendationFeed) Overview(monthlyBudget *float64) model.BudgetOverview {
	return SummarizeBudget(f.Snapshot().Products, monthlyBudget)
}
