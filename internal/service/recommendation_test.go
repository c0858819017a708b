package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

func TestRecommendationFeed_Personalized(t *testing.T) {
	backend := &fakeBackend{
		recommendFn: func(_ context.Context, userID string) (*model.RecommendationResponse, error) {
			assert.Equal(t, "u-1", userID)
			return &model.RecommendationResponse{Recommendations: sampleProducts("r1", "r2"), Explanation: "based on your views"}, nil
		},
		trendingFn: func(context.Context, int) ([]model.ProductSearchResult, error) {
			return sampleProducts("t1"), nil
		},
	}
	feed := NewRecommendationFeed(backend, 10, nil)

	view := feed.Load(context.Background(), "u-1")
	assert.False(t, view.Fallback)
	assert.Equal(t, "based on your views", view.Explanation)
	assert.Equal(t, sampleProducts("r1", "r2"), view.Products)
}

func TestRecommendationFeed_EmptyFallsBackToTrending(t *testing.T) {
	trending := sampleProducts("t1", "t2", "t3")
	backend := &fakeBackend{
		trendingFn: func(_ context.Context, limit int) ([]model.ProductSearchResult, error) {
			assert.Equal(t, 10, limit)
			return trending, nil
		},
	}
	feed := NewRecommendationFeed(backend, 10, nil)

	view := feed.Load(context.Background(), "new-user")
	assert.True(t, view.Fallback)
	assert.Nil(t, view.Error, "cold start is not an error")
	assert.Equal(t, trending, view.Products)

	anonymous := feed.Load(context.Background(), "")
	assert.True(t, anonymous.Fallback)
	assert.Equal(t, trending, anonymous.Products)
}

func TestRecommendationFeed_Errors(t *testing.T) {
	backend := &fakeBackend{
		recommendFn: func(context.Context, string) (*model.RecommendationResponse, error) {
			return nil, apperr.Unavailable("backend unreachable", errors.New("502"))
		},
	}
	feed := NewRecommendationFeed(backend, 10, nil)

	view := feed.Load(context.Background(), "u-1")
	require.NotNil(t, view.Error)
	assert.Equal(t, "unavailable", view.Error.Kind)
	assert.Empty(t, view.Products)

	// trending failure only matters when the fallback is needed
	backend.recommendFn = nil
	backend.trendingFn = func(context.Context, int) ([]model.ProductSearchResult, error) {
		return nil, apperr.Unavailable("backend unreachable", errors.New("502"))
	}
	view = feed.Load(context.Background(), "u-1")
	require.NotNil(t, view.Error)
	assert.True(t, view.Fallback)
}

func TestRecommendationFeed_DerivedViewsFollowActiveSet(t *testing.T) {
	original := 200.0
	trending := []model.ProductSearchResult{
		{ID: "deal", Price: 150, OriginalPrice: &original},
		{ID: "plain", Price: 900},
	}
	backend := &fakeBackend{
		trendingFn: func(context.Context, int) ([]model.ProductSearchResult, error) { return trending, nil },
	}
	feed := NewRecommendationFeed(backend, 10, nil)
	feed.Load(context.Background(), "cold")

	deals := feed.Deals()
	require.Len(t, deals, 1)
	assert.Equal(t, "deal", deals[0].Product.ID)
	assert.Equal(t, 25, deals[0].DiscountPercent)

	overview := feed.Overview(float64Ptr(1000))
	assert.Equal(t, 2, overview.Total)
	assert.Equal(t, 1, overview.Affordable)
	assert.Equal(t, "deal", overview.CheapestID)
}
