package service

import (
	"context"
	"sync"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// fakeBackend records calls and answers from its function fields.
// Unset functions return empty successful answers.
type fakeBackend struct {
	mu sync.Mutex

	searchFn      func(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
	imageSearchFn func(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
	suggestFn     func(ctx context.Context, partial string) ([]string, error)
	transcribeFn  func(ctx context.Context, audio []byte) (*model.Transcription, error)
	recommendFn   func(ctx context.Context, userID string) (*model.RecommendationResponse, error)
	trendingFn    func(ctx context.Context, limit int) ([]model.ProductSearchResult, error)
	products      map[string]model.Product
	relatedFn     func(ctx context.Context, id string) ([]model.ProductSearchResult, error)
	profile       *model.UserProfile
	logFn         func(ctx context.Context, interaction model.Interaction) error
	history       []model.ChatMessage
	chatChunks    []ChatChunk

	searches     []model.SearchRequest
	diversity    []*model.DiversityOptions
	imageQueries []model.SearchRequest
	suggested    []string
	transcribed  [][]byte
	logged       []model.Interaction
	loggedCh     chan model.Interaction
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) Search(ctx context.Context, req model.SearchRequest, diversity *model.DiversityOptions) (*model.SearchResponse, error) {
	f.mu.Lock()
	f.searches = append(f.searches, req)
	f.diversity = append(f.diversity, diversity)
	fn := f.searchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &model.SearchResponse{Products: []model.ProductSearchResult{}}, nil
}

func (f *fakeBackend) ImageSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	f.mu.Lock()
	f.imageQueries = append(f.imageQueries, req)
	fn := f.imageSearchFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &model.SearchResponse{Products: []model.ProductSearchResult{}}, nil
}

func (f *fakeBackend) Suggestions(ctx context.Context, partial string) ([]string, error) {
	f.mu.Lock()
	f.suggested = append(f.suggested, partial)
	fn := f.suggestFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, partial)
	}
	return []string{partial + " pro"}, nil
}

func (f *fakeBackend) Transcribe(ctx context.Context, audio []byte, _ string) (*model.Transcription, error) {
	f.mu.Lock()
	f.transcribed = append(f.transcribed, append([]byte(nil), audio...))
	fn := f.transcribeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, audio)
	}
	return &model.Transcription{Transcript: "wireless earbuds"}, nil
}

func (f *fakeBackend) Recommendations(ctx context.Context, userID string) (*model.RecommendationResponse, error) {
	if f.recommendFn != nil {
		return f.recommendFn(ctx, userID)
	}
	return &model.RecommendationResponse{Recommendations: []model.ProductSearchResult{}}, nil
}

func (f *fakeBackend) Trending(ctx context.Context, limit int) ([]model.ProductSearchResult, error) {
	if f.trendingFn != nil {
		return f.trendingFn(ctx, limit)
	}
	return []model.ProductSearchResult{}, nil
}

func (f *fakeBackend) Product(_ context.Context, id string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, apperr.NotFound("product not found")
	}
	return &p, nil
}

func (f *fakeBackend) RelatedProducts(ctx context.Context, id string) ([]model.ProductSearchResult, error) {
	if f.relatedFn != nil {
		return f.relatedFn(ctx, id)
	}
	return []model.ProductSearchResult{}, nil
}

func (f *fakeBackend) Profile(_ context.Context, userID string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile == nil {
		return &model.UserProfile{UserID: userID}, nil
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeBackend) UpdateProfile(_ context.Context, profile model.UserProfile) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = &profile
	p := profile
	return &p, nil
}

func (f *fakeBackend) LogInteraction(ctx context.Context, interaction model.Interaction) error {
	f.mu.Lock()
	f.logged = append(f.logged, interaction)
	fn := f.logFn
	ch := f.loggedCh
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(ctx, interaction)
	}
	if ch != nil {
		ch <- interaction
	}
	return err
}

func (f *fakeBackend) ChatHistory(_ context.Context, _ string) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ChatMessage(nil), f.history...), nil
}

func (f *fakeBackend) ChatStream(_ context.Context, _ string, _ string, callback StreamCallback) error {
	for _, chunk := range f.chatChunks {
		if err := callback(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeBackend) suggestedQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.suggested...)
}
