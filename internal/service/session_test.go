package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/repository"
)

func newTestManager(t *testing.T, backend *fakeBackend, clock *manualClock, maxSessions int) *SessionManager {
	t.Helper()
	m, err := NewSessionManager(maxSessions, SessionDeps{
		Backend:      backend,
		Storage:      repository.NewMemoryStorage(),
		Images:       testImageValidator(),
		Interactions: NewInteractionLogger(backend, time.Second, nil),
		Clock:        clock,
		Settings: SessionSettings{
			PageSize:         20,
			Debounce:         300 * time.Millisecond,
			TrendingLimit:    10,
			VoiceMaxDuration: time.Minute,
			VoiceMaxBytes:    1 << 20,
		},
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func boolPtr(v bool) *bool { return &v }

// nextEvent waits for the next event of type want, skipping others
func nextEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-events:
			require.True(t, ok, "event stream closed")
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
		}
	}
}

func TestSessionManager_Lifecycle(t *testing.T) {
	m := newTestManager(t, &fakeBackend{}, newManualClock(), 10)

	s := m.Create("browser-1", "u-1")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "browser-1", s.Store.Namespace())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	events, cancel := s.Events.Subscribe()
	defer cancel()

	assert.True(t, m.Delete(s.ID))
	_, err = m.Get(s.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, open := <-events
	assert.False(t, open, "deleting a session ends its event stream")
}

func TestSessionManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager(t, &fakeBackend{}, newManualClock(), 2)

	first := m.Create("b", "")
	events, cancel := first.Events.Subscribe()
	defer cancel()

	second := m.Create("b", "")
	third := m.Create("b", "")

	assert.Equal(t, 2, m.Len())
	_, err := m.Get(first.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = m.Get(second.ID)
	assert.NoError(t, err)
	_, err = m.Get(third.ID)
	assert.NoError(t, err)

	_, open := <-events
	assert.False(t, open)
}

func TestSessionManager_GeneratesBrowserID(t *testing.T) {
	m := newTestManager(t, &fakeBackend{}, newManualClock(), 10)
	s := m.Create("", "")
	assert.NotEmpty(t, s.BrowserID)
	assert.NotEqual(t, s.ID, s.BrowserID)
}

func TestSession_FilterChangeRerunsImageSearch(t *testing.T) {
	var recommendations atomic.Int32
	backend := &fakeBackend{
		imageSearchFn: func(_ context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
			return &model.SearchResponse{Products: sampleProducts("i1"), TotalResults: 1}, nil
		},
		recommendFn: func(context.Context, string) (*model.RecommendationResponse, error) {
			recommendations.Add(1)
			return &model.RecommendationResponse{Recommendations: sampleProducts("r1")}, nil
		},
	}
	m := newTestManager(t, backend, newManualClock(), 10)
	s := m.Create("b", "u-1")
	ctx := context.Background()

	s.LoadRecommendations(ctx)
	require.EqualValues(t, 1, recommendations.Load())

	_, err := s.Unifier.SelectImage(ImageUpload{Filename: "lamp.png", ContentType: "image/png", Data: pngHeader})
	require.NoError(t, err)
	require.NoError(t, s.Unifier.ConfirmImage(ctx))
	require.Len(t, backend.imageQueries, 1)

	require.NoError(t, s.Filters.Toggle(FieldCategory, "Lighting"))

	require.Len(t, backend.imageQueries, 2)
	assert.Equal(t, []string{"Lighting"}, backend.imageQueries[1].Filters.Categories)
	assert.Empty(t, backend.searches, "image search is not turned into a text search")
	assert.EqualValues(t, 1, recommendations.Load(), "filters do not reload recommendations")
	assert.Equal(t, "r1", s.Feed.Snapshot().Products[0].ID)
}

func TestSession_PriceRangeRerunsAfterDebounce(t *testing.T) {
	backend := &fakeBackend{}
	clock := newManualClock()
	m := newTestManager(t, backend, clock, 10)
	s := m.Create("b", "")
	ctx := context.Background()

	require.NoError(t, s.Unifier.SubmitText(ctx, "standing desk"))
	require.Equal(t, 1, backend.searchCount())

	require.NoError(t, s.Filters.SetPriceRange(float64Ptr(100), float64Ptr(300)))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, s.Filters.SetPriceRange(float64Ptr(150), float64Ptr(300)))
	assert.Equal(t, 1, backend.searchCount(), "price edits wait for the quiet period")

	clock.Advance(300 * time.Millisecond)

	require.Equal(t, 2, backend.searchCount())
	backend.mu.Lock()
	last := backend.searches[1]
	backend.mu.Unlock()
	assert.Equal(t, "standing desk", last.Query)
	require.NotNil(t, last.Filters.PriceRange)
	assert.Equal(t, 150.0, *last.Filters.PriceRange.Min)
}

func TestSession_NoRerunBeforeFirstSearch(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestManager(t, backend, newManualClock(), 10)
	s := m.Create("b", "")

	require.NoError(t, s.Filters.Toggle(FieldBrand, "Acme"))
	assert.Zero(t, backend.searchCount())
}

func TestSession_VoiceRerunUsesTranscript(t *testing.T) {
	backend := &fakeBackend{
		transcribeFn: func(context.Context, []byte) (*model.Transcription, error) {
			return &model.Transcription{Transcript: "red sneakers", Products: sampleProducts("v1", "v2")}, nil
		},
	}
	m := newTestManager(t, backend, newManualClock(), 10)
	s := m.Create("b", "")
	ctx := context.Background()

	require.NoError(t, s.Voice.Start(CaptureRequest{ContentType: "audio/webm"}))
	require.NoError(t, s.Voice.Write([]byte("audio")))
	require.NoError(t, s.Voice.Stop(ctx))

	view := s.Results.Snapshot()
	assert.Equal(t, model.ModalityVoice, view.Modality)
	assert.Len(t, view.Products, 2)
	assert.Zero(t, backend.searchCount(), "first voice run shows the transcription products")

	require.NoError(t, s.Filters.SetInStock(boolPtr(true)))

	require.Equal(t, 1, backend.searchCount())
	backend.mu.Lock()
	req := backend.searches[0]
	backend.mu.Unlock()
	assert.Equal(t, "red sneakers", req.Query)
	assert.Equal(t, model.ModalityVoice, req.Modality)
}

func TestSession_VoiceWithoutTranscriptIsNotRerun(t *testing.T) {
	backend := &fakeBackend{
		transcribeFn: func(context.Context, []byte) (*model.Transcription, error) {
			return &model.Transcription{Transcript: "  ", Products: sampleProducts("v1")}, nil
		},
	}
	m := newTestManager(t, backend, newManualClock(), 10)
	s := m.Create("b", "")
	ctx := context.Background()

	require.NoError(t, s.Voice.Start(CaptureRequest{ContentType: "audio/webm"}))
	require.NoError(t, s.Voice.Write([]byte("audio")))
	require.NoError(t, s.Voice.Stop(ctx))
	require.Len(t, s.Results.Snapshot().Products, 1)

	require.NoError(t, s.Filters.SetInStock(boolPtr(true)))

	assert.Zero(t, backend.searchCount(), "empty transcript is never sent as a query")
	assert.Len(t, s.Results.Snapshot().Products, 1)
}

func TestSessionManager_SessionsShareStorageSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	storage := repository.NewRedisStorageFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", nil)
	t.Cleanup(func() { _ = storage.Close() })

	backend := &fakeBackend{}
	m, err := NewSessionManager(100, SessionDeps{
		Backend:      backend,
		Storage:      storage,
		Images:       testImageValidator(),
		Interactions: NewInteractionLogger(backend, time.Second, nil),
		Clock:        newManualClock(),
		Settings:     SessionSettings{PageSize: 20, Debounce: time.Millisecond, TrendingLimit: 10},
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	tabs := make([]*Session, 50)
	for i := range tabs {
		tabs[i] = m.Create("browser-1", "")
	}
	assert.Equal(t, 1, mr.PubSubNumPat())
	assert.LessOrEqual(t, mr.CurrentConnectionCount(), 2)

	events, cancel := tabs[49].Events.Subscribe()
	defer cancel()
	_, err = tabs[0].AddToCart(context.Background(), "p1")
	require.NoError(t, err)

	e := nextEvent(t, events, EventStoreChanged)
	assert.Equal(t, tabs[0].ID, e.Data.(model.StoreChange).Origin)
}

func TestSession_StoreEvents(t *testing.T) {
	m := newTestManager(t, &fakeBackend{}, newManualClock(), 10)
	tabA := m.Create("browser-1", "")
	tabB := m.Create("browser-1", "")
	other := m.Create("browser-2", "")

	eventsA, cancelA := tabA.Events.Subscribe()
	defer cancelA()
	eventsB, cancelB := tabB.Events.Subscribe()
	defer cancelB()
	eventsOther, cancelOther := other.Events.Subscribe()
	defer cancelOther()

	_, err := tabA.AddToWishlist(context.Background(), "p1")
	require.NoError(t, err)

	local := nextEvent(t, eventsA, EventStoreChanged)
	assert.Equal(t, KeyWishlist, local.Data.(model.StoreChange).Key)

	remote := nextEvent(t, eventsB, EventStoreChanged)
	assert.Equal(t, tabA.ID, remote.Data.(model.StoreChange).Origin)

	wishlist, err := tabB.Store.Wishlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, wishlist)

	select {
	case e := <-eventsOther:
		t.Fatalf("other browser received %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_ProfileFallsBackToCache(t *testing.T) {
	m := newTestManager(t, &fakeBackend{}, newManualClock(), 10)
	s := m.Create("b", "")
	ctx := context.Background()

	_, err := s.Profile(ctx)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	budget := 800.0
	_, err = s.UpdateProfile(ctx, model.UserProfile{FinancialProfile: model.FinancialProfile{MonthlyBudget: &budget}})
	require.NoError(t, err)

	profile, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 800.0, *profile.FinancialProfile.MonthlyBudget)
	assert.Equal(t, 800.0, *s.Store.MonthlyBudget(ctx))
}

func TestSession_AnnotatedResults(t *testing.T) {
	backend := &fakeBackend{
		searchFn: func(context.Context, model.SearchRequest) (*model.SearchResponse, error) {
			return &model.SearchResponse{Products: sampleProducts("a", "b"), TotalResults: 2}, nil
		},
	}
	m := newTestManager(t, backend, newManualClock(), 10)
	s := m.Create("b", "u-1")
	ctx := context.Background()

	require.NoError(t, s.Store.CacheProfile(ctx, model.UserProfile{FinancialProfile: model.FinancialProfile{MonthlyBudget: float64Ptr(1000)}}))
	require.NoError(t, s.Unifier.SubmitText(ctx, "chairs"))

	annotated, view := s.Annotated(ctx)
	require.Len(t, annotated, 2)
	assert.Equal(t, 2, view.TotalResults)
	assert.NotEqual(t, model.TierNoBudget, annotated[0].Affordability.Tier)
}
