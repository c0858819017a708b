package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// SessionSettings are the per-session tunables read from configuration
type SessionSettings struct {
	PageSize         int
	Debounce         time.Duration
	TrendingLimit    int
	VoiceMaxDuration time.Duration
	VoiceMaxBytes    int
	Diversity        *model.DiversityOptions
}

// SessionDeps are shared by every session of the process
type SessionDeps struct {
	Backend      Backend
	Storage      repository.Storage
	Suggestions  *SuggestionCache
	Images       *ImageValidator
	Interactions *InteractionLogger
	Products     *ProductService
	Device       AudioDevice
	Clock        Clock
	Settings     SessionSettings
	Logger       *slog.Logger
}

// SessionInfo identifies a session to its browser tab
type SessionInfo struct {
	ID        string    `json:"session_id"`
	BrowserID string    `json:"browser_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the orchestration state of one browser tab
type Session struct {
	SessionInfo

	Unifier  *QueryUnifier
	Filters  *FilterState
	Results  *ResultAggregator
	Feed     *RecommendationFeed
	Voice    *VoiceRecorder
	Store    *InteractionStore
	Products *ProductService
	Chat     *ChatService
	Events   *EventHub

	backend      Backend
	interactions *InteractionLogger
	ctx          context.Context
	cancel       context.CancelFunc
	log          *slog.Logger
}

func newSession(info SessionInfo, deps SessionDeps) *Session {
	log := deps.Logger.With("session_id", info.ID, "browser_id", info.BrowserID)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		SessionInfo:  info,
		Events:       NewEventHub(log),
		Filters:      NewFilterState(deps.Clock, deps.Settings.Debounce),
		Results:      NewResultAggregator(deps.Backend, deps.Settings.PageSize, deps.Settings.Diversity, log),
		Feed:         NewRecommendationFeed(deps.Backend, deps.Settings.TrendingLimit, log),
		Store:        NewInteractionStore(deps.Storage, info.BrowserID, info.ID, deps.Clock, log),
		Products:     deps.Products,
		Chat:         NewChatService(deps.Backend, info.ID, deps.Clock, log),
		backend:      deps.Backend,
		interactions: deps.Interactions,
		ctx:          ctx,
		cancel:       cancel,
		log:          log,
	}
	if s.Products == nil {
		s.Products = NewProductService(deps.Backend, deps.Interactions, log)
	}

	s.Unifier = NewQueryUnifier(UnifierOptions{
		Suggester:  deps.Backend,
		Cache:      deps.Suggestions,
		Images:     deps.Images,
		Dispatcher: s,
		Clock:      deps.Clock,
		Debounce:   deps.Settings.Debounce,
		Logger:     log,
	})

	device := deps.Device
	if device == nil {
		device = BufferDevice{MaxBytes: deps.Settings.VoiceMaxBytes}
	}
	s.Voice = NewVoiceRecorder(VoiceOptions{
		Device:      device,
		Transcriber: deps.Backend,
		Submitter:   s.Unifier,
		Clock:       deps.Clock,
		MaxDuration: deps.Settings.VoiceMaxDuration,
		Logger:      log,
	})
	s.Voice.Background = ctx

	s.wire()
	return s
}

// wire connects component notifications to the session's event stream
func (s *Session) wire() {
	s.Unifier.OnSuggestions = func(state SuggestionState) {
		s.Events.Publish(Event{Type: EventSuggestions, Data: state})
	}
	s.Results.OnChange = func(view SearchView) {
		s.Events.Publish(Event{Type: EventResults, Data: view})
	}
	s.Feed.OnChange = func(view RecommendationView) {
		s.Events.Publish(Event{Type: EventRecommendations, Data: view})
	}
	s.Filters.OnChange = func(filters model.FilterSet) {
		s.Events.Publish(Event{Type: EventFilters, Data: filters})
		s.rerun()
	}
	s.Voice.OnAutoStop = func(err error) {
		s.Events.Publish(Event{Type: EventVoice, Data: s.Voice.Status()})
	}
	s.Store.OnChange(func(change model.StoreChange) {
		s.Events.Publish(Event{Type: EventStoreChanged, Data: change})
	})

	changes, err := s.Store.Watch(s.ctx)
	if err != nil {
		s.log.Warn("cross-tab notifications disabled", "error", err)
		return
	}
	go func() {
		for change := range changes {
			s.Events.Publish(Event{Type: EventStoreChanged, Data: change})
		}
	}()
}

// Dispatch runs a search for input with the filters in effect
func (s *Session) Dispatch(ctx context.Context, input ActiveInput) {
	view := s.Results.Run(ctx, input, s.Filters.Current())

	if input.Modality() != model.ModalityImage && view.Error == nil {
		s.interactions.Log(model.Interaction{
			UserID:          s.UserID,
			InteractionType: model.InteractionSearch,
			Metadata: map[string]any{
				"query":    view.Query,
				"modality": string(input.Modality()),
				"results":  view.TotalResults,
			},
		})
	}
}

// rerun repeats the active search after a filter commit. A voice search is
// re-run against the backend rather than replaying its prefetched products;
// one without a transcript has nothing to re-run.
func (s *Session) rerun() {
	active := s.Unifier.Active()
	if active == nil {
		return
	}
	if v, ok := active.(VoiceInput); ok {
		if strings.TrimSpace(v.Transcript) == "" {
			return
		}
		v.Results = nil
		active = v
	}
	s.Results.Run(s.ctx, active, s.Filters.Current())
}

// LoadRecommendations refreshes the recommendation feed for the session user
func (s *Session) LoadRecommendations(ctx context.Context) RecommendationView {
	return s.Feed.Load(ctx, s.UserID)
}

// Annotated returns the current results with affordability verdicts
func (s *Session) Annotated(ctx context.Context) ([]model.AnnotatedProduct, SearchView) {
	view := s.Results.Snapshot()
	return Annotate(view.Products, s.Store.MonthlyBudget(ctx)), view
}

// Profile fetches the user's profile and caches it locally. Without a user
// id, or when the backend is unavailable, the cached copy is returned.
func (s *Session) Profile(ctx context.Context) (*model.UserProfile, error) {
	if s.UserID == "" {
		return s.cachedProfile(ctx)
	}

	profile, err := s.backend.Profile(ctx, s.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindUnavailable) {
			if cached, cerr := s.cachedProfile(ctx); cerr == nil {
				s.log.Warn("serving cached profile", "error", err)
				return cached, nil
			}
		}
		return nil, err
	}
	if err := s.Store.CacheProfile(ctx, *profile); err != nil {
		s.log.Warn("failed to cache profile", "error", err)
	}
	return profile, nil
}

// UpdateProfile writes the profile to the backend and the local cache
func (s *Session) UpdateProfile(ctx context.Context, profile model.UserProfile) (*model.UserProfile, error) {
	if s.UserID == "" {
		if err := s.Store.CacheProfile(ctx, profile); err != nil {
			return nil, err
		}
		return &profile, nil
	}

	profile.UserID = s.UserID
	updated, err := s.backend.UpdateProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	if err := s.Store.CacheProfile(ctx, *updated); err != nil {
		s.log.Warn("failed to cache profile", "error", err)
	}
	return updated, nil
}

func (s *Session) cachedProfile(ctx context.Context) (*model.UserProfile, error) {
	cached, err := s.Store.CachedProfile(ctx)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, apperr.NotFound("no profile is stored")
	}
	return cached, nil
}

// AddToCart stores id in the cart and logs the interaction when it was new
func (s *Session) AddToCart(ctx context.Context, id string) (bool, error) {
	added, err := s.Store.AddToCart(ctx, id)
	if err == nil && added {
		s.interactions.Log(model.Interaction{UserID: s.UserID, ProductID: id, InteractionType: model.InteractionAddToCart})
	}
	return added, err
}

// AddToWishlist stores id in the wishlist and logs the interaction when it was new
func (s *Session) AddToWishlist(ctx context.Context, id string) (bool, error) {
	added, err := s.Store.AddToWishlist(ctx, id)
	if err == nil && added {
		s.interactions.Log(model.Interaction{UserID: s.UserID, ProductID: id, InteractionType: model.InteractionAddToWishlist})
	}
	return added, err
}

// Cart returns the cart with product details
func (s *Session) Cart(ctx context.Context) ([]model.CartEntry, error) {
	return s.Store.HydrateCart(ctx, s.backend)
}

// Wishlist returns the wishlist with product details. Ids the catalog no
// longer knows are pruned.
func (s *Session) Wishlist(ctx context.Context) ([]model.WishlistEntry, error) {
	return s.Store.HydrateWishlist(ctx, s.backend)
}

// Close stops timers, releases the microphone and ends event streams
func (s *Session) Close() {
	s.cancel()
	s.Voice.Cancel()
	s.Unifier.Close()
	s.Filters.Close()
	s.Events.Close()
	s.log.Debug("session closed")
}

// SessionManager holds the live sessions. The least recently used session is
// closed when the limit is reached.
type SessionManager struct {
	sessions *lru.Cache[string, *Session]
	deps     SessionDeps
	log      *slog.Logger
}

// NewSessionManager creates a registry of at most maxSessions sessions
func NewSessionManager(maxSessions int, deps SessionDeps) (*SessionManager, error) {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Storage == nil {
		deps.Storage = repository.NewMemoryStorage()
	}

	m := &SessionManager{deps: deps, log: deps.Logger}
	cache, err := lru.NewWithEvict[string, *Session](maxSessions, func(id string, s *Session) {
		s.Close()
	})
	if err != nil {
		return nil, apperr.Internal("failed to create session registry", err)
	}
	m.sessions = cache
	return m, nil
}

// Create opens a session for a browser tab. A missing browser id starts a new
// browser namespace.
func (m *SessionManager) Create(browserID, userID string) *Session {
	if browserID == "" {
		browserID = uuid.NewString()
	}
	info := SessionInfo{
		ID:        uuid.NewString(),
		BrowserID: browserID,
		UserID:    userID,
		CreatedAt: m.deps.Clock.Now().UTC(),
	}

	s := newSession(info, m.deps)
	if m.sessions.Add(info.ID, s) {
		m.log.Info("session limit reached, closed least recently used session")
	}
	m.log.Info("session created", "session_id", info.ID, "browser_id", browserID)
	return s
}

// Get returns a live session
func (m *SessionManager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, apperr.NotFound("session not found").WithOp("sessions.Get")
	}
	return s, nil
}

// Delete closes and removes a session
func (m *SessionManager) Delete(id string) bool {
	return m.sessions.Remove(id)
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	return m.sessions.Len()
}

// Close closes every session
func (m *SessionManager) Close() {
	m.sessions.Purge()
}
