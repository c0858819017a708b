package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// Persisted keys of a browser namespace
const (
	KeyCart           = "cart"
	KeyWishlist       = "wishlist"
	KeyRecentlyViewed = "recently_viewed"
	KeyTheme          = "theme"
	KeyLoggedIn       = "logged_in"
	KeyProfile        = "profile"
)

const (
	recentlyViewedLimit  = 10
	recentlyViewedMaxAge = 30 * 24 * time.Hour
	hydrateConcurrency   = 4
)

// InteractionStore is the cart, wishlist, recently-viewed and preference state
// of one browser, as seen from one tab. Writes are read-modify-write without
// transactions; concurrent tabs are last-write-wins.
type InteractionStore struct {
	storage   repository.Storage
	namespace string
	origin    string
	clock     Clock
	log       *slog.Logger

	mu       sync.Mutex
	onChange func(model.StoreChange)
}

// NewInteractionStore scopes storage to a browser namespace, writing as origin
func NewInteractionStore(storage repository.Storage, namespace, origin string, clock Clock, log *slog.Logger) *InteractionStore {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &InteractionStore{storage: storage, namespace: namespace, origin: origin, clock: clock, log: log}
}

// Namespace returns the browser namespace
func (s *InteractionStore) Namespace() string { return s.namespace }

// OnChange registers the same-tab notification hook. Storage change feeds do
// not report a writer's own changes back to it, so this is how the writing tab
// learns about them.
func (s *InteractionStore) OnChange(fn func(model.StoreChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Watch streams changes written by other tabs until ctx is done
func (s *InteractionStore) Watch(ctx context.Context) (<-chan model.StoreChange, error) {
	changes, err := s.storage.Watch(ctx, s.namespace)
	if err != nil {
		return nil, apperr.Unavailable("failed to watch interaction store", err)
	}

	out := make(chan model.StoreChange, 16)
	go func() {
		defer close(out)
		for change := range changes {
			if change.Origin == s.origin {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Cart returns the product ids in the cart
func (s *InteractionStore) Cart(ctx context.Context) ([]string, error) {
	return s.loadIDs(ctx, KeyCart)
}

// AddToCart appends id unless it is already present
func (s *InteractionStore) AddToCart(ctx context.Context, id string) (bool, error) {
	return s.addID(ctx, KeyCart, id)
}

// RemoveFromCart drops id from the cart
func (s *InteractionStore) RemoveFromCart(ctx context.Context, id string) (bool, error) {
	return s.removeIDs(ctx, KeyCart, id)
}

// Wishlist returns the product ids in the wishlist
func (s *InteractionStore) Wishlist(ctx context.Context) ([]string, error) {
	return s.loadIDs(ctx, KeyWishlist)
}

// AddToWishlist appends id unless it is already present
func (s *InteractionStore) AddToWishlist(ctx context.Context, id string) (bool, error) {
	return s.addID(ctx, KeyWishlist, id)
}

// RemoveFromWishlist drops id from the wishlist
func (s *InteractionStore) RemoveFromWishlist(ctx context.Context, id string) (bool, error) {
	return s.removeIDs(ctx, KeyWishlist, id)
}

// HydrateWishlist resolves wishlist products, pruning the ones that no longer exist
func (s *InteractionStore) HydrateWishlist(ctx context.Context, catalog CatalogBackend) ([]model.WishlistEntry, error) {
	ids, resolved, err := s.hydrate(ctx, KeyWishlist, catalog)
	if err != nil {
		return nil, err
	}
	entries := make([]model.WishlistEntry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, model.WishlistEntry{ProductID: id, Product: resolved[i]})
	}
	return entries, nil
}

// HydrateCart resolves cart products, pruning the ones that no longer exist
func (s *InteractionStore) HydrateCart(ctx context.Context, catalog CatalogBackend) ([]model.CartEntry, error) {
	ids, resolved, err := s.hydrate(ctx, KeyCart, catalog)
	if err != nil {
		return nil, err
	}
	entries := make([]model.CartEntry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, model.CartEntry{ProductID: id, Product: resolved[i]})
	}
	return entries, nil
}

// hydrate looks every id up concurrently. Not-found ids are pruned from the
// list; other lookup failures keep the id with no product attached.
func (s *InteractionStore) hydrate(ctx context.Context, key string, catalog CatalogBackend) ([]string, []*model.ProductSearchResult, error) {
	ids, err := s.loadIDs(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	resolved := make([]*model.ProductSearchResult, len(ids))
	gone := make([]bool, len(ids))

	var g errgroup.Group
	g.SetLimit(hydrateConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := catalog.Product(ctx, id)
			switch {
			case apperr.Is(err, apperr.KindNotFound):
				gone[i] = true
			case err != nil:
				s.log.Warn("product lookup failed", "product_id", id, "error", err)
			default:
				resolved[i] = &p.ProductSearchResult
			}
			return nil
		})
	}
	_ = g.Wait()

	var (
		keptIDs = make([]string, 0, len(ids))
		kept    = make([]*model.ProductSearchResult, 0, len(ids))
		stale   []string
	)
	for i, id := range ids {
		if gone[i] {
			stale = append(stale, id)
			continue
		}
		keptIDs = append(keptIDs, id)
		kept = append(kept, resolved[i])
	}

	if len(stale) > 0 {
		s.log.Info("pruning unavailable products", "key", key, "product_ids", stale)
		if _, err := s.removeIDs(ctx, key, stale...); err != nil {
			return nil, nil, err
		}
	}
	return keptIDs, kept, nil
}

// RecentlyViewed returns the list, dropping and persisting away expired entries
func (s *InteractionStore) RecentlyViewed(ctx context.Context) ([]model.RecentlyViewedItem, error) {
	items, pruned, err := s.loadRecent(ctx)
	if err != nil {
		return nil, err
	}
	if pruned {
		if err := s.save(ctx, KeyRecentlyViewed, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// RecordView moves the product to the front of recently viewed with a fresh timestamp
func (s *InteractionStore) RecordView(ctx context.Context, item model.RecentlyViewedItem) ([]model.RecentlyViewedItem, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return nil, apperr.Validation("product id is required")
	}

	items, _, err := s.loadRecent(ctx)
	if err != nil {
		return nil, err
	}

	item.ViewedAt = s.clock.Now().UTC()
	out := make([]model.RecentlyViewedItem, 0, recentlyViewedLimit)
	out = append(out, item)
	for _, existing := range items {
		if existing.ProductID == item.ProductID {
			continue
		}
		if len(out) == recentlyViewedLimit {
			break
		}
		out = append(out, existing)
	}

	if err := s.save(ctx, KeyRecentlyViewed, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InteractionStore) loadRecent(ctx context.Context) ([]model.RecentlyViewedItem, bool, error) {
	var items []model.RecentlyViewedItem
	if err := s.load(ctx, KeyRecentlyViewed, &items); err != nil {
		return nil, false, err
	}

	cutoff := s.clock.Now().Add(-recentlyViewedMaxAge)
	fresh := make([]model.RecentlyViewedItem, 0, len(items))
	for _, item := range items {
		if item.ViewedAt.Before(cutoff) {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, len(fresh) != len(items), nil
}

// Theme returns the stored theme preference, empty when unset
func (s *InteractionStore) Theme(ctx context.Context) (string, error) {
	var theme string
	err := s.load(ctx, KeyTheme, &theme)
	return theme, err
}

// SetTheme stores the theme preference
func (s *InteractionStore) SetTheme(ctx context.Context, theme string) error {
	switch theme {
	case "light", "dark", "system":
	default:
		return apperr.Validation("theme must be light, dark or system")
	}
	return s.save(ctx, KeyTheme, theme)
}

// LoggedIn returns the stored logged-in flag
func (s *InteractionStore) LoggedIn(ctx context.Context) (bool, error) {
	var loggedIn bool
	err := s.load(ctx, KeyLoggedIn, &loggedIn)
	return loggedIn, err
}

// SetLoggedIn stores the logged-in flag
func (s *InteractionStore) SetLoggedIn(ctx context.Context, loggedIn bool) error {
	return s.save(ctx, KeyLoggedIn, loggedIn)
}

// CachedProfile returns the locally cached profile, nil when none is cached
func (s *InteractionStore) CachedProfile(ctx context.Context) (*model.UserProfile, error) {
	var profile *model.UserProfile
	err := s.load(ctx, KeyProfile, &profile)
	return profile, err
}

// CacheProfile stores the profile fields locally
func (s *InteractionStore) CacheProfile(ctx context.Context, profile model.UserProfile) error {
	return s.save(ctx, KeyProfile, profile)
}

// MonthlyBudget returns the cached budget, nil when unknown
func (s *InteractionStore) MonthlyBudget(ctx context.Context) *float64 {
	profile, err := s.CachedProfile(ctx)
	if err != nil {
		s.log.Warn("failed to read cached profile", "error", err)
		return nil
	}
	if profile == nil {
		return nil
	}
	return profile.FinancialProfile.MonthlyBudget
}

func (s *InteractionStore) loadIDs(ctx context.Context, key string) ([]string, error) {
	var ids []string
	if err := s.load(ctx, key, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *InteractionStore) addID(ctx context.Context, key, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, apperr.Validation("product id is required")
	}

	ids, err := s.loadIDs(ctx, key)
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return false, nil
		}
	}
	return true, s.save(ctx, key, append(ids, id))
}

func (s *InteractionStore) removeIDs(ctx context.Context, key string, remove ...string) (bool, error) {
	ids, err := s.loadIDs(ctx, key)
	if err != nil {
		return false, err
	}

	drop := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ids) {
		return false, nil
	}
	return true, s.save(ctx, key, kept)
}

func (s *InteractionStore) load(ctx context.Context, key string, v any) error {
	raw, err := s.storage.Get(ctx, s.namespace, key)
	if err != nil {
		return apperr.Unavailable("failed to read "+key, err)
	}
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		// a corrupt value reads as absent, like a browser store cleared by hand
		s.log.Warn("discarding unreadable stored value", "key", key, "error", err)
		return nil
	}
	return nil
}

func (s *InteractionStore) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperr.Internal("failed to encode "+key, err)
	}
	if err := s.storage.Set(ctx, s.namespace, key, raw, s.origin); err != nil {
		return apperr.Unavailable("failed to write "+key, err)
	}

	s.mu.Lock()
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook(model.StoreChange{Namespace: s.namespace, Key: key, Origin: s.origin})
	}
	return nil
}
