package service

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// folder is stateless and shared by every caller
var folder = cases.Fold()

// foldKey is the case-insensitive comparison key for filter values and
// suggestion queries
func foldKey(s string) string {
	return folder.String(s)
}

// FilterField names a toggle set
type FilterField string

const (
	FieldCategory FilterField = "category"
	FieldBrand    FilterField = "brand"
)

// FilterUpdate sets several scalar filters with one commit. Clear* wins over the value.
type FilterUpdate struct {
	MinRating      *float64
	ClearMinRating bool
	InStock        *bool
	ClearInStock   bool
	Sort           *model.SortOrder
}

// FilterState is the single source of truth for filters and sort order.
// Every committed change is reported through OnChange.
type FilterState struct {
	mu       sync.Mutex
	filters  model.FilterSet
	pending  *model.PriceRange
	debounce *Debouncer

	// OnChange receives a copy of the filters after each commit
	OnChange func(model.FilterSet)
}

// NewFilterState creates an unconstrained filter set sorted by relevance
func NewFilterState(clock Clock, debounce time.Duration) *FilterState {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &FilterState{
		filters:  model.FilterSet{SortOrder: model.SortRelevance},
		debounce: NewDebouncer(clock, debounce),
	}
}

// Current returns a copy of the committed filters
func (s *FilterState) Current() model.FilterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// PendingPriceRange returns the price range waiting for its debounce, if any
func (s *FilterState) PendingPriceRange() *model.PriceRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	return clonePriceRange(s.pending)
}

// Toggle adds value to the set, or removes it when already present.
// Values compare case-insensitively. An emptied set becomes absent.
func (s *FilterState) Toggle(field FilterField, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apperr.Validation("filter value is empty")
	}

	s.mu.Lock()
	var set *[]string
	switch field {
	case FieldCategory:
		set = &s.filters.Categories
	case FieldBrand:
		set = &s.filters.Brands
	default:
		s.mu.Unlock()
		return apperr.Validation("unknown filter field " + string(field))
	}
	*set = s.toggle(*set, value)
	s.mu.Unlock()

	s.commit()
	return nil
}

// toggle is called with s.mu held
func (s *FilterState) toggle(values []string, value string) []string {
	key := foldKey(value)
	out := make([]string, 0, len(values)+1)
	removed := false
	for _, v := range values {
		if foldKey(v) == key {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SetPriceRange validates the bounds and commits them after the quiet period.
// Both bounds nil clears the range.
func (s *FilterState) SetPriceRange(min, max *float64) error {
	pr := &model.PriceRange{Min: min, Max: max}
	if !pr.Valid() {
		return apperr.Validation("minimum price must not exceed maximum price")
	}
	if (min != nil && *min < 0) || (max != nil && *max < 0) {
		return apperr.Validation("price bounds must not be negative")
	}
	if min == nil && max == nil {
		pr = nil
	}

	s.mu.Lock()
	if pr == nil {
		s.pending = &model.PriceRange{}
	} else {
		s.pending = clonePriceRange(pr)
	}
	s.mu.Unlock()

	s.debounce.Schedule(func() {
		s.mu.Lock()
		if pr == nil {
			s.filters.PriceRange = nil
		} else {
			s.filters.PriceRange = clonePriceRange(pr)
		}
		s.pending = nil
		s.mu.Unlock()
		s.commit()
	})
	return nil
}

// SetMinRating sets or clears the minimum rating
func (s *FilterState) SetMinRating(rating *float64) error {
	return s.Apply(FilterUpdate{MinRating: rating, ClearMinRating: rating == nil})
}

// SetInStock sets or clears the stock constraint
func (s *FilterState) SetInStock(inStock *bool) error {
	return s.Apply(FilterUpdate{InStock: inStock, ClearInStock: inStock == nil})
}

// SetSort changes the sort order
func (s *FilterState) SetSort(order model.SortOrder) error {
	return s.Apply(FilterUpdate{Sort: &order})
}

// Apply validates and commits several scalar filters at once
func (s *FilterState) Apply(u FilterUpdate) error {
	if u.MinRating != nil && (*u.MinRating < 0 || *u.MinRating > 5) {
		return apperr.Validation("minimum rating must be between 0 and 5")
	}
	if u.Sort != nil && !u.Sort.Valid() {
		return apperr.Validation("unknown sort order " + string(*u.Sort))
	}

	s.mu.Lock()
	switch {
	case u.ClearMinRating:
		s.filters.MinRating = nil
	case u.MinRating != nil:
		v := *u.MinRating
		s.filters.MinRating = &v
	}
	switch {
	case u.ClearInStock:
		s.filters.InStock = nil
	case u.InStock != nil:
		v := *u.InStock
		s.filters.InStock = &v
	}
	if u.Sort != nil {
		s.filters.SortOrder = *u.Sort
	}
	s.mu.Unlock()

	s.commit()
	return nil
}

// ClearAll resets every filter to absent and the sort order to relevance
func (s *FilterState) ClearAll() {
	s.debounce.Cancel()

	s.mu.Lock()
	s.filters = model.FilterSet{SortOrder: model.SortRelevance}
	s.pending = nil
	s.mu.Unlock()

	s.commit()
}

// Close drops a pending price commit
func (s *FilterState) Close() {
	s.debounce.Cancel()
}

func (s *FilterState) commit() {
	s.mu.Lock()
	current := s.filters.Clone()
	hook := s.OnChange
	s.mu.Unlock()

	if hook != nil {
		hook(current)
	}
}

func clonePriceRange(pr *model.PriceRange) *model.PriceRange {
	return model.FilterSet{PriceRange: pr}.Clone().PriceRange
}
