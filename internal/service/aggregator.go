package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// ViewError is an error converted into displayable state
type ViewError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewViewError converts any error into view state
func NewViewError(err error) *ViewError {
	if err == nil {
		return nil
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		return &ViewError{Kind: e.Kind.String(), Message: e.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ViewError{Kind: apperr.KindUnavailable.String(), Message: "request timed out"}
	}
	return &ViewError{Kind: apperr.KindInternal.String(), Message: "something went wrong"}
}

// SearchView is what the search surface currently displays
type SearchView struct {
	Seq              uint64                      `json:"seq"`
	Modality         model.Modality              `json:"modality,omitempty"`
	Query            string                      `json:"query,omitempty"`
	InterpretedQuery string                      `json:"interpreted_query,omitempty"`
	Loading          bool                        `json:"loading"`
	Products         []model.ProductSearchResult `json:"products"`
	TotalResults     int                         `json:"total_results"`
	Error            *ViewError                  `json:"error,omitempty"`
}

// ResultAggregator owns one search surface. Only the latest dispatch may
// update the view; completions of superseded dispatches are discarded.
type ResultAggregator struct {
	mu sync.Mutex

	backend   SearchBackend
	pageSize  int
	diversity *model.DiversityOptions
	log       *slog.Logger

	seq  uint64
	view SearchView

	// OnChange is called with every view the surface transitions to
	OnChange func(SearchView)
}

// NewResultAggregator creates an empty search surface
func NewResultAggregator(backend SearchBackend, pageSize int, diversity *model.DiversityOptions, log *slog.Logger) *ResultAggregator {
	if pageSize <= 0 {
		pageSize = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &ResultAggregator{
		backend:   backend,
		pageSize:  pageSize,
		diversity: diversity,
		log:       log,
		view:      SearchView{Products: []model.ProductSearchResult{}},
	}
}

// Run dispatches input with filters and returns the view once the request
// settles. A superseded run returns the newer view unchanged.
func (a *ResultAggregator) Run(ctx context.Context, input ActiveInput, filters model.FilterSet) SearchView {
	a.mu.Lock()
	a.seq++
	req := model.SearchRequest{
		Seq:      a.seq,
		Filters:  filters.Clone(),
		Page:     1,
		PageSize: a.pageSize,
		Modality: input.Modality(),
	}

	var prefetched []model.ProductSearchResult
	switch in := input.(type) {
	case TextInput:
		req.Query = in.Query
	case VoiceInput:
		req.Query = in.Transcript
		prefetched = in.Results
	case ImageInput:
		img := in.Image
		req.Image = &img
	}

	a.view = SearchView{
		Seq:      req.Seq,
		Modality: req.Modality,
		Query:    req.Query,
		Loading:  true,
		Products: []model.ProductSearchResult{},
	}
	loading := a.view
	a.mu.Unlock()

	if prefetched != nil {
		return a.complete(req, &model.SearchResponse{Products: prefetched, TotalResults: len(prefetched)}, nil)
	}

	a.notify(loading)

	var (
		resp *model.SearchResponse
		err  error
	)
	if req.Modality == model.ModalityImage {
		resp, err = a.backend.ImageSearch(ctx, req)
	} else {
		resp, err = a.backend.Search(ctx, req, a.diversity)
	}
	return a.complete(req, resp, err)
}

func (a *ResultAggregator) complete(req model.SearchRequest, resp *model.SearchResponse, err error) SearchView {
	a.mu.Lock()
	if req.Seq != a.seq {
		current := a.view
		a.mu.Unlock()
		a.log.Debug("discarding stale search response", "seq", req.Seq, "latest", current.Seq)
		return current
	}

	view := SearchView{
		Seq:      req.Seq,
		Modality: req.Modality,
		Query:    req.Query,
		Products: []model.ProductSearchResult{},
	}
	if err != nil {
		a.log.Warn("search failed", "modality", req.Modality, "error", err)
		view.Error = NewViewError(err)
	} else if resp != nil {
		if resp.Products != nil {
			view.Products = resp.Products
		}
		view.TotalResults = resp.TotalResults
		view.InterpretedQuery = resp.InterpretedQuery
	}
	a.view = view
	a.mu.Unlock()

	a.notify(view)
	return view
}

func (a *ResultAggregator) notify(view SearchView) {
	a.mu.Lock()
	hook := a.OnChange
	a.mu.Unlock()
	if hook != nil {
		hook(view)
	}
}

// Snapshot returns the current view
func (a *ResultAggregator) Snapshot() SearchView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}
