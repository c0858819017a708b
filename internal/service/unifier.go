package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

// ActiveInput is the one search input currently in effect.
// It is exactly one of TextInput, VoiceInput or ImageInput.
type ActiveInput interface {
	Modality() model.Modality
	isActiveInput()
}

// TextInput is a submitted typed query
type TextInput struct {
	Query string
}

// VoiceInput is a transcribed recording. Results holds products when the
// backend already searched end-to-end; it is only used for the first run.
type VoiceInput struct {
	Transcript string
	Results    []model.ProductSearchResult
}

// ImageInput is a confirmed image upload
type ImageInput struct {
	Image model.ImageData
}

func (TextInput) Modality() model.Modality  { return model.ModalityText }
func (VoiceInput) Modality() model.Modality { return model.ModalityVoice }
func (ImageInput) Modality() model.Modality { return model.ModalityImage }

func (TextInput) isActiveInput()  {}
func (VoiceInput) isActiveInput() {}
func (ImageInput) isActiveInput() {}

// SearchDispatcher receives every canonical search intent
type SearchDispatcher interface {
	Dispatch(ctx context.Context, input ActiveInput)
}

// DispatchFunc adapts a function into a SearchDispatcher
type DispatchFunc func(ctx context.Context, input ActiveInput)

func (f DispatchFunc) Dispatch(ctx context.Context, input ActiveInput) { f(ctx, input) }

// SuggestionCache is a shared LRU of settled query -> suggestions
type SuggestionCache struct {
	cache *lru.Cache[string, []string]
}

// NewSuggestionCache creates a cache holding up to size queries
func NewSuggestionCache(size int) (*SuggestionCache, error) {
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &SuggestionCache{cache: c}, nil
}

func (c *SuggestionCache) Get(query string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(foldKey(query))
}

func (c *SuggestionCache) Put(query string, suggestions []string) {
	if c == nil {
		return
	}
	c.cache.Add(foldKey(query), suggestions)
}

// SuggestionState is the autosuggest list for a settled query
type SuggestionState struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

// UnifierState is a snapshot of the input box and active search input
type UnifierState struct {
	Live        string           `json:"live"`
	Modality    model.Modality   `json:"modality,omitempty"`
	Query       string           `json:"query,omitempty"`
	Preview     *model.ImageData `json:"preview,omitempty"`
	Suggestions SuggestionState  `json:"suggestions"`
}

// QueryUnifier collapses typed, spoken and uploaded input into one search intent
type QueryUnifier struct {
	mu sync.Mutex

	suggester  Suggester
	cache      *SuggestionCache
	images     *ImageValidator
	dispatcher SearchDispatcher
	debounce   *Debouncer
	log        *slog.Logger

	live    string
	active  ActiveInput
	preview *model.ImageData

	suggestions   SuggestionState
	suggestGen    uint64
	cancelSuggest context.CancelFunc

	// OnSuggestions is called when a settled query's suggestions arrive
	OnSuggestions func(SuggestionState)
}

// UnifierOptions wires a QueryUnifier
type UnifierOptions struct {
	Suggester  Suggester
	Cache      *SuggestionCache
	Images     *ImageValidator
	Dispatcher SearchDispatcher
	Clock      Clock
	Debounce   time.Duration
	Logger     *slog.Logger
}

// NewQueryUnifier creates a unifier with no active input
func NewQueryUnifier(opts UnifierOptions) *QueryUnifier {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QueryUnifier{
		suggester:  opts.Suggester,
		cache:      opts.Cache,
		images:     opts.Images,
		dispatcher: opts.Dispatcher,
		debounce:   NewDebouncer(opts.Clock, opts.Debounce),
		log:        opts.Logger,
	}
}

// Type updates the live query and re-arms the suggestion debounce
func (u *QueryUnifier) Type(text string) {
	u.mu.Lock()
	u.live = text
	settled := strings.TrimSpace(text)
	u.mu.Unlock()

	if settled == "" {
		u.cancelSuggestions()
		u.mu.Lock()
		u.suggestions = SuggestionState{}
		u.mu.Unlock()
		return
	}

	u.debounce.Schedule(func() {
		u.fetchSuggestions(settled)
	})
}

// fetchSuggestions runs once per settled value; answers for older values are dropped
func (u *QueryUnifier) fetchSuggestions(query string) {
	u.mu.Lock()
	if u.cancelSuggest != nil {
		u.cancelSuggest()
	}
	u.suggestGen++
	gen := u.suggestGen
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	u.cancelSuggest = cancel
	u.mu.Unlock()
	defer cancel()

	suggestions, ok := u.cache.Get(query)
	if !ok && u.suggester != nil {
		var err error
		suggestions, err = u.suggester.Suggestions(ctx, query)
		if err != nil {
			u.log.Debug("suggestion fetch failed", "query", query, "error", err)
			suggestions = nil
		} else {
			u.cache.Put(query, suggestions)
		}
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	u.mu.Lock()
	if gen != u.suggestGen {
		u.mu.Unlock()
		return
	}
	u.cancelSuggest = nil
	u.suggestions = SuggestionState{Query: query, Suggestions: suggestions}
	state := u.suggestions
	hook := u.OnSuggestions
	u.mu.Unlock()

	if hook != nil {
		hook(state)
	}
}

// cancelSuggestions drops the pending debounce and any in-flight fetch
func (u *QueryUnifier) cancelSuggestions() {
	u.debounce.Cancel()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.suggestGen++
	if u.cancelSuggest != nil {
		u.cancelSuggest()
		u.cancelSuggest = nil
	}
}

// Submit dispatches the live query as a text search.
// Blank queries are rejected and nothing is dispatched.
func (u *QueryUnifier) Submit(ctx context.Context) error {
	u.cancelSuggestions()

	u.mu.Lock()
	query := strings.TrimSpace(u.live)
	if query == "" {
		u.mu.Unlock()
		return apperr.Validation("search query is empty").WithOp("unifier.Submit")
	}
	u.live = query
	input := TextInput{Query: query}
	u.switchTo(input)
	u.mu.Unlock()

	u.dispatch(ctx, input)
	return nil
}

// SubmitText sets the live query and submits it
func (u *QueryUnifier) SubmitText(ctx context.Context, text string) error {
	u.mu.Lock()
	u.live = text
	u.mu.Unlock()
	return u.Submit(ctx)
}

// SubmitVoice dispatches a transcript exactly like a text submission
func (u *QueryUnifier) SubmitVoice(ctx context.Context, t model.Transcription) error {
	u.cancelSuggestions()

	transcript := strings.TrimSpace(t.Transcript)
	if transcript == "" && len(t.Products) == 0 {
		return apperr.Validation("no speech was recognized").WithOp("unifier.SubmitVoice")
	}

	u.mu.Lock()
	u.live = transcript
	u.switchTo(VoiceInput{Transcript: transcript})
	u.mu.Unlock()

	u.dispatch(ctx, VoiceInput{Transcript: transcript, Results: t.Products})
	return nil
}

// SelectImage validates an upload and keeps it as the preview
func (u *QueryUnifier) SelectImage(upload ImageUpload) (model.ImageData, error) {
	if u.images == nil {
		return model.ImageData{}, apperr.Internal("image search is not configured", nil)
	}
	img, err := u.images.Validate(upload)
	if err != nil {
		return model.ImageData{}, err
	}

	u.mu.Lock()
	u.preview = &img
	u.mu.Unlock()
	return img, nil
}

// ConfirmImage dispatches the previewed image as an image search
func (u *QueryUnifier) ConfirmImage(ctx context.Context) error {
	u.mu.Lock()
	if u.preview == nil {
		u.mu.Unlock()
		return apperr.Conflict("no image selected").WithOp("unifier.ConfirmImage")
	}
	input := ImageInput{Image: *u.preview}
	u.live = ""
	u.switchTo(input)
	u.mu.Unlock()

	u.cancelSuggestions()
	u.dispatch(ctx, input)
	return nil
}

// ClearImage drops the preview, e.g. when the upload dialog closes
func (u *QueryUnifier) ClearImage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.preview = nil
}

// switchTo makes input active and clears everything owned by other modalities.
// Caller holds u.mu.
func (u *QueryUnifier) switchTo(input ActiveInput) {
	if input.Modality() != model.ModalityImage {
		u.preview = nil
	}
	u.suggestions = SuggestionState{}
	u.active = input
}

func (u *QueryUnifier) dispatch(ctx context.Context, input ActiveInput) {
	if u.dispatcher != nil {
		u.dispatcher.Dispatch(ctx, input)
	}
}

// Active returns the input in effect, or nil before the first search
func (u *QueryUnifier) Active() ActiveInput {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

// State returns a snapshot for rendering
func (u *QueryUnifier) State() UnifierState {
	u.mu.Lock()
	defer u.mu.Unlock()

	state := UnifierState{Live: u.live, Suggestions: u.suggestions}
	if state.Suggestions.Suggestions == nil {
		state.Suggestions.Suggestions = []string{}
	}
	if u.preview != nil {
		p := *u.preview
		state.Preview = &p
	}
	switch in := u.active.(type) {
	case TextInput:
		state.Modality, state.Query = in.Modality(), in.Query
	case VoiceInput:
		state.Modality, state.Query = in.Modality(), in.Transcript
	case ImageInput:
		state.Modality = in.Modality()
	}
	return state
}

// Close stops pending timers and in-flight suggestion work
func (u *QueryUnifier) Close() {
	u.cancelSuggestions()
}
