package model

// Modality is the input channel a search came from
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityVoice Modality = "voice"
	ModalityImage Modality = "image"
)

// SortOrder is the requested result ordering
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortRating    SortOrder = "rating"
	SortNewest    SortOrder = "newest"
)

// Valid reports whether s is a known sort order
func (s SortOrder) Valid() bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortRating, SortNewest:
		return true
	}
	return false
}

// PriceRange bounds result prices; either side may be open
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Valid reports whether min <= max when both are present
func (p *PriceRange) Valid() bool {
	if p == nil || p.Min == nil || p.Max == nil {
		return true
	}
	return *p.Min <= *p.Max
}

// FilterSet is the active set of search constraints.
// Empty toggle sets are nil so they are omitted on the wire.
type FilterSet struct {
	Categories []string    `json:"categories,omitempty"`
	Brands     []string    `json:"brands,omitempty"`
	PriceRange *PriceRange `json:"price_range,omitempty"`
	MinRating  *float64    `json:"min_rating,omitempty"`
	InStock    *bool       `json:"in_stock,omitempty"`
	SortOrder  SortOrder   `json:"sort_order"`
}

// Clone returns a deep copy so a dispatched request cannot be mutated later
func (f FilterSet) Clone() FilterSet {
	out := FilterSet{SortOrder: f.SortOrder}
	if len(f.Categories) > 0 {
		out.Categories = append([]string(nil), f.Categories...)
	}
	if len(f.Brands) > 0 {
		out.Brands = append([]string(nil), f.Brands...)
	}
	if f.PriceRange != nil {
		pr := PriceRange{}
		if f.PriceRange.Min != nil {
			v := *f.PriceRange.Min
			pr.Min = &v
		}
		if f.PriceRange.Max != nil {
			v := *f.PriceRange.Max
			pr.Max = &v
		}
		out.PriceRange = &pr
	}
	if f.MinRating != nil {
		v := *f.MinRating
		out.MinRating = &v
	}
	if f.InStock != nil {
		v := *f.InStock
		out.InStock = &v
	}
	return out
}

// ImageData is an accepted image upload
type ImageData struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// SearchRequest is one dispatched search. It is never mutated after dispatch;
// the next user action produces a new request with a higher Seq.
type SearchRequest struct {
	Seq      uint64     `json:"seq"`
	Query    string     `json:"query,omitempty"`
	Filters  FilterSet  `json:"filters"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Modality Modality   `json:"modality"`
	Image    *ImageData `json:"image,omitempty"`
}

// DiversityOptions are passed through to the backend ranker
type DiversityOptions struct {
	MaxPerBrand    int `json:"max_per_brand,omitempty"`
	MaxPerCategory int `json:"max_per_category,omitempty"`
}

// SearchResponse is the backend answer to a text or image search
type SearchResponse struct {
	Products         []ProductSearchResult `json:"products"`
	TotalResults     int                   `json:"total_results"`
	InterpretedQuery string                `json:"interpreted_query,omitempty"`
}

// SuggestionResponse is the backend answer to an autosuggest request
type SuggestionResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Transcription is the backend answer to a voice upload. Products is set only
// when the backend ran the search end-to-end.
type Transcription struct {
	Transcript string                `json:"transcript"`
	Products   []ProductSearchResult `json:"products,omitempty"`
}
