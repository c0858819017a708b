package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/model"
)

func TestFilterState_ToggleRoundTrip(t *testing.T) {
	fs := NewFilterState(newManualClock(), 300*time.Millisecond)
	require.NoError(t, fs.Toggle(FieldBrand, "Sony"))
	original := fs.Current()

	require.NoError(t, fs.Toggle(FieldCategory, "Headphones"))
	assert.Equal(t, []string{"Headphones"}, fs.Current().Categories)
	require.NoError(t, fs.Toggle(FieldCategory, "headphones"))

	assert.Equal(t, original, fs.Current())
}

func TestFilterState_EmptySetOmitted(t *testing.T) {
	fs := NewFilterState(newManualClock(), 300*time.Millisecond)
	require.NoError(t, fs.Toggle(FieldBrand, "Acme"))
	require.NoError(t, fs.Toggle(FieldBrand, "ACME"))

	raw, err := json.Marshal(fs.Current())
	require.NoError(t, err)
	assert.JSONEq(t, `{"sort_order":"relevance"}`, string(raw))
}

func TestFilterState_ToggleUnicodeFolding(t *testing.T) {
	fs := NewFilterState(newManualClock(), 300*time.Millisecond)
	require.NoError(t, fs.Toggle(FieldBrand, "Straße"))
	require.NoError(t, fs.Toggle(FieldBrand, "STRASSE"))
	assert.Nil(t, fs.Current().Brands)
}

func TestFilterState_PriceRangeDebounced(t *testing.T) {
	clock := newManualClock()
	fs := NewFilterState(clock, 300*time.Millisecond)

	var commits []model.FilterSet
	fs.OnChange = func(f model.FilterSet) { commits = append(commits, f) }

	require.NoError(t, fs.SetPriceRange(float64Ptr(10), float64Ptr(50)))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, fs.SetPriceRange(float64Ptr(10), float64Ptr(80)))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, fs.SetPriceRange(float64Ptr(20), float64Ptr(120)))

	assert.Empty(t, commits)
	assert.Nil(t, fs.Current().PriceRange, "range is not committed while dragging")
	require.NotNil(t, fs.PendingPriceRange())

	clock.Advance(300 * time.Millisecond)
	require.Len(t, commits, 1)
	pr := commits[0].PriceRange
	require.NotNil(t, pr)
	assert.Equal(t, 20.0, *pr.Min)
	assert.Equal(t, 120.0, *pr.Max)
	assert.Nil(t, fs.PendingPriceRange())
}

func TestFilterState_PriceRangeValidation(t *testing.T) {
	fs := NewFilterState(newManualClock(), 300*time.Millisecond)

	err := fs.SetPriceRange(float64Ptr(100), float64Ptr(50))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	err = fs.SetPriceRange(float64Ptr(-1), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.NoError(t, fs.SetPriceRange(nil, float64Ptr(50)), "open lower bound")
	assert.NoError(t, fs.SetPriceRange(float64Ptr(50), float64Ptr(50)), "min equal to max")
}

func TestFilterState_ScalarsAndClearAll(t *testing.T) {
	clock := newManualClock()
	fs := NewFilterState(clock, 300*time.Millisecond)

	commits := 0
	fs.OnChange = func(model.FilterSet) { commits++ }

	inStock := true
	require.NoError(t, fs.Apply(FilterUpdate{MinRating: float64Ptr(4), InStock: &inStock}))
	require.NoError(t, fs.SetSort(model.SortPriceAsc))
	assert.Equal(t, 2, commits, "one commit per call")

	assert.True(t, apperr.Is(fs.SetSort("cheapest"), apperr.KindValidation))
	assert.True(t, apperr.Is(fs.SetMinRating(float64Ptr(7)), apperr.KindValidation))

	current := fs.Current()
	assert.Equal(t, 4.0, *current.MinRating)
	assert.True(t, *current.InStock)
	assert.Equal(t, model.SortPriceAsc, current.SortOrder)

	require.NoError(t, fs.Toggle(FieldCategory, "Audio"))
	require.NoError(t, fs.SetPriceRange(float64Ptr(1), float64Ptr(2)))
	fs.ClearAll()
	clock.Advance(time.Second)

	assert.Equal(t, model.FilterSet{SortOrder: model.SortRelevance}, fs.Current())
}
