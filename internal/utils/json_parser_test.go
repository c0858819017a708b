package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type productBlock struct {
	Products []struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	} `json:"products"`
}

func TestParseEmbeddedJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "pure JSON",
			input:   `{"products":[{"id":"p1","price":10}]}`,
			wantIDs: []string{"p1"},
		},
		{
			name:    "fenced block",
			input:   "Here you go:\n```json\n{\"products\":[{\"id\":\"p2\",\"price\":20}]}\n```\nEnjoy!",
			wantIDs: []string{"p2"},
		},
		{
			name:    "surrounded by prose",
			input:   `I found {"products":[{"id":"p3","price":5},{"id":"p4","price":6}]} within your budget.`,
			wantIDs: []string{"p3", "p4"},
		},
		{
			name:    "trailing comma and bare keys",
			input:   `Try these: {products: [{id: "p5", price: 7},],}`,
			wantIDs: []string{"p5"},
		},
		{
			name:    "no JSON",
			input:   "Sorry, nothing matched [your search].",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got productBlock
			err := ParseEmbeddedJSON(tt.input, &got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(got.Products))
			for _, p := range got.Products {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestFindJSONBlocks(t *testing.T) {
	text := `a {"x":"}"} b [1,[2]] c {unclosed`
	blocks := FindJSONBlocks(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, `{"x":"}"}`, blocks[0].Raw)
	assert.Equal(t, `[1,[2]]`, blocks[1].Raw)
	assert.Equal(t, text[blocks[1].Start:blocks[1].End], blocks[1].Raw)
}

func TestStripJSONBlocks(t *testing.T) {
	text := "Two options under $50:\n\n```json\n{\"products\":[]}\n```\n\n\nBoth ship today. See [details] {\"id\":1}"
	assert.Equal(t, "Two options under $50:\n\nBoth ship today. See [details]", StripJSONBlocks(text))
}
