package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var compressor = &FocalEntity{
	ID:          "COMP_001",
	Name:        "COMP_001",
	Category:    "compressor_station",
	Subcategory: "Delaware Basin",
}

func TestEnrich(t *testing.T) {
	const raw = "Show me high-risk assets"

	tests := []struct {
		name        string
		focal       *FocalEntity
		chatContext string
		want        string
	}{
		{
			name: "no context passes through verbatim",
			want: raw,
		},
		{
			name:  "focal entity",
			focal: compressor,
			want:  "[Context: User is viewing asset \"COMP_001\" (compressor_station) in Delaware Basin]\n\n" + raw,
		},
		{
			name:        "focal entity wins over chat context",
			focal:       compressor,
			chatContext: "Executive dashboard, Q3 synergies",
			want:        "[Context: User is viewing asset \"COMP_001\" (compressor_station) in Delaware Basin]\n\n" + raw,
		},
		{
			name:        "chat context",
			chatContext: "Executive dashboard, Q3 synergies",
			want:        "[Context: Executive dashboard, Q3 synergies]\n\n" + raw,
		},
		{
			name:  "zero focal entity is ignored",
			focal: &FocalEntity{},
			want:  raw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Enrich(raw, tt.focal, tt.chatContext))
		})
	}
}

func TestSuggestions(t *testing.T) {
	general := Suggestions(nil)
	assert.Len(t, general, 4)
	assert.Equal(t, "Show me high-risk assets and explain the contributing factors", general[0])

	specific := Suggestions(compressor)
	assert.Len(t, specific, 3)
	assert.Equal(t, "What is the risk assessment for COMP_001?", specific[0])
}
