package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofongang/World-Monitor/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"collapses punctuation runs", "breaking:  missile---launch!!", "breaking missile launch"},
		{"trims", "  padded  ", "padded"},
		{"transliterates", "Bogotá café", "bogota cafe"},
		{"empty", "", ""},
		{"only punctuation", "!!! ---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTextHashStable(t *testing.T) {
	first := TextHash("Major Earthquake, Japan!")
	second := TextHash("major earthquake japan")
	require.Equal(t, first, second, "hash must depend only on normalized text")
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, TextHash("different"))
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Military troops massing at the border", model.CategoryConflict},
		{"New export controls announced", model.CategorySanctions},
		{"Ransomware hits hospital network", model.CategoryCyber},
		{"Magnitude 7 earthquake shakes coast", model.CategoryDisaster},
		{"Oil prices jump on supply fears", model.CategoryMarkets},
		{"Leaders meet for NATO summit", model.CategoryDiplomacy},
		{"Quiet day everywhere", model.CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferCategory(tt.text, model.CategoryOther), tt.text)
	}
}

func TestInferCategoryFirstMatchWins(t *testing.T) {
	// "attack" (conflict) appears before "cyber" in table order even
	// though both keywords are present.
	got := InferCategory("cyber attack on power grid", model.CategoryOther)
	assert.Equal(t, model.CategoryConflict, got)
}

func TestInferCategoryFallback(t *testing.T) {
	assert.Equal(t, model.CategoryMarkets, InferCategory("nothing notable", model.CategoryMarkets))
	assert.Equal(t, model.CategoryOther, InferCategory("nothing notable", ""))
}

func TestInferSeverity(t *testing.T) {
	base := InferSeverity(model.CategoryDisaster, "earthquake near the coast")
	assert.Equal(t, 72, base)

	amplified := InferSeverity(model.CategoryDisaster, "major earthquake emergency warning")
	assert.Equal(t, 72+3*AmplifierStep, amplified)

	assert.Equal(t, DefaultSeverityBase[model.CategoryOther], InferSeverity("unknown-category", "text"))
}

func TestInferSeverityClamped(t *testing.T) {
	// conflict base 78 + all nine amplifiers would exceed 100
	text := "major dead killed urgent emergency warning missile ceasefire default"
	assert.Equal(t, 100, InferSeverity(model.CategoryConflict, text))
}
