package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Run("should parse a clean JSON response", func(t *testing.T) {
		provider := &stubProvider{script: []stubStep{
			{response: &Response{Content: `{"recipe": "pasta", "ingredients": ["pasta", "tomato sauce", "garlic"]}`}},
		}}
		extractor := NewExtractor(provider, "test-model", zerolog.Nop())

		extraction := extractor.Extract(context.Background(), "I want to make pasta tonight")
		assert.Equal(t, "pasta", extraction.Recipe)
		assert.Equal(t, []string{"pasta", "tomato sauce", "garlic"}, extraction.Ingredients)
	})

	t.Run("should parse JSON wrapped in code fences", func(t *testing.T) {
		provider := &stubProvider{script: []stubStep{
			{response: &Response{Content: "```json\n{\"recipe\": \"omelette\", \"ingredients\": [\"eggs\", \"butter\"]}\n```"}},
		}}
		extractor := NewExtractor(provider, "test-model", zerolog.Nop())

		extraction := extractor.Extract(context.Background(), "omelette please")
		assert.Equal(t, "omelette", extraction.Recipe)
		assert.Equal(t, []string{"eggs", "butter"}, extraction.Ingredients)
	})

	t.Run("should degrade to unknown on garbage output", func(t *testing.T) {
		provider := &stubProvider{script: []stubStep{
			{response: &Response{Content: "I cannot help with that."}},
		}}
		extractor := NewExtractor(provider, "test-model", zerolog.Nop())

		extraction := extractor.Extract(context.Background(), "make me dinner")
		assert.Equal(t, "unknown", extraction.Recipe)
		require.NotNil(t, extraction.Ingredients)
		assert.Empty(t, extraction.Ingredients)
	})

	t.Run("should degrade to unknown on provider failure", func(t *testing.T) {
		provider := &stubProvider{script: []stubStep{
			{err: errors.New("503 service unavailable")},
		}}
		extractor := NewExtractor(provider, "test-model", zerolog.Nop())

		extraction := extractor.Extract(context.Background(), "pasta")
		assert.Equal(t, "unknown", extraction.Recipe)
		assert.Empty(t, extraction.Ingredients)
	})
}

func TestParseExtraction(t *testing.T) {
	t.Run("should reject output without a recipe", func(t *testing.T) {
		_, ok := parseExtraction(`{"ingredients": ["eggs"]}`)
		assert.False(t, ok)
	})

	t.Run("should default missing ingredients to an empty list", func(t *testing.T) {
		extraction, ok := parseExtraction(`{"recipe": "toast"}`)
		require.True(t, ok)
		require.NotNil(t, extraction.Ingredients)
		assert.Empty(t, extraction.Ingredients)
	})

	t.Run("should tolerate prose around the object", func(t *testing.T) {
		extraction, ok := parseExtraction(`Here you go: {"recipe": "salad", "ingredients": ["lettuce"]} Enjoy!`)
		require.True(t, ok)
		assert.Equal(t, "salad", extraction.Recipe)
	})
}
