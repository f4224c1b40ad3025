package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
)

const extractionPrompt = "You are a helpful assistant that extracts ingredients from the recipe mentioned by the user. " +
	"Return a JSON object in the following format ONLY:\n" +
	`{"recipe": "<name_of_recipe>", "ingredients": ["ingredient1", "ingredient2", "..."]}`

// Extraction is the parsed result of an ingredient extraction call.
type Extraction struct {
	Recipe      string   `json:"recipe"`
	Ingredients []string `json:"ingredients"`
}

// Extractor turns a free-text recipe request into an ingredient list using
// a secondary model call. Unparseable model output degrades to an unknown
// recipe with no ingredients rather than an error.
type Extractor struct {
	provider Provider
	model    string
	logger   zerolog.Logger
}

// NewExtractor creates an ingredient extractor.
func NewExtractor(provider Provider, model string, logger zerolog.Logger) *Extractor {
	return &Extractor{
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// Extract asks the model for the recipe's ingredient list.
func (e *Extractor) Extract(ctx context.Context, recipeRequest string) Extraction {
	response, err := e.provider.Infer(ctx, Request{
		Model:        e.model,
		SystemPrompt: extractionPrompt,
		Messages:     []conversation.Message{conversation.UserMessage(recipeRequest)},
		MaxTokens:    1024,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Ingredient extraction call failed")
		return Extraction{Recipe: "unknown", Ingredients: []string{}}
	}

	extraction, ok := parseExtraction(response.Content)
	if !ok {
		e.logger.Warn().Str("content", response.Content).Msg("Unparseable extraction output")
		return Extraction{Recipe: "unknown", Ingredients: []string{}}
	}

	return extraction
}

func parseExtraction(content string) (Extraction, bool) {
	content = strings.TrimSpace(content)

	// Models sometimes wrap JSON in code fences or prose; cut to the
	// outermost object.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Extraction{}, false
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &extraction); err != nil {
		return Extraction{}, false
	}
	if extraction.Recipe == "" {
		return Extraction{}, false
	}
	if extraction.Ingredients == nil {
		extraction.Ingredients = []string{}
	}

	return extraction, true
}
