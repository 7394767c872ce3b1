package estimator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"nutrition-resolver/internal/llm"
	"nutrition-resolver/internal/nutrition"
	"nutrition-resolver/internal/shared"
)

type MockTextGenerator struct {
	name       string
	content    string
	err        error
	calls      int
	lastPrompt string
}

func (m *MockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{
		Content: m.content,
		Usage:   shared.TokenUsage{PromptTokens: 120, CompletionTokens: 30, Model: m.name},
	}, nil
}

const bigMacReply = `{"calories": 590, "protein": 25, "carbs": 46, "fat": 34, "servingDescription": "1 sandwich"}`

func TestEstimator_Estimate(t *testing.T) {
	bigMac := nutrition.ParsedFoodItem{Name: "Big Mac", Quantity: 1, Restaurant: "McDonald's"}
	milk := nutrition.ParsedFoodItem{Name: "Low Fat Milk", Quantity: 2, Unit: "cup", Brand: "Fairlife"}

	t.Run("WebSearchMode", func(t *testing.T) {
		web := &MockTextGenerator{name: "groq/compound", content: "According to McDonald's:\n" + bigMacReply}
		plain := &MockTextGenerator{name: "plain", content: bigMacReply}
		var metas []shared.AgentMeta
		e := New(web, plain, WithMetaHook(func(m shared.AgentMeta) { metas = append(metas, m) }))

		ctx := shared.WithRequestID(context.Background(), "req-1")
		res, err := e.Estimate(ctx, bigMac, nutrition.ModeWebSearch)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if web.calls != 1 || plain.calls != 0 {
			t.Errorf("Expected only the web search model to be called, got web=%d plain=%d", web.calls, plain.calls)
		}
		if res.Source != nutrition.SourceEstimatorWebSearch {
			t.Errorf("Expected source %s, got %s", nutrition.SourceEstimatorWebSearch, res.Source)
		}
		want := nutrition.NutrientVector{Calories: 590, Protein: 25, Carbs: 46, Fat: 34}
		if res.Nutrients != want {
			t.Errorf("Expected %+v, got %+v", want, res.Nutrients)
		}
		if res.MatchedDescription != "Big Mac from McDonald's" || res.MatchedPortion != "1 sandwich" {
			t.Errorf("Unexpected match fields: %+v", res)
		}
		if !strings.Contains(web.lastPrompt, "Big Mac from McDonald's") || !strings.Contains(web.lastPrompt, "Search the web") {
			t.Errorf("Unexpected prompt: %s", web.lastPrompt)
		}
		if len(metas) != 1 || metas[0].RequestID != "req-1" || metas[0].Usage.Model != "groq/compound" {
			t.Errorf("Unexpected meta: %+v", metas)
		}
	})

	t.Run("BestEstimateMode", func(t *testing.T) {
		web := &MockTextGenerator{content: bigMacReply}
		plain := &MockTextGenerator{content: `{"calories": "220 kcal", "protein": "16 g", "carbs": 12, "fat": 9}`}
		e := New(web, plain)

		res, err := e.Estimate(context.Background(), milk, nutrition.ModeBestEstimate)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if web.calls != 0 {
			t.Error("Expected the web search model not to be called")
		}
		if res.Source != nutrition.SourceEstimator {
			t.Errorf("Expected source %s, got %s", nutrition.SourceEstimator, res.Source)
		}
		if res.Nutrients.Calories != 220 || res.Nutrients.Protein != 16 {
			t.Errorf("Expected string values to be parsed, got %+v", res.Nutrients)
		}
		if res.MatchedPortion != "2 cup" {
			t.Errorf("Expected amount as portion fallback, got %q", res.MatchedPortion)
		}
		if !strings.Contains(plain.lastPrompt, "Fairlife Low Fat Milk") || strings.Contains(plain.lastPrompt, "Search the web") {
			t.Errorf("Unexpected prompt: %s", plain.lastPrompt)
		}
	})

	t.Run("NilWebSearchFallsBack", func(t *testing.T) {
		plain := &MockTextGenerator{content: bigMacReply}
		e := New(nil, plain)

		res, err := e.Estimate(context.Background(), bigMac, nutrition.ModeWebSearch)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if plain.calls != 1 || res.Source != nutrition.SourceEstimatorWebSearch {
			t.Errorf("Expected the plain model to serve web search mode, got calls=%d source=%s", plain.calls, res.Source)
		}
	})

	t.Run("NegativeValuesClamped", func(t *testing.T) {
		e := New(nil, &MockTextGenerator{content: `{"calories": 100, "protein": -2, "carbs": 10, "fat": 1}`})

		res, _ := e.Estimate(context.Background(), milk, nutrition.ModeBestEstimate)
		if res.Nutrients.Protein != 0 {
			t.Errorf("Expected protein clamped to 0, got %v", res.Nutrients.Protein)
		}
	})

	t.Run("UnparsableReplies", func(t *testing.T) {
		replies := []string{
			"I'm sorry, I can't help with that.",
			`{"protein": 10}`,
			`{"calories": "unknown"}`,
			`{"calories": 100,}`,
		}
		for _, reply := range replies {
			e := New(nil, &MockTextGenerator{content: reply})
			res, err := e.Estimate(context.Background(), milk, nutrition.ModeBestEstimate)
			if err != nil {
				t.Errorf("Expected no error for %q, got %v", reply, err)
			}
			if res.Source != nutrition.SourceError || !res.Nutrients.IsZero() {
				t.Errorf("Expected an all-zero error result for %q, got %+v", reply, res)
			}
		}
	})

	t.Run("UpstreamFailure", func(t *testing.T) {
		e := New(nil, &MockTextGenerator{err: fmt.Errorf("groq api error: status=500")})

		_, err := e.Estimate(context.Background(), milk, nutrition.ModeBestEstimate)
		if !errors.Is(err, nutrition.ErrUpstreamUnavailable) {
			t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		e := New(nil, &MockTextGenerator{err: llm.ErrMissingCredentials})

		_, err := e.Estimate(context.Background(), milk, nutrition.ModeBestEstimate)
		if !errors.Is(err, nutrition.ErrConfiguration) {
			t.Errorf("Expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("NoModels", func(t *testing.T) {
		e := New(nil, nil)

		_, err := e.Estimate(context.Background(), milk, nutrition.ModeBestEstimate)
		if !errors.Is(err, nutrition.ErrConfiguration) {
			t.Errorf("Expected ErrConfiguration, got %v", err)
		}
	})
}

func TestEstimator_SatisfiesInterface(t *testing.T) {
	var _ nutrition.Estimator = New(nil, &MockTextGenerator{})
}
