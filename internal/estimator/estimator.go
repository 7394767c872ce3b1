package estimator

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"text/template"
	"time"

	"nutrition-resolver/internal/llm"
	"nutrition-resolver/internal/nutrition"
	"nutrition-resolver/internal/shared"
)

//go:embed estimator_prompt.md
var estimatorPrompt string

var promptTemplate = template.Must(template.New("estimator").Parse(estimatorPrompt))

// AgentName identifies the estimator in execution metrics.
const AgentName = "Estimator"

// MetaHook receives the metadata of every estimator call.
type MetaHook func(shared.AgentMeta)

// Estimator asks an LLM for the nutrients of one item. Web-search mode uses
// a grounded model; best-estimate mode uses a plain one.
type Estimator struct {
	webSearch    llm.TextGenerator
	bestEstimate llm.TextGenerator
	onMeta       MetaHook
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithMetaHook registers a callback for token usage and latency.
func WithMetaHook(fn MetaHook) Option {
	return func(e *Estimator) { e.onMeta = fn }
}

// New creates an Estimator. A nil webSearch generator falls back to
// bestEstimate for every mode.
func New(webSearch, bestEstimate llm.TextGenerator, opts ...Option) *Estimator {
	if webSearch == nil {
		webSearch = bestEstimate
	}
	e := &Estimator{
		webSearch:    webSearch,
		bestEstimate: bestEstimate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type promptData struct {
	Description string
	Amount      string
	PortionHint string
	WebSearch   bool
}

type estimateResponse struct {
	Calories           json.RawMessage `json:"calories"`
	Protein            json.RawMessage `json:"protein"`
	Carbs              json.RawMessage `json:"carbs"`
	Fat                json.RawMessage `json:"fat"`
	ServingDescription string          `json:"servingDescription"`
}

// Estimate returns the nutrients for item. An unusable reply is reported as
// an error-sourced result, not an error.
func (e *Estimator) Estimate(ctx context.Context, item nutrition.ParsedFoodItem, mode nutrition.EstimateMode) (nutrition.NutritionResult, error) {
	gen := e.bestEstimate
	if mode == nutrition.ModeWebSearch {
		gen = e.webSearch
	}
	if gen == nil {
		return nutrition.NutritionResult{}, fmt.Errorf("%w: no model configured for %s", nutrition.ErrConfiguration, mode)
	}

	start := time.Now()
	prompt, err := buildPrompt(item, mode)
	if err != nil {
		return nutrition.NutritionResult{}, err
	}

	resp, err := gen.GenerateContent(ctx, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrMissingCredentials) {
			return nutrition.NutritionResult{}, fmt.Errorf("%w: estimator: %v", nutrition.ErrConfiguration, err)
		}
		return nutrition.NutritionResult{}, fmt.Errorf("%w: estimator: %v", nutrition.ErrUpstreamUnavailable, err)
	}

	if e.onMeta != nil {
		e.onMeta(shared.AgentMeta{
			AgentName: AgentName,
			RequestID: shared.RequestIDFrom(ctx),
			Usage:     resp.Usage,
			Latency:   time.Since(start),
		})
	}

	nutrients, serving, err := parseEstimate(resp.Content)
	if err != nil {
		log.Printf("Estimator reply for %q unusable: %v. Response: %s", item.HumanizedName(), err, resp.Content)
		return nutrition.ErrorResult(), nil
	}

	if serving == "" {
		serving = amount(item)
	}
	return nutrition.NutritionResult{
		Nutrients:          nutrients,
		Source:             mode.Source(),
		MatchedDescription: item.HumanizedName(),
		MatchedPortion:     serving,
	}, nil
}

func buildPrompt(item nutrition.ParsedFoodItem, mode nutrition.EstimateMode) (string, error) {
	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, promptData{
		Description: item.HumanizedName(),
		Amount:      amount(item),
		PortionHint: item.PortionHint,
		WebSearch:   mode == nutrition.ModeWebSearch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build estimator prompt: %w", err)
	}
	return buf.String(), nil
}

func amount(item nutrition.ParsedFoodItem) string {
	unit := item.Unit
	if unit == "" {
		unit = nutrition.UnitPiece
	}
	return strconv.FormatFloat(item.EffectiveQuantity(), 'f', -1, 64) + " " + unit
}

// parseEstimate pulls the nutrient object out of a reply. Calories are
// required; missing macros count as zero.
func parseEstimate(content string) (nutrition.NutrientVector, string, error) {
	raw, ok := llm.ExtractJSONObject(content)
	if !ok {
		return nutrition.NutrientVector{}, "", fmt.Errorf("%w: no JSON object", nutrition.ErrUnparsableResponse)
	}

	var r estimateResponse
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nutrition.NutrientVector{}, "", fmt.Errorf("%w: %v", nutrition.ErrUnparsableResponse, err)
	}

	calories, ok := parseNumber(r.Calories)
	if !ok {
		return nutrition.NutrientVector{}, "", fmt.Errorf("%w: missing calories", nutrition.ErrUnparsableResponse)
	}
	protein, _ := parseNumber(r.Protein)
	carbs, _ := parseNumber(r.Carbs)
	fat, _ := parseNumber(r.Fat)

	v := nutrition.NutrientVector{Calories: calories, Protein: protein, Carbs: carbs, Fat: fat}
	return v.Clamped(), strings.TrimSpace(r.ServingDescription), nil
}

// parseNumber accepts 12.5, "12.5" and "12.5 g".
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimRight(fields[0], "gkcal"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
