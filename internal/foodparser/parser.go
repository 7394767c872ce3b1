package foodparser

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"nutrition-resolver/internal/llm"
	"nutrition-resolver/internal/nutrition"
	"nutrition-resolver/internal/shared"
)

//go:embed parser_prompt.md
var parserPrompt string

var promptTemplate = template.Must(template.New("parser").Parse(parserPrompt))

// AgentName identifies the parser in execution metrics.
const AgentName = "FoodParser"

// Result is the outcome of one parse.
type Result struct {
	Items []nutrition.ParsedFoodItem
	Meta  shared.AgentMeta
}

// Parser turns free text into structured food items using an LLM.
type Parser struct {
	textGen llm.TextGenerator
}

// NewParser creates a new Parser.
func NewParser(textGen llm.TextGenerator) *Parser {
	return &Parser{textGen: textGen}
}

type promptData struct {
	Text string
}

// rawItem mirrors the model output. Pointers distinguish absent fields.
type rawItem struct {
	Name        string          `json:"name"`
	Quantity    json.RawMessage `json:"quantity"`
	Unit        string          `json:"unit"`
	SearchTerm  string          `json:"searchTerm"`
	PortionHint string          `json:"portionHint"`
	IsGeneric   *bool           `json:"isGeneric"`
	Brand       string          `json:"brand"`
	Restaurant  string          `json:"restaurant"`
}

// Parse returns the food items mentioned in text. A reply without a JSON
// array yields zero items, not an error. Errors are returned only when the
// model could not be reached.
func (p *Parser) Parse(ctx context.Context, text string) (Result, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, promptData{Text: strings.TrimSpace(text)}); err != nil {
		return Result{}, fmt.Errorf("failed to build parser prompt: %w", err)
	}

	resp, err := p.textGen.GenerateContent(ctx, buf.String())
	if err != nil {
		if errors.Is(err, llm.ErrMissingCredentials) {
			return Result{}, fmt.Errorf("%w: food parser: %v", nutrition.ErrConfiguration, err)
		}
		return Result{}, fmt.Errorf("%w: food parser: %v", nutrition.ErrUpstreamUnavailable, err)
	}

	meta := shared.AgentMeta{
		AgentName: AgentName,
		Usage:     resp.Usage,
		Latency:   time.Since(start),
	}

	items, err := decodeItems(resp.Content)
	if err != nil {
		log.Printf("Food parser returned no usable items: %v. Response: %s", err, resp.Content)
		return Result{Items: []nutrition.ParsedFoodItem{}, Meta: meta}, nil
	}
	return Result{Items: items, Meta: meta}, nil
}

func decodeItems(content string) ([]nutrition.ParsedFoodItem, error) {
	raw, ok := llm.ExtractJSONArray(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array", nutrition.ErrUnparsableResponse)
	}

	var rawItems []rawItem
	if err := json.Unmarshal([]byte(raw), &rawItems); err != nil {
		return nil, fmt.Errorf("%w: %v", nutrition.ErrUnparsableResponse, err)
	}

	items := make([]nutrition.ParsedFoodItem, 0, len(rawItems))
	for _, r := range rawItems {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		item := nutrition.ParsedFoodItem{
			Name:        name,
			Quantity:    parseQuantity(r.Quantity),
			Unit:        strings.ToLower(strings.TrimSpace(r.Unit)),
			SearchTerm:  strings.TrimSpace(r.SearchTerm),
			PortionHint: strings.TrimSpace(r.PortionHint),
			Brand:       strings.TrimSpace(r.Brand),
			Restaurant:  strings.TrimSpace(r.Restaurant),
		}
		if r.IsGeneric != nil {
			item.IsGeneric = *r.IsGeneric
		} else {
			item.IsGeneric = item.Brand == "" && item.Restaurant == ""
		}
		items = append(items, item)
	}
	return items, nil
}

// parseQuantity accepts numbers and numeric strings. Anything else,
// including zero and negatives, becomes 1.
func parseQuantity(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 1
	}

	var q float64
	if err := json.Unmarshal(raw, &q); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 1
		}
		q, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 1
		}
	}
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return 1
	}
	return q
}
