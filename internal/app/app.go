package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nutrition-resolver/internal/foodparser"
	"nutrition-resolver/internal/metrics"
	"nutrition-resolver/internal/nutrition"
	"nutrition-resolver/internal/shared"

	"github.com/google/uuid"
)

// ErrEmptyText is returned when there is nothing to resolve.
var ErrEmptyText = errors.New("text is required")

// Parser turns free text into food items.
type Parser interface {
	Parse(ctx context.Context, text string) (foodparser.Result, error)
}

// Resolver resolves parsed items into nutrition results, one per item. The
// error is reserved for configuration problems.
type Resolver interface {
	ResolveRequest(ctx context.Context, items []nutrition.ParsedFoodItem) ([]nutrition.NutritionResult, error)
}

// MetricsRecorder persists agent and per-item metrics.
type MetricsRecorder interface {
	RecordMeta(meta shared.AgentMeta) error
	RecordResolution(m metrics.ResolutionMetric) error
}

// ItemResponse is one resolved item as returned to callers.
type ItemResponse struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	nutrition.NutritionResult
}

// Response is the outcome of resolving one piece of text.
type Response struct {
	RequestID string                   `json:"requestId"`
	Items     []ItemResponse           `json:"items"`
	Sources   map[nutrition.Source]int `json:"sources"`
	Totals    nutrition.NutrientVector `json:"totals"`
}

// App holds the application's dependencies.
type App struct {
	parser   Parser
	resolver Resolver
	metrics  MetricsRecorder
}

// NewApp creates and initializes a new App instance. metricsRecorder may be nil.
func NewApp(parser Parser, resolver Resolver, metricsRecorder MetricsRecorder) *App {
	return &App{
		parser:   parser,
		resolver: resolver,
		metrics:  metricsRecorder,
	}
}

// ResolveText parses text into food items and resolves each of them.
// Only configuration problems and empty input are returned as errors;
// everything else degrades to per-item error results.
func (a *App) ResolveText(ctx context.Context, text string) (*Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if a.parser == nil || a.resolver == nil {
		return nil, fmt.Errorf("%w: resolution pipeline not configured", nutrition.ErrConfiguration)
	}

	requestID := shared.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = shared.WithRequestID(ctx, requestID)
	}
	start := time.Now()

	parsed, err := a.parser.Parse(ctx, text)
	if err != nil {
		if errors.Is(err, nutrition.ErrConfiguration) {
			return nil, err
		}
		log.Printf("[%s] Food parser failed, returning no items: %v", requestID, err)
	}
	parsed.Meta.RequestID = requestID
	a.recordMeta(parsed.Meta)

	results, err := a.resolver.ResolveRequest(ctx, parsed.Items)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		RequestID: requestID,
		Items:     make([]ItemResponse, len(parsed.Items)),
		Sources:   nutrition.CountSources(results),
		Totals:    nutrition.Totals(results),
	}
	for i, item := range parsed.Items {
		resp.Items[i] = ItemResponse{
			Name:            item.Name,
			Quantity:        item.EffectiveQuantity(),
			Unit:            item.Unit,
			NutritionResult: results[i],
		}
	}

	log.Printf("[%s] Resolved %d items in %v: %v", requestID, len(resp.Items), time.Since(start).Round(time.Millisecond), resp.Sources)
	return resp, nil
}

func (a *App) recordMeta(meta shared.AgentMeta) {
	if a.metrics == nil {
		return
	}
	if err := a.metrics.RecordMeta(meta); err != nil {
		log.Printf("Warning: failed to record metrics for %s: %v", meta.AgentName, err)
	}
}

// ResolutionObserver records one resolution metric per item.
func ResolutionObserver(rec MetricsRecorder) nutrition.ItemObserver {
	return func(ctx context.Context, _ int, item nutrition.ParsedFoodItem, result nutrition.NutritionResult, latency time.Duration) {
		err := rec.RecordResolution(metrics.ResolutionMetric{
			RequestID: shared.RequestIDFrom(ctx),
			ItemName:  item.HumanizedName(),
			Source:    result.Source,
			LatencyMS: latency.Milliseconds(),
		})
		if err != nil {
			log.Printf("Warning: failed to record resolution metric: %v", err)
		}
	}
}

// MetaRecorder adapts a MetricsRecorder to the estimator's meta hook.
func MetaRecorder(rec MetricsRecorder) func(shared.AgentMeta) {
	return func(meta shared.AgentMeta) {
		if err := rec.RecordMeta(meta); err != nil {
			log.Printf("Warning: failed to record metrics for %s: %v", meta.AgentName, err)
		}
	}
}
