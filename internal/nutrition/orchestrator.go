package nutrition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Estimator is the fallback nutrition source.
type Estimator interface {
	Estimate(ctx context.Context, item ParsedFoodItem, mode EstimateMode) (NutritionResult, error)
}

// ItemObserver is notified once per resolved item, from the item's goroutine.
// ctx is the context passed to Resolve.
type ItemObserver func(ctx context.Context, index int, item ParsedFoodItem, result NutritionResult, latency time.Duration)

// Orchestrator routes each parsed item to the database or the estimator.
type Orchestrator struct {
	database    *DatabaseResolver
	estimator   Estimator
	itemTimeout time.Duration
	observer    ItemObserver
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithItemTimeout bounds the work done for a single item.
func WithItemTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.itemTimeout = d }
}

// WithObserver registers a callback invoked after each item resolves.
func WithObserver(fn ItemObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// NewOrchestrator creates an Orchestrator. A nil database disables the
// database path.
func NewOrchestrator(database *DatabaseResolver, estimator Estimator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		database:    database,
		estimator:   estimator,
		itemTimeout: 25 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resolve returns exactly one result per item, in input order. Items are
// resolved concurrently and a failure in one never affects the others.
func (o *Orchestrator) Resolve(ctx context.Context, items []ParsedFoodItem) []NutritionResult {
	results, _ := o.ResolveRequest(ctx, items)
	return results
}

// ResolveRequest is Resolve for a whole request: results are the same, and
// a missing-credentials failure on any item is also returned once as an
// ErrConfiguration error.
func (o *Orchestrator) ResolveRequest(ctx context.Context, items []ParsedFoodItem) ([]NutritionResult, error) {
	results := make([]NutritionResult, len(items))
	configErrs := make([]error, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			start := time.Now()
			results[i], configErrs[i] = o.resolveItem(ctx, item)
			if o.observer != nil {
				o.observer(ctx, i, item, results[i], time.Since(start))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range configErrs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// ChooseMode picks the estimator mode for an item. Branded, restaurant and
// non-generic items need an authoritative source.
func ChooseMode(item ParsedFoodItem) EstimateMode {
	if item.Brand != "" || item.Restaurant != "" || !item.IsGeneric {
		return ModeWebSearch
	}
	return ModeBestEstimate
}

// resolveItem never fails; the error is set only for configuration problems.
func (o *Orchestrator) resolveItem(ctx context.Context, item ParsedFoodItem) (result NutritionResult, configErr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic resolving %q: %v\n%s", item.Name, r, debug.Stack())
			result, configErr = ErrorResult(), nil
		}
	}()

	if o.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.itemTimeout)
		defer cancel()
	}

	if o.database != nil && item.IsGeneric && item.SearchTerm != "" {
		res, err := o.database.LookupInDatabase(ctx, item)
		if res != nil {
			return *res, nil
		}
		if errors.Is(err, ErrConfiguration) {
			configErr = err
		}
		log.Printf("Database miss for %q, falling back to estimator: %v", item.SearchTerm, err)
	}

	res, err := o.estimate(ctx, item)
	if err != nil {
		log.Printf("Estimator failed for %q: %v", item.HumanizedName(), err)
		if errors.Is(err, ErrConfiguration) {
			configErr = err
		}
		return ErrorResult(), configErr
	}
	return res, configErr
}

func (o *Orchestrator) estimate(ctx context.Context, item ParsedFoodItem) (NutritionResult, error) {
	if o.estimator == nil {
		return NutritionResult{}, fmt.Errorf("%w: no estimator configured", ErrConfiguration)
	}

	mode := ChooseMode(item)
	res, err := o.estimator.Estimate(ctx, item, mode)
	if err != nil {
		return NutritionResult{}, err
	}
	if res.Source == SourceError {
		return ErrorResult(), nil
	}

	res.Nutrients = res.Nutrients.Clamped()
	res.Source = mode.Source()
	return res, nil
}
