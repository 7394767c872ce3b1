package nutrition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
)

// DefaultSearchPageSize bounds the candidate list requested per search.
const DefaultSearchPageSize = 10

// FoodDatabase is the canonical nutrient database. Any non-success response
// is reported as an error and treated as "no data" by the resolver.
type FoodDatabase interface {
	SearchFoods(ctx context.Context, query string, pageSize int) ([]CandidateFood, error)
	GetFood(ctx context.Context, id string) (*FoodDetail, error)
}

// DatabaseResolver resolves generic items against the canonical database.
type DatabaseResolver struct {
	db       FoodDatabase
	matcher  *PortionMatcher
	pageSize int
}

// NewDatabaseResolver creates a resolver. A nil matcher uses the default weights.
func NewDatabaseResolver(db FoodDatabase, matcher *PortionMatcher) *DatabaseResolver {
	if matcher == nil {
		matcher = defaultMatcher
	}
	return &DatabaseResolver{
		db:       db,
		matcher:  matcher,
		pageSize: DefaultSearchPageSize,
	}
}

// LookupInDatabase returns nil when the estimator should be tried instead;
// the error then explains why. A non-nil result is always usable.
func (r *DatabaseResolver) LookupInDatabase(ctx context.Context, item ParsedFoodItem) (*NutritionResult, error) {
	if item.SearchTerm == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrNoMatch)
	}

	candidates, err := r.db.SearchFoods(ctx, item.SearchTerm, r.pageSize)
	if errors.Is(err, ErrConfiguration) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %v", ErrUpstreamUnavailable, item.SearchTerm, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates for %q", ErrNoMatch, item.SearchTerm)
	}

	// The search term is already in the database's naming convention, so
	// the top hit is taken as authoritative.
	food := candidates[0]
	quantity := item.EffectiveQuantity()

	detail, err := r.db.GetFood(ctx, food.ID)
	if err != nil || detail == nil {
		log.Printf("Detail fetch failed for %s (%s), using search result: %v", food.ID, food.Description, err)
		if food.Nutrients == nil {
			return nil, fmt.Errorf("%w: no nutrients for %s", ErrNoMatch, food.ID)
		}
		if IsWeightUnit(item.Unit) {
			res := weighedResult(food.ID, food.Description, *food.Nutrients, item)
			return &res, nil
		}
		res := estimateFromPer100g(food.ID, food.Description, *food.Nutrients, item)
		return &res, nil
	}

	description := detail.Description
	if description == "" {
		description = food.Description
	}

	if IsWeightUnit(item.Unit) {
		res := weighedResult(food.ID, description, detail.Nutrients, item)
		return &res, nil
	}

	portion := r.matcher.SelectPortion(detail.Portions, item)
	if portion == nil {
		res := estimateFromPer100g(food.ID, description, detail.Nutrients, item)
		return &res, nil
	}

	return &NutritionResult{
		Nutrients:          Scale(detail.Nutrients, portion.GramWeight, quantity),
		Source:             SourceDatabase,
		MatchedFoodID:      food.ID,
		MatchedDescription: description,
		MatchedPortion:     portion.Description,
		MatchedGrams:       round1(portion.GramWeight * quantity),
	}, nil
}

// weighedResult scales per-100g values to an amount given by weight.
func weighedResult(id, description string, per100g NutrientVector, item ParsedFoodItem) NutritionResult {
	quantity := item.EffectiveQuantity()
	grams := EstimateGrams(item.Unit, quantity)

	return NutritionResult{
		Nutrients:          Scale(per100g, grams, 1),
		Source:             SourceDatabase,
		MatchedFoodID:      id,
		MatchedDescription: description,
		MatchedPortion:     strconv.FormatFloat(quantity, 'f', -1, 64) + " " + NormalizeUnit(item.Unit),
		MatchedGrams:       round1(grams),
	}
}

func estimateFromPer100g(id, description string, per100g NutrientVector, item ParsedFoodItem) NutritionResult {
	quantity := item.EffectiveQuantity()
	unit := NormalizeUnit(item.Unit)
	grams := EstimateGrams(unit, quantity)
	if unit == "" {
		unit = UnitPiece
	}

	return NutritionResult{
		Nutrients:          Scale(per100g, grams, 1),
		Source:             SourceDatabaseEstimated,
		MatchedFoodID:      id,
		MatchedDescription: description,
		MatchedPortion:     strconv.FormatFloat(quantity, 'f', -1, 64) + " " + unit + " (estimated)",
		MatchedGrams:       round1(grams),
	}
}
