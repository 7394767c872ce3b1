package nutrition

import (
	"math"
	"strings"
)

// Source tags which path produced a NutritionResult.
type Source string

const (
	SourceDatabase           Source = "database"
	SourceDatabaseEstimated  Source = "database_estimated"
	SourceEstimator          Source = "estimator"
	SourceEstimatorWebSearch Source = "estimator_websearch"
	SourceError              Source = "error"
)

// EstimateMode selects how the estimator grounds its answer.
type EstimateMode string

const (
	ModeWebSearch    EstimateMode = "websearch"
	ModeBestEstimate EstimateMode = "best-estimate"
)

// Source returns the tag an estimator result carries for this mode.
func (m EstimateMode) Source() Source {
	if m == ModeWebSearch {
		return SourceEstimatorWebSearch
	}
	return SourceEstimator
}

// ParsedFoodItem is one food mention extracted from free text.
type ParsedFoodItem struct {
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	SearchTerm  string  `json:"searchTerm,omitempty"`
	PortionHint string  `json:"portionHint,omitempty"`
	IsGeneric   bool    `json:"isGeneric"`
	Brand       string  `json:"brand,omitempty"`
	Restaurant  string  `json:"restaurant,omitempty"`
}

// EffectiveQuantity returns the quantity, defaulting to 1 when it is
// missing or not a finite positive number.
func (i ParsedFoodItem) EffectiveQuantity() float64 {
	if !isPositiveFinite(i.Quantity) {
		return 1
	}
	return i.Quantity
}

// HumanizedName combines brand or restaurant with the item name,
// e.g. "Fairlife Low Fat Milk" or "Big Mac from McDonald's".
func (i ParsedFoodItem) HumanizedName() string {
	name := strings.TrimSpace(i.Name)
	brand := strings.TrimSpace(i.Brand)
	restaurant := strings.TrimSpace(i.Restaurant)

	switch {
	case brand != "":
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(brand)) {
			return name
		}
		return brand + " " + name
	case restaurant != "":
		return name + " from " + restaurant
	default:
		return name
	}
}

// NutrientVector holds the four tracked nutrients.
type NutrientVector struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Add returns the element-wise sum of two vectors.
func (v NutrientVector) Add(o NutrientVector) NutrientVector {
	return NutrientVector{
		Calories: v.Calories + o.Calories,
		Protein:  v.Protein + o.Protein,
		Carbs:    v.Carbs + o.Carbs,
		Fat:      v.Fat + o.Fat,
	}
}

// Clamped replaces negative or non-finite values with zero; the database
// uses them for "unknown".
func (v NutrientVector) Clamped() NutrientVector {
	return NutrientVector{
		Calories: nonNegative(v.Calories),
		Protein:  nonNegative(v.Protein),
		Carbs:    nonNegative(v.Carbs),
		Fat:      nonNegative(v.Fat),
	}
}

// IsZero reports whether every nutrient is zero.
func (v NutrientVector) IsZero() bool {
	return v == NutrientVector{}
}

// FoodPortion is a named serving size for a food.
type FoodPortion struct {
	Description string  `json:"description"`
	GramWeight  float64 `json:"gramWeight"`
}

// HasUsableWeight reports whether the portion can be scaled against.
func (p FoodPortion) HasUsableWeight() bool {
	return isPositiveFinite(p.GramWeight)
}

// CandidateFood is a single database search hit. Nutrients is nil when the
// search response carried no per-100g values.
type CandidateFood struct {
	ID          string
	Description string
	Nutrients   *NutrientVector
}

// FoodDetail is the full database record for a candidate.
type FoodDetail struct {
	ID          string
	Description string
	Nutrients   NutrientVector // per 100g
	Portions    []FoodPortion
}

// NutritionResult is the resolution outcome for one ParsedFoodItem.
type NutritionResult struct {
	Nutrients          NutrientVector `json:"nutrients"`
	Source             Source         `json:"source"`
	MatchedFoodID      string         `json:"matchedFoodId,omitempty"`
	MatchedDescription string         `json:"matchedDescription,omitempty"`
	MatchedPortion     string         `json:"matchedPortion,omitempty"`
	MatchedGrams       float64        `json:"matchedGrams,omitempty"`
}

// ErrorResult is the zero-valued result every failed item degrades to.
func ErrorResult() NutritionResult {
	return NutritionResult{Source: SourceError}
}

// CountSources tallies results by source tag.
func CountSources(results []NutritionResult) map[Source]int {
	counts := make(map[Source]int)
	for _, r := range results {
		counts[r.Source]++
	}
	return counts
}

// Totals sums the nutrients of all results.
func Totals(results []NutritionResult) NutrientVector {
	var total NutrientVector
	for _, r := range results {
		total = total.Add(r.Nutrients)
	}
	return NutrientVector{
		Calories: math.Round(total.Calories),
		Protein:  round1(total.Protein),
		Carbs:    round1(total.Carbs),
		Fat:      round1(total.Fat),
	}
}

func isPositiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func nonNegative(f float64) float64 {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
