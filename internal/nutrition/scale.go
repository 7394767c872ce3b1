package nutrition

import "math"

// Scale converts a per-100g vector to gramWeight × quantity. Calories are
// rounded to whole units, the rest to one decimal.
func Scale(per100g NutrientVector, gramWeight, quantity float64) NutrientVector {
	if !isPositiveFinite(gramWeight) || !isPositiveFinite(quantity) {
		return NutrientVector{}
	}
	v := per100g.Clamped()
	factor := (gramWeight / 100) * quantity

	return NutrientVector{
		Calories: math.Round(v.Calories * factor),
		Protein:  round1(v.Protein * factor),
		Carbs:    round1(v.Carbs * factor),
		Fat:      round1(v.Fat * factor),
	}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
