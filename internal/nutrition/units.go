package nutrition

import "strings"

// Canonical unit names understood by the normalizer.
const (
	UnitPiece = "piece"
	UnitCup   = "cup"
	UnitSlice = "slice"
	UnitTbsp  = "tbsp"
	UnitTsp   = "tsp"
	UnitOz    = "oz"
	UnitGram  = "g"
)

// defaultGramsPerUnit is the fallback weight of one unit when no portion
// data is available. Unknown units weigh 100g.
var defaultGramsPerUnit = map[string]float64{
	UnitPiece: 100,
	UnitCup:   240,
	UnitSlice: 30,
	UnitTbsp:  15,
	UnitTsp:   5,
	UnitOz:    28,
	UnitGram:  1,
}

const unknownUnitGrams = 100

var unitAliases = map[string]string{
	"pieces":      UnitPiece,
	"pc":          UnitPiece,
	"pcs":         UnitPiece,
	"item":        UnitPiece,
	"items":       UnitPiece,
	"whole":       UnitPiece,
	"cups":        UnitCup,
	"slices":      UnitSlice,
	"tablespoon":  UnitTbsp,
	"tablespoons": UnitTbsp,
	"tbs":         UnitTbsp,
	"tbsps":       UnitTbsp,
	"teaspoon":    UnitTsp,
	"teaspoons":   UnitTsp,
	"tsps":        UnitTsp,
	"ounce":       UnitOz,
	"ounces":      UnitOz,
	"gram":        UnitGram,
	"grams":       UnitGram,
	"gr":          UnitGram,
	"gm":          UnitGram,
}

// NormalizeUnit maps a unit string to its canonical name. Unrecognized
// units are returned lower-cased and trimmed.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

// IsWeightUnit reports whether unit is a mass. Weighed quantities are
// absolute amounts, never multiples of a serving.
func IsWeightUnit(unit string) bool {
	switch NormalizeUnit(unit) {
	case UnitGram, UnitOz:
		return true
	}
	return false
}

// GramsPerUnit returns the fallback gram weight of a single unit.
func GramsPerUnit(unit string) float64 {
	if g, ok := defaultGramsPerUnit[NormalizeUnit(unit)]; ok {
		return g
	}
	return unknownUnitGrams
}

// EstimateGrams returns the fallback total weight for quantity units.
func EstimateGrams(unit string, quantity float64) float64 {
	if !isPositiveFinite(quantity) {
		quantity = 1
	}
	return GramsPerUnit(unit) * quantity
}
