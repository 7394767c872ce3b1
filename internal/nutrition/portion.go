package nutrition

import (
	"sort"
	"strings"
)

// PortionWeights are the bonuses and penalties used to rank serving
// descriptions. The defaults were tuned against USDA portion text and are
// kept as-is for behavior parity.
type PortionWeights struct {
	ExactHint           float64
	HintSubstring       float64
	MinHintLength       int // substring hints must be longer than this
	NameMatch           float64
	DefaultSize         float64
	UnitMatch           float64
	WeakSliceMatch      float64
	UnspecifiedQuantity float64
	PreparedPenalty     float64
	SmallVariantPenalty float64
	CrustPenalty        float64
}

// DefaultPortionWeights returns the tuned scoring constants.
func DefaultPortionWeights() PortionWeights {
	return PortionWeights{
		ExactHint:           200,
		HintSubstring:       100,
		MinHintLength:       3,
		NameMatch:           150,
		DefaultSize:         80,
		UnitMatch:           70,
		WeakSliceMatch:      30,
		UnspecifiedQuantity: 40,
		PreparedPenalty:     -50,
		SmallVariantPenalty: -30,
		CrustPenalty:        -40,
	}
}

// placeholderGrams is the generic per-100g "portion" some records carry.
// It is only ever picked when nothing scored.
const placeholderGrams = 100

// PortionMatcher selects the serving that best fits a parsed item.
type PortionMatcher struct {
	weights PortionWeights
}

// NewPortionMatcher creates a PortionMatcher with the given weights.
func NewPortionMatcher(weights PortionWeights) *PortionMatcher {
	return &PortionMatcher{weights: weights}
}

var defaultMatcher = NewPortionMatcher(DefaultPortionWeights())

// SelectPortion picks a portion using the default weights.
func SelectPortion(portions []FoodPortion, item ParsedFoodItem) *FoodPortion {
	return defaultMatcher.SelectPortion(portions, item)
}

type scoredPortion struct {
	index int
	score float64
}

// SelectPortion returns the highest scoring portion with a usable gram
// weight, or nil. Equal scores keep input order.
func (m *PortionMatcher) SelectPortion(portions []FoodPortion, item ParsedFoodItem) *FoodPortion {
	if len(portions) == 0 {
		return nil
	}

	sig := newMatchSignals(item)
	scored := make([]scoredPortion, 0, len(portions))
	for i, p := range portions {
		if !p.HasUsableWeight() {
			continue
		}
		scored = append(scored, scoredPortion{index: i, score: m.score(p.Description, sig)})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].score > scored[b].score
	})

	if len(scored) > 0 && scored[0].score > 0 {
		chosen := portions[scored[0].index]
		return &chosen
	}

	for _, p := range portions {
		if p.HasUsableWeight() && p.GramWeight != placeholderGrams {
			chosen := p
			return &chosen
		}
	}
	return nil
}

// matchSignals is the item side of the comparison, normalized once.
type matchSignals struct {
	hint     string
	name     string
	singular string
	unit     string
}

func newMatchSignals(item ParsedFoodItem) matchSignals {
	name := strings.ToLower(strings.TrimSpace(item.Name))
	return matchSignals{
		hint:     strings.ToLower(strings.TrimSpace(item.PortionHint)),
		name:     name,
		singular: strings.TrimSuffix(name, "s"),
		unit:     NormalizeUnit(item.Unit),
	}
}

// score sums every rule that applies to a portion description.
func (m *PortionMatcher) score(description string, sig matchSignals) float64 {
	w := m.weights
	desc := strings.ToLower(strings.TrimSpace(description))
	var score float64

	if sig.hint != "" {
		if desc == sig.hint {
			score += w.ExactHint
		} else if len(sig.hint) > w.MinHintLength && strings.Contains(desc, sig.hint) {
			score += w.HintSubstring
		}
	}

	if sig.name != "" && (strings.Contains(desc, sig.name) || (sig.singular != "" && strings.Contains(desc, sig.singular))) {
		score += w.NameMatch
	}

	if containsAny(desc, "medium", "regular") {
		score += w.DefaultSize
	}

	switch sig.unit {
	case UnitSlice:
		if strings.Contains(desc, "slice") {
			if containsAny(desc, "snack", "thin", "small") {
				score += w.WeakSliceMatch
			} else {
				score += w.UnitMatch
			}
		}
	case UnitCup:
		if strings.Contains(desc, "cup") && !strings.Contains(desc, "mashed") {
			score += w.UnitMatch
		}
	case UnitTbsp:
		if containsAny(desc, "tablespoon", "tbsp") {
			score += w.UnitMatch
		}
	}

	if strings.Contains(desc, "quantity not specified") {
		score += w.UnspecifiedQuantity
	}

	if containsAny(desc, "mashed", "pureed", "baby") {
		score += w.PreparedPenalty
	}
	if containsAny(desc, "snack", "mini", "thin") {
		score += w.SmallVariantPenalty
	}
	if containsAny(desc, "crust not eaten", "without crust") {
		score += w.CrustPenalty
	}

	return score
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
