package nutrition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// mockFoodDatabase is an in-memory FoodDatabase.
type mockFoodDatabase struct {
	mu         sync.Mutex
	candidates []CandidateFood
	details    map[string]*FoodDetail
	searchErr  error
	detailErr  error

	searches []string
	fetched  []string
}

func (m *mockFoodDatabase) SearchFoods(ctx context.Context, query string, pageSize int) ([]CandidateFood, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, query)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if len(m.candidates) > pageSize {
		return m.candidates[:pageSize], nil
	}
	return m.candidates, nil
}

func (m *mockFoodDatabase) GetFood(ctx context.Context, id string) (*FoodDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, id)
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.details[id], nil
}

func (m *mockFoodDatabase) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searches)
}

var bananaPer100g = NutrientVector{Calories: 89, Protein: 1.1, Carbs: 22.8, Fat: 0.3}

func bananaDatabase() *mockFoodDatabase {
	return &mockFoodDatabase{
		candidates: []CandidateFood{
			{ID: "1105314", Description: "Bananas, ripe and slightly ripe, raw", Nutrients: &bananaPer100g},
			{ID: "173944", Description: "Bananas, raw"},
		},
		details: map[string]*FoodDetail{
			"1105314": {
				ID:          "1105314",
				Description: "Bananas, ripe and slightly ripe, raw",
				Nutrients:   bananaPer100g,
				Portions: []FoodPortion{
					{Description: "1 cup, mashed", GramWeight: 150},
					{Description: "1 medium", GramWeight: 118},
				},
			},
		},
	}
}

func TestLookupInDatabase(t *testing.T) {
	ctx := context.Background()
	banana := ParsedFoodItem{
		Name:        "banana",
		Quantity:    2,
		Unit:        "piece",
		SearchTerm:  "Bananas, raw",
		PortionHint: "1 medium",
		IsGeneric:   true,
	}

	t.Run("PortionMatched", func(t *testing.T) {
		db := bananaDatabase()
		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, banana)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res == nil {
			t.Fatal("Expected a result, got nil")
		}
		if res.Source != SourceDatabase {
			t.Errorf("Expected source '%s', got '%s'", SourceDatabase, res.Source)
		}
		if res.MatchedPortion != "1 medium" || res.MatchedGrams != 236 {
			t.Errorf("Unexpected portion %q / %v", res.MatchedPortion, res.MatchedGrams)
		}
		want := Scale(bananaPer100g, 118, 2)
		if res.Nutrients != want {
			t.Errorf("Expected %+v, got %+v", want, res.Nutrients)
		}
		if len(db.fetched) != 1 || db.fetched[0] != "1105314" {
			t.Errorf("Expected the first candidate to be fetched, got %v", db.fetched)
		}
		if db.searches[0] != "Bananas, raw" {
			t.Errorf("Expected search by search term, got %q", db.searches[0])
		}
	})

	t.Run("NoCandidates", func(t *testing.T) {
		db := &mockFoodDatabase{}
		item := ParsedFoodItem{Name: "xyzzyq", SearchTerm: "Xyzzyq, raw", IsGeneric: true}
		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, item)
		if res != nil {
			t.Fatalf("Expected nil result, got %+v", res)
		}
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("Expected ErrNoMatch, got %v", err)
		}
	})

	t.Run("SearchFailure", func(t *testing.T) {
		db := &mockFoodDatabase{searchErr: errors.New("status 503")}
		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, banana)
		if res != nil {
			t.Fatalf("Expected nil result, got %+v", res)
		}
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("SearchConfigurationErrorPassesThrough", func(t *testing.T) {
		db := &mockFoodDatabase{searchErr: fmt.Errorf("%w: USDA_API_KEY not set", ErrConfiguration)}
		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, banana)
		if res != nil {
			t.Fatalf("Expected nil result, got %+v", res)
		}
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("Expected ErrConfiguration, got %v", err)
		}
		if errors.Is(err, ErrUpstreamUnavailable) {
			t.Error("Configuration errors must not be reported as upstream outages")
		}
	})

	t.Run("DetailFailureUsesSearchNutrients", func(t *testing.T) {
		db := bananaDatabase()
		db.detailErr = errors.New("status 500")
		item := banana
		item.Quantity = 1
		item.Unit = "cup"

		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, item)
		if err != nil || res == nil {
			t.Fatalf("Expected a degraded result, got %v / %v", res, err)
		}
		if res.Source != SourceDatabaseEstimated {
			t.Errorf("Expected source '%s', got '%s'", SourceDatabaseEstimated, res.Source)
		}
		want := NutrientVector{Calories: 214, Protein: 2.6, Carbs: 54.7, Fat: 0.7}
		if res.Nutrients != want {
			t.Errorf("Expected %+v, got %+v", want, res.Nutrients)
		}
		if res.MatchedGrams != 240 {
			t.Errorf("Expected 240g, got %v", res.MatchedGrams)
		}
	})

	t.Run("DetailFailureWithoutSearchNutrients", func(t *testing.T) {
		db := bananaDatabase()
		db.candidates = db.candidates[1:]
		db.detailErr = errors.New("status 500")

		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, banana)
		if res != nil {
			t.Fatalf("Expected nil result, got %+v", res)
		}
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("Expected ErrNoMatch, got %v", err)
		}
	})

	t.Run("NoPortionsFallsBackToPer100g", func(t *testing.T) {
		db := bananaDatabase()
		db.details["1105314"].Portions = nil

		res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, banana)
		if err != nil || res == nil {
			t.Fatalf("Expected a degraded result, got %v / %v", res, err)
		}
		if res.Source != SourceDatabaseEstimated {
			t.Errorf("Expected source '%s', got '%s'", SourceDatabaseEstimated, res.Source)
		}
		if res.MatchedGrams != 200 {
			t.Errorf("Expected 2 pieces to weigh 200g, got %v", res.MatchedGrams)
		}
		if res.Nutrients != Scale(bananaPer100g, 200, 1) {
			t.Errorf("Unexpected nutrients %+v", res.Nutrients)
		}
	})
}

func TestLookupInDatabase_WeighedAmounts(t *testing.T) {
	ctx := context.Background()
	chickenPer100g := NutrientVector{Calories: 165, Protein: 31, Carbs: 0, Fat: 3.6}
	chicken := func() *mockFoodDatabase {
		return &mockFoodDatabase{
			candidates: []CandidateFood{{ID: "171077", Description: "Chicken, broilers or fryers, breast, meat only, cooked, roasted", Nutrients: &chickenPer100g}},
			details: map[string]*FoodDetail{
				"171077": {
					ID:          "171077",
					Description: "Chicken, broilers or fryers, breast, meat only, cooked, roasted",
					Nutrients:   chickenPer100g,
					Portions:    []FoodPortion{{Description: "1 breast", GramWeight: 172}},
				},
			},
		}
	}

	tests := []struct {
		name        string
		unit        string
		quantity    float64
		setup       func(db *mockFoodDatabase)
		wantGrams   float64
		wantPortion string
		wantCal     float64
	}{
		{"GramsIgnoreServingPortions", "g", 200, nil, 200, "200 g", 330},
		{"GramAlias", "grams", 50, nil, 50, "50 g", 83},
		{"Ounces", "oz", 4, nil, 112, "4 oz", 185},
		{"NoPortions", "g", 200, func(db *mockFoodDatabase) { db.details["171077"].Portions = nil }, 200, "200 g", 330},
		{"DetailFailure", "g", 200, func(db *mockFoodDatabase) { db.detailErr = errors.New("status 500") }, 200, "200 g", 330},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := chicken()
			if tt.setup != nil {
				tt.setup(db)
			}
			item := ParsedFoodItem{Name: "chicken breast", Quantity: tt.quantity, Unit: tt.unit, SearchTerm: "Chicken breast, roasted", IsGeneric: true}

			res, err := NewDatabaseResolver(db, nil).LookupInDatabase(ctx, item)
			if err != nil || res == nil {
				t.Fatalf("Expected a result, got %v / %v", res, err)
			}
			if res.Source != SourceDatabase {
				t.Errorf("Expected source '%s', got '%s'", SourceDatabase, res.Source)
			}
			if res.MatchedGrams != tt.wantGrams {
				t.Errorf("Expected %vg, got %v", tt.wantGrams, res.MatchedGrams)
			}
			if res.MatchedPortion != tt.wantPortion {
				t.Errorf("Expected portion %q, got %q", tt.wantPortion, res.MatchedPortion)
			}
			if res.Nutrients.Calories != tt.wantCal {
				t.Errorf("Expected %v kcal, got %v", tt.wantCal, res.Nutrients.Calories)
			}
		})
	}
}
