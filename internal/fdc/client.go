package fdc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nutrition-resolver/internal/config"
	"nutrition-resolver/internal/nutrition"
)

// USDA nutrient IDs for the tracked macronutrients.
const (
	NutrientIDEnergy        = 1008 // kcal
	NutrientIDEnergyAtwater = 2047 // kcal, Foundation foods
	NutrientIDEnergySpecial = 2048 // kcal, specific Atwater factors
	NutrientIDProtein       = 1003
	NutrientIDCarbohydrate  = 1005
	NutrientIDTotalFat      = 1004
)

// searchDataTypes restricts search to generic (non-branded) datasets.
const searchDataTypes = "Survey (FNDDS),SR Legacy,Foundation"

// Client is a client for the USDA FoodData Central API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new FoodData Central client.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.USDAAPIURL, "/"),
		apiKey:     cfg.USDAAPIKey,
	}
}

type searchResponse struct {
	Foods []searchFood `json:"foods"`
}

type searchFood struct {
	FdcID         int64            `json:"fdcId"`
	Description   string           `json:"description"`
	DataType      string           `json:"dataType"`
	FoodNutrients []searchNutrient `json:"foodNutrients"`
}

type searchNutrient struct {
	NutrientID int     `json:"nutrientId"`
	UnitName   string  `json:"unitName"`
	Value      float64 `json:"value"`
}

type foodResponse struct {
	FdcID         int64          `json:"fdcId"`
	Description   string         `json:"description"`
	FoodNutrients []foodNutrient `json:"foodNutrients"`
	FoodPortions  []foodPortion  `json:"foodPortions"`
}

type foodNutrient struct {
	Nutrient struct {
		ID       int    `json:"id"`
		UnitName string `json:"unitName"`
	} `json:"nutrient"`
	Amount *float64 `json:"amount"`
}

type foodPortion struct {
	GramWeight         float64 `json:"gramWeight"`
	Amount             float64 `json:"amount"`
	PortionDescription string  `json:"portionDescription"`
	Modifier           string  `json:"modifier"`
	MeasureUnit        struct {
		Name string `json:"name"`
	} `json:"measureUnit"`
}

// SearchFoods runs a keyword search and returns at most pageSize candidates
// in the API's relevance order.
func (c *Client) SearchFoods(ctx context.Context, query string, pageSize int) ([]nutrition.CandidateFood, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("dataType", searchDataTypes)

	var sr searchResponse
	if err := c.get(ctx, "/foods/search", params, &sr); err != nil {
		return nil, err
	}

	candidates := make([]nutrition.CandidateFood, 0, len(sr.Foods))
	for _, f := range sr.Foods {
		cand := nutrition.CandidateFood{
			ID:          strconv.FormatInt(f.FdcID, 10),
			Description: f.Description,
		}
		if len(f.FoodNutrients) > 0 {
			values := make(map[int]float64, len(f.FoodNutrients))
			for _, n := range f.FoodNutrients {
				if n.NutrientID == NutrientIDEnergy && !strings.EqualFold(n.UnitName, "kcal") {
					continue
				}
				values[n.NutrientID] = n.Value
			}
			v := mapNutrients(values)
			cand.Nutrients = &v
		}
		candidates = append(candidates, cand)
		if len(candidates) == pageSize {
			break
		}
	}
	return candidates, nil
}

// GetFood fetches the full record, including portions, for one food.
func (c *Client) GetFood(ctx context.Context, id string) (*nutrition.FoodDetail, error) {
	var fr foodResponse
	if err := c.get(ctx, "/food/"+url.PathEscape(id), url.Values{}, &fr); err != nil {
		return nil, err
	}

	values := make(map[int]float64, len(fr.FoodNutrients))
	for _, n := range fr.FoodNutrients {
		if n.Amount == nil {
			continue
		}
		if n.Nutrient.ID == NutrientIDEnergy && n.Nutrient.UnitName != "" && !strings.EqualFold(n.Nutrient.UnitName, "kcal") {
			continue
		}
		values[n.Nutrient.ID] = *n.Amount
	}

	portions := make([]nutrition.FoodPortion, 0, len(fr.FoodPortions))
	for _, p := range fr.FoodPortions {
		portions = append(portions, nutrition.FoodPortion{
			Description: describePortion(p),
			GramWeight:  p.GramWeight,
		})
	}

	return &nutrition.FoodDetail{
		ID:          strconv.FormatInt(fr.FdcID, 10),
		Description: fr.Description,
		Nutrients:   mapNutrients(values),
		Portions:    portions,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: USDA_API_KEY environment variable not set", nutrition.ErrConfiguration)
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", nutrition.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: fdc api error: status=%d body=%s", nutrition.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", nutrition.ErrUnparsableResponse, err)
	}
	return nil
}

// mapNutrients picks the tracked macronutrients out of an id->value map.
// Energy falls back to the Atwater variants Foundation foods report.
func mapNutrients(values map[int]float64) nutrition.NutrientVector {
	energy, ok := values[NutrientIDEnergy]
	if !ok {
		if energy, ok = values[NutrientIDEnergyAtwater]; !ok {
			energy = values[NutrientIDEnergySpecial]
		}
	}
	v := nutrition.NutrientVector{
		Calories: energy,
		Protein:  values[NutrientIDProtein],
		Carbs:    values[NutrientIDCarbohydrate],
		Fat:      values[NutrientIDTotalFat],
	}
	return v.Clamped()
}

// describePortion renders a portion the way FNDDS and SR Legacy spell them,
// e.g. "1 medium" or "1 cup, mashed".
func describePortion(p foodPortion) string {
	if d := strings.TrimSpace(p.PortionDescription); d != "" {
		return d
	}

	var parts []string
	if p.Amount > 0 {
		parts = append(parts, strconv.FormatFloat(p.Amount, 'f', -1, 64))
	}
	if unit := strings.TrimSpace(p.MeasureUnit.Name); unit != "" && unit != "undetermined" {
		parts = append(parts, unit)
	}
	if m := strings.TrimSpace(p.Modifier); m != "" {
		parts = append(parts, m)
	}
	return strings.Join(parts, " ")
}
