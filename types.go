package foodproxy

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/google/uuid"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NutritionItem is a single recognized food item with its macro estimate.
// Produced only by response coercion; treat as immutable once built.
type NutritionItem struct {
	Name          string  `json:"name"`
	Grams         float64 `json:"grams"`
	Kcal          float64 `json:"kcal"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
}

// MarshalJSON emits the canonical fields plus the legacy alias keys
// (amount_grams, calories, carbs) that older clients still read.
func (n NutritionItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"name":          n.Name,
		"grams":         n.Grams,
		"kcal":          n.Kcal,
		"protein":       n.Protein,
		"fat":           n.Fat,
		"carbohydrates": n.Carbohydrates,
		"amount_grams":  n.Grams,
		"calories":      n.Kcal,
		"carbs":         n.Carbohydrates,
	})
}

// NutritionTotals is the field-wise sum over a list of NutritionItem.
// Always derived, never accepted as input.
type NutritionTotals struct {
	Kcal          float64 `json:"kcal"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
}

func (t NutritionTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"kcal":          t.Kcal,
		"protein":       t.Protein,
		"fat":           t.Fat,
		"carbohydrates": t.Carbohydrates,
		"calories":      t.Kcal,
		"carbs":         t.Carbohydrates,
	})
}

// SumNutrition recomputes totals from the current item list. The sum over
// zero items is all-zero, which the pipeline treats as an invalid outcome.
func SumNutrition(items []NutritionItem) NutritionTotals {
	var t NutritionTotals
	for _, it := range items {
		t.Kcal += it.Kcal
		t.Protein += it.Protein
		t.Fat += it.Fat
		t.Carbohydrates += it.Carbohydrates
	}
	return t
}

// GateDecision is the outcome of the food-detection gate. IsFood == nil means
// the upstream answered but its response was unparseable, which is a
// different state from "upstream says this is not food" (IsFood == false).
type GateDecision struct {
	IsFood     *bool    `json:"is_food"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// ConfidenceOrZero returns the gate confidence, defaulting to 0 when absent.
func (d GateDecision) ConfidenceOrZero() float64 {
	if d.Confidence == nil {
		return 0
	}
	return *d.Confidence
}

// RecognitionOutcome is the parsed result of the full recognition call.
type RecognitionOutcome struct {
	Items      []NutritionItem
	Totals     NutritionTotals
	ModelNotes *string
}

// IsValid reports whether the outcome can back a success response:
// at least one item and a finite total kcal.
func (o RecognitionOutcome) IsValid() bool {
	if len(o.Items) == 0 {
		return false
	}
	if math.IsNaN(o.Totals.Kcal) || math.IsInf(o.Totals.Kcal, 0) {
		return false
	}
	return true
}

// RequestContext carries the per-request correlation id. It is created once
// per inbound request and threaded explicitly through every stage.
type RequestContext struct {
	TraceID string
}

// NewTraceID returns a short correlation id for requests that did not supply one.
func NewTraceID() string {
	return uuid.NewString()[:8]
}
