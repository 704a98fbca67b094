package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"foodproxy"
)

// ParseError is the tagged failure returned when a repaired payload does not
// satisfy the data contract.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "coerce: " + e.Reason
}

// Gate turns gate-stage model output into a GateDecision. A payload whose
// root is not an object yields IsFood == nil, which callers must treat as an
// upstream fault, never as a content rejection.
func Gate(raw string) foodproxy.GateDecision {
	obj, ok := Object(raw)
	if !ok {
		return foodproxy.GateDecision{Reason: "invalid_gate_response"}
	}

	isFood := false
	if b, ok := obj["is_food"].(bool); ok {
		isFood = b
	}

	confidence := 0.0
	if f, ok := toFloat(obj["confidence"]); ok {
		confidence = clamp01(f)
	}

	reason := "unknown"
	if s, ok := obj["reason"].(string); ok && s != "" {
		reason = s
	}

	return foodproxy.GateDecision{IsFood: &isFood, Confidence: &confidence, Reason: reason}
}

// Recognition turns recognition-stage model output into validated nutrition
// items plus optional model notes.
func Recognition(raw string) ([]foodproxy.NutritionItem, *string, error) {
	obj, ok := Object(raw)
	if !ok {
		return nil, nil, &ParseError{Reason: "response root is not a JSON object"}
	}

	var list []any
	if itemsRaw, present := obj["items"]; present && itemsRaw != nil {
		list, ok = itemsRaw.([]any)
		if !ok {
			return nil, nil, &ParseError{Reason: "items is not a list"}
		}
	}

	items := make([]foodproxy.NutritionItem, 0, len(list))
	for i, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, nil, &ParseError{Reason: fmt.Sprintf("item %d is not an object", i)}
		}
		item, err := coerceItem(normalizeAliases(m), i)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}

	return items, modelNotes(obj), nil
}

// normalizeAliases folds alternate upstream key names into the canonical
// ones. The canonical name wins when both are present. Idempotent.
func normalizeAliases(item map[string]any) map[string]any {
	normalized := make(map[string]any, len(item))
	for k, v := range item {
		normalized[k] = v
	}
	fold := func(alias, canonical string) {
		v, ok := normalized[alias]
		if !ok {
			return
		}
		if _, exists := normalized[canonical]; !exists {
			normalized[canonical] = v
		}
		delete(normalized, alias)
	}
	fold("carbs", "carbohydrates")
	fold("calories", "kcal")
	fold("amount_grams", "grams")
	return normalized
}

func coerceItem(m map[string]any, index int) (foodproxy.NutritionItem, error) {
	name, _ := m["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return foodproxy.NutritionItem{}, &ParseError{Reason: fmt.Sprintf("item %d has no name", index)}
	}

	fields := make(map[string]float64, 5)
	for _, key := range []string{"grams", "kcal", "protein", "fat", "carbohydrates"} {
		f, ok := toFloat(m[key])
		if !ok {
			return foodproxy.NutritionItem{}, &ParseError{Reason: fmt.Sprintf("item %d field %q is missing or not numeric", index, key)}
		}
		// Macro fields are non-negative; out-of-range values are clamped, not rejected.
		if f < 0 {
			f = 0
		}
		fields[key] = f
	}

	return foodproxy.NutritionItem{
		Name:          name,
		Grams:         fields["grams"],
		Kcal:          fields["kcal"],
		Protein:       fields["protein"],
		Fat:           fields["fat"],
		Carbohydrates: fields["carbohydrates"],
	}, nil
}

func modelNotes(obj map[string]any) *string {
	v, ok := obj["model_notes"]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return &s
	}
	// Non-string notes are stringified rather than dropped.
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// toFloat accepts JSON numbers and numeric strings. NaN and infinities never
// pass; they count as non-numeric.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, isFinite(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, isFinite(f)
	default:
		return 0, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
