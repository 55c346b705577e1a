package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr1hm/go-perimeter-risk/internal/analysis"
	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

const jsonMarker = "### JSON"

type classification struct {
	ID      string  `json:"id"`
	Name    string  `json:"nombre"`
	Type    string  `json:"tipo"`
	Subtype *string `json:"subtipo"`
}

// parseClassifications reads the JSON array after the marker line and
// returns one classification per requested POI, in request order.
func parseClassifications(raw string, pois []analysis.POIPayload) ([]analysis.Classification, error) {
	_, after, ok := strings.Cut(raw, jsonMarker)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q marker", ErrInvalidFormat, jsonMarker)
	}

	var parsed []classification
	if err := json.Unmarshal([]byte(stripFences(after)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	byID := make(map[string]classification, len(parsed))
	for _, c := range parsed {
		if c.ID != "" {
			byID[c.ID] = c
		}
	}

	out := make([]analysis.Classification, 0, len(pois))
	for _, p := range pois {
		c, ok := byID[p.ID]
		if !ok {
			out = append(out, analysis.Classification{ID: p.ID, Name: p.Name, Type: string(models.POITypeNeutral)})
			continue
		}
		name := c.Name
		if name == "" {
			name = p.Name
		}
		t, sub := normalizeType(c.Type, c.Subtype)
		out = append(out, analysis.Classification{ID: p.ID, Name: name, Type: t, Subtype: sub})
	}
	return out, nil
}

// normalizeType maps the model's code onto a POI type. Hazard-zone codes
// given as a type become PA with that subtype; anything unknown is PN.
func normalizeType(code string, subtype *string) (string, *string) {
	if sub, ok := models.ParsePOISubtype(code); ok && sub != models.POISubtypeNone {
		s := string(sub)
		return string(models.POITypeSupport), &s
	}

	t, ok := models.ParsePOIType(code)
	if !ok {
		return string(models.POITypeNeutral), nil
	}
	if t != models.POITypeSupport || subtype == nil {
		return string(t), nil
	}
	if sub, ok := models.ParsePOISubtype(*subtype); ok && sub != models.POISubtypeNone {
		s := string(sub)
		return string(t), &s
	}
	return string(t), nil
}

func parseRisk(raw string) (analysis.RiskResponse, error) {
	fragment, err := outermostObject(raw)
	if err != nil {
		return analysis.RiskResponse{}, err
	}

	var resp analysis.RiskResponse
	if err := json.Unmarshal([]byte(fragment), &resp); err != nil {
		return analysis.RiskResponse{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	// Levels outside the legend are rejected.
	v, err := resp.Verdict()
	if err != nil {
		return analysis.RiskResponse{}, err
	}
	return analysis.ResponseFromVerdict(v), nil
}

// parseControls accepts controles_recomendados or controles, with items
// given as {"nombre": ...} objects or plain strings.
func parseControls(raw string) ([]string, error) {
	fragment, err := outermostObject(raw)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Recommended []json.RawMessage `json:"controles_recomendados"`
		Controls    []json.RawMessage `json:"controles"`
	}
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	items := parsed.Recommended
	if len(items) == 0 {
		items = parsed.Controls
	}

	controls := make([]string, 0, len(items))
	for _, item := range items {
		var obj struct {
			Name *string `json:"nombre"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Name != nil {
			controls = append(controls, *obj.Name)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			controls = append(controls, s)
			continue
		}
		controls = append(controls, string(item))
	}
	return controls, nil
}

func outermostObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("%w: no JSON object found", ErrInvalidFormat)
	}
	return raw[start : end+1], nil
}

func stripFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
