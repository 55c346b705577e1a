package analysis

import "github.com/mr1hm/go-perimeter-risk/internal/models"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// POIPayload is the POI shape exchanged with the analysis service. Types
// carries the type code followed by the subtype, when one is set.
type POIPayload struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Types []string `json:"types"`
	Lat   float64  `json:"lat"`
	Lng   float64  `json:"lng"`
}

type RiskRequest struct {
	Center      *LatLng      `json:"center"`
	POIs        []POIPayload `json:"pois"`
	MapImageURL *string      `json:"map_image_url"`
}

type RiskResponse struct {
	Total      string   `json:"riesgoTotal"`
	Residual   string   `json:"riesgoResidual"`
	Geographic string   `json:"riesgoGeografico"`
	Controls   []string `json:"controlesExistentes"`
}

type GeneralRequest struct {
	Description string       `json:"descripcion"`
	POIs        []POIPayload `json:"pois"`
	ImageBase64 *string      `json:"image_base64"`
}

type GeneralResponse struct {
	Summary string `json:"summary"`
}

type ControlsRequest struct {
	POIs        []POIPayload `json:"pois"`
	ImageBase64 *string      `json:"image_base64"`
}

type ControlsResponse struct {
	Controls []string `json:"controles"`
}

type ClassifyRequest struct {
	POIs        []POIPayload `json:"pois"`
	MapImageURL string       `json:"map_image_url"`
}

type Classification struct {
	ID      string  `json:"id"`
	Name    string  `json:"nombre"`
	Type    string  `json:"tipo"`
	Subtype *string `json:"subtipo"`
}

func PayloadFromPOIs(pois []models.POI) []POIPayload {
	out := make([]POIPayload, 0, len(pois))
	for _, p := range pois {
		out = append(out, POIPayload{
			ID:    p.ID,
			Name:  p.Name,
			Types: p.Tags(),
			Lat:   p.Latitude,
			Lng:   p.Longitude,
		})
	}
	return out
}

// Verdict validates the response levels and converts it to a model verdict.
func (r RiskResponse) Verdict() (models.RiskVerdict, error) {
	total, ok := models.ParseRiskLevel(r.Total)
	if !ok || total == models.RiskUnevaluated {
		return models.RiskVerdict{}, malformed("riesgoTotal %q", r.Total)
	}
	residual, ok := models.ParseRiskLevel(r.Residual)
	if !ok || residual == models.RiskUnevaluated {
		return models.RiskVerdict{}, malformed("riesgoResidual %q", r.Residual)
	}
	if residual.Severity() > total.Severity() {
		return models.RiskVerdict{}, malformed("riesgoResidual %q exceeds riesgoTotal %q", r.Residual, r.Total)
	}
	geo, ok := models.ParseGeoRisk(r.Geographic)
	if !ok || geo == models.GeoRiskUnevaluated {
		return models.RiskVerdict{}, malformed("riesgoGeografico %q", r.Geographic)
	}
	controls := append([]string{}, r.Controls...)
	return models.RiskVerdict{
		Total:      total,
		Residual:   residual,
		Geographic: geo,
		Controls:   controls,
	}, nil
}

func ResponseFromVerdict(v models.RiskVerdict) RiskResponse {
	controls := v.Controls
	if controls == nil {
		controls = []string{}
	}
	return RiskResponse{
		Total:      string(v.Total),
		Residual:   string(v.Residual),
		Geographic: string(v.Geographic),
		Controls:   controls,
	}
}

// Tags returns the type-tag lists of the payload, in order.
func Tags(pois []POIPayload) [][]string {
	out := make([][]string, len(pois))
	for i, p := range pois {
		out[i] = p.Types
	}
	return out
}
