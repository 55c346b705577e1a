package models

type RiskLevel string

const (
	RiskLow         RiskLevel = "Bajo"
	RiskMedium      RiskLevel = "Medio"
	RiskHigh        RiskLevel = "Alto"
	RiskUnevaluated RiskLevel = "Sin evaluar"
)

type GeoRisk string

const (
	GeoRiskAscending   GeoRisk = "A" // more risk points than support points
	GeoRiskIndifferent GeoRisk = "I"
	GeoRiskDescending  GeoRisk = "D"
	GeoRiskUnevaluated GeoRisk = "Sin evaluar"
)

type RiskVerdict struct {
	Total      RiskLevel `json:"riesgoTotal"`
	Residual   RiskLevel `json:"riesgoResidual"`
	Geographic GeoRisk   `json:"riesgoGeografico"`
	Controls   []string  `json:"controlesExistentes"`
}

func UnevaluatedVerdict() RiskVerdict {
	return RiskVerdict{
		Total:      RiskUnevaluated,
		Residual:   RiskUnevaluated,
		Geographic: GeoRiskUnevaluated,
		Controls:   []string{},
	}
}

// Evaluated reports whether v holds a computed verdict. A nil verdict or one
// whose total is the sentinel counts as unevaluated.
func (v *RiskVerdict) Evaluated() bool {
	return v != nil && v.Total != "" && v.Total != RiskUnevaluated
}

func (v RiskVerdict) Clone() RiskVerdict {
	out := v
	out.Controls = append([]string(nil), v.Controls...)
	if out.Controls == nil {
		out.Controls = []string{}
	}
	return out
}

// Severity ranks the evaluated levels Bajo < Medio < Alto. The sentinel and
// unknown values rank 0.
func (l RiskLevel) Severity() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskUnevaluated:
		return RiskLevel(s), true
	default:
		return "", false
	}
}

func ParseGeoRisk(s string) (GeoRisk, bool) {
	switch GeoRisk(s) {
	case GeoRiskAscending, GeoRiskIndifferent, GeoRiskDescending, GeoRiskUnevaluated:
		return GeoRisk(s), true
	default:
		return "", false
	}
}
