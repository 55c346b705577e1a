package report

import "github.com/mr1hm/go-perimeter-risk/internal/models"

const iconBase = "https://maps.google.com/mapfiles/ms/icons/"

// Color returns the marker color for a POI. PA points are colored by
// subtype when they mark a hazard zone.
func Color(p models.POI) string {
	switch p.Type {
	case models.POITypeRisk:
		return "red"
	case models.POITypeNeutral:
		return "yellow"
	case models.POITypeSupport:
		switch p.Subtype {
		case models.POISubtypeFlood:
			return "blue"
		case models.POISubtypeLandslide:
			return "orange"
		default:
			return "green"
		}
	case models.POITypeAccess:
		return "purple"
	case models.POITypeEgress:
		return "ltblue"
	default:
		return "red"
	}
}

func IconURL(p models.POI) string {
	return iconBase + Color(p) + "-dot.png"
}

func TypeLabel(t models.POIType) string {
	switch t {
	case models.POITypeRisk:
		return "Punto de Riesgo"
	case models.POITypeNeutral:
		return "Punto Neutro"
	case models.POITypeSupport:
		return "Punto de Apoyo"
	case models.POITypeAccess:
		return "Vialidad de Acceso"
	case models.POITypeEgress:
		return "Vialidad de Egreso"
	default:
		return string(t)
	}
}
