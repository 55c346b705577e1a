package models

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

type POIType string

const (
	POITypeRisk    POIType = "PR" // Punto de Riesgo
	POITypeNeutral POIType = "PN" // Punto Neutro
	POITypeSupport POIType = "PA" // Punto de Apoyo
	POITypeAccess  POIType = "Va" // Vialidad de Acceso
	POITypeEgress  POIType = "Ve" // Vialidad de Egreso
)

type POISubtype string

const (
	POISubtypeNone      POISubtype = ""
	POISubtypeFlood     POISubtype = "inundacion"
	POISubtypeLandslide POISubtype = "deslizamiento"
)

// POITypes lists every known type code in display order.
var POITypes = []POIType{POITypeRisk, POITypeNeutral, POITypeSupport, POITypeAccess, POITypeEgress}

type POI struct {
	ID        string     `json:"id"`
	Type      POIType    `json:"tipo"`
	Subtype   POISubtype `json:"subtipo,omitempty"`
	Name      string     `json:"nombre"`
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lng"`
}

// ParsePOIType matches a type code case-insensitively. Va and Ve keep their
// mixed-case canonical spelling.
func ParsePOIType(s string) (POIType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range POITypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

func ParsePOISubtype(s string) (POISubtype, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return POISubtypeNone, true
	case string(POISubtypeFlood):
		return POISubtypeFlood, true
	case string(POISubtypeLandslide):
		return POISubtypeLandslide, true
	default:
		return "", false
	}
}

// Tags returns the type-tag list form used by the analysis service: the type
// code first, followed by the subtype when one is set.
func (p POI) Tags() []string {
	tags := []string{string(p.Type)}
	if p.Subtype != POISubtypeNone {
		tags = append(tags, string(p.Subtype))
	}
	return tags
}

// Point returns the position in orb's (lng, lat) order.
func (p POI) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

func (p POI) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("poi id is required")
	}
	if t, ok := ParsePOIType(string(p.Type)); !ok || t != p.Type {
		return fmt.Errorf("poi %s: unknown type %q", p.ID, p.Type)
	}
	if sub, ok := ParsePOISubtype(string(p.Subtype)); !ok || sub != p.Subtype {
		return fmt.Errorf("poi %s: unknown subtype %q", p.ID, p.Subtype)
	}
	if p.Subtype != POISubtypeNone && p.Type != POITypeSupport {
		return fmt.Errorf("poi %s: subtype %q only applies to type PA", p.ID, p.Subtype)
	}
	if err := validateCoordinates(p.Latitude, p.Longitude); err != nil {
		return fmt.Errorf("poi %s: %w", p.ID, err)
	}
	return nil
}

func validateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %v", lat)
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return fmt.Errorf("invalid longitude: %v", lng)
	}
	return nil
}
