// Package risk turns the POIs around an office into a perimeter risk verdict.
// Classification depends only on how many POIs of each type are present;
// positions and distances from the center are not considered.
package risk

import (
	"slices"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

// existingControls is the placeholder controls list attached to every locally
// computed verdict. It does not depend on the input.
var existingControls = [...]string{
	"Sistema de vigilancia CCTV",
	"Control de acceso biométrico",
	"Guardias de seguridad 24/7",
	"Protocolo de evacuación",
	"Sistema contra incendios",
}

type Counts struct {
	PR int `json:"PR"`
	PN int `json:"PN"`
	PA int `json:"PA"`
	Va int `json:"Va"`
	Ve int `json:"Ve"`
}

func (c Counts) Total() int {
	return c.PR + c.PN + c.PA + c.Va + c.Ve
}

// Count buckets POIs by type. Unknown codes land in PN.
func Count(pois []models.POI) Counts {
	var c Counts
	for _, p := range pois {
		switch p.Type {
		case models.POITypeRisk:
			c.PR++
		case models.POITypeSupport:
			c.PA++
		case models.POITypeAccess:
			c.Va++
		case models.POITypeEgress:
			c.Ve++
		default:
			c.PN++
		}
	}
	return c
}

// Classify computes the verdict for a set of POIs. It is total: an empty list
// yields Medio/Bajo/I.
func Classify(pois []models.POI) models.RiskVerdict {
	c := Count(pois)
	return verdict(c.PR, c.PA)
}

// ClassifyTags classifies POIs given in the type-tag list form. A POI counts
// as PR or PA when its tag list contains that code.
func ClassifyTags(tags [][]string) models.RiskVerdict {
	var pr, pa int
	for _, t := range tags {
		if slices.Contains(t, string(models.POITypeRisk)) {
			pr++
		}
		if slices.Contains(t, string(models.POITypeSupport)) {
			pa++
		}
	}
	return verdict(pr, pa)
}

func verdict(pr, pa int) models.RiskVerdict {
	total := models.RiskMedium
	switch {
	case pr > 3:
		total = models.RiskHigh
	case pr <= 1 && pa > 2:
		total = models.RiskLow
	}

	// Residual never exceeds total. Medio maps to Bajo as well as Bajo does.
	residual := models.RiskLow
	if total == models.RiskHigh {
		residual = models.RiskMedium
	}

	geo := models.GeoRiskIndifferent
	switch {
	case pr > pa:
		geo = models.GeoRiskAscending
	case pr < pa:
		geo = models.GeoRiskDescending
	}

	return models.RiskVerdict{
		Total:      total,
		Residual:   residual,
		Geographic: geo,
		Controls:   ExistingControls(),
	}
}

// ExistingControls returns a fresh copy of the default controls list.
func ExistingControls() []string {
	out := make([]string, len(existingControls))
	copy(out, existingControls[:])
	return out
}
