package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
)

func poisOf(types ...models.POIType) []models.POI {
	out := make([]models.POI, 0, len(types))
	for i, t := range types {
		out = append(out, models.POI{ID: fmt.Sprintf("p%d", i), Type: t, Name: string(t)})
	}
	return out
}

func repeat(t models.POIType, n int) []models.POIType {
	out := make([]models.POIType, n)
	for i := range out {
		out[i] = t
	}
	return out
}

func TestClassify_Scenarios(t *testing.T) {
	pr, pa, pn := models.POITypeRisk, models.POITypeSupport, models.POITypeNeutral

	tests := []struct {
		name     string
		pois     []models.POI
		total    models.RiskLevel
		residual models.RiskLevel
		geo      models.GeoRisk
	}{
		{"four risk points", poisOf(pr, pr, pr, pr), models.RiskHigh, models.RiskMedium, models.GeoRiskAscending},
		{"three support points", poisOf(pa, pa, pa), models.RiskLow, models.RiskLow, models.GeoRiskDescending},
		{"empty", nil, models.RiskMedium, models.RiskLow, models.GeoRiskIndifferent},
		{"one of each", poisOf(pr, pa), models.RiskMedium, models.RiskLow, models.GeoRiskIndifferent},
		{"one risk three support", poisOf(pr, pa, pa, pa), models.RiskLow, models.RiskLow, models.GeoRiskDescending},
		{"two risk three support", poisOf(pr, pr, pa, pa, pa), models.RiskMedium, models.RiskLow, models.GeoRiskDescending},
		{"neutral only", poisOf(pn, pn, pn, pn, pn), models.RiskMedium, models.RiskLow, models.GeoRiskIndifferent},
		{"roads ignored", poisOf(models.POITypeAccess, models.POITypeEgress, pr), models.RiskMedium, models.RiskLow, models.GeoRiskAscending},
		{"unknown code treated as neutral", poisOf("XX", "??"), models.RiskMedium, models.RiskLow, models.GeoRiskIndifferent},
		{"high beats support", poisOf(pr, pr, pr, pr, pa, pa, pa, pa, pa), models.RiskHigh, models.RiskMedium, models.GeoRiskDescending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.pois)
			assert.Equal(t, tt.total, v.Total)
			assert.Equal(t, tt.residual, v.Residual)
			assert.Equal(t, tt.geo, v.Geographic)
			assert.Equal(t, ExistingControls(), v.Controls)
		})
	}
}

func TestClassify_CountRules(t *testing.T) {
	for pr := 0; pr <= 8; pr++ {
		for pa := 0; pa <= 8; pa++ {
			types := append(repeat(models.POITypeRisk, pr), repeat(models.POITypeSupport, pa)...)
			v := Classify(poisOf(types...))

			switch {
			case pr > 3:
				require.Equal(t, models.RiskHigh, v.Total, "pr=%d pa=%d", pr, pa)
				require.Equal(t, models.RiskMedium, v.Residual, "pr=%d pa=%d", pr, pa)
			case pr <= 1 && pa > 2:
				require.Equal(t, models.RiskLow, v.Total, "pr=%d pa=%d", pr, pa)
				require.Equal(t, models.RiskLow, v.Residual, "pr=%d pa=%d", pr, pa)
			default:
				require.Equal(t, models.RiskMedium, v.Total, "pr=%d pa=%d", pr, pa)
				require.Equal(t, models.RiskLow, v.Residual, "pr=%d pa=%d", pr, pa)
			}

			switch {
			case pr > pa:
				require.Equal(t, models.GeoRiskAscending, v.Geographic, "pr=%d pa=%d", pr, pa)
			case pr < pa:
				require.Equal(t, models.GeoRiskDescending, v.Geographic, "pr=%d pa=%d", pr, pa)
			default:
				require.Equal(t, models.GeoRiskIndifferent, v.Geographic, "pr=%d pa=%d", pr, pa)
			}

			require.NotEqual(t, models.RiskHigh, v.Residual)
		}
	}
}

func TestClassify_ControlsAreNotShared(t *testing.T) {
	a := Classify(nil)
	a.Controls[0] = "changed"

	b := Classify(nil)
	assert.Equal(t, "Sistema de vigilancia CCTV", b.Controls[0])
	assert.Len(t, b.Controls, 5)
}

func TestClassifyTags_MatchesClassify(t *testing.T) {
	pois := []models.POI{
		{ID: "1", Type: models.POITypeRisk},
		{ID: "2", Type: models.POITypeSupport, Subtype: models.POISubtypeFlood},
		{ID: "3", Type: models.POITypeSupport},
		{ID: "4", Type: models.POITypeSupport, Subtype: models.POISubtypeLandslide},
		{ID: "5", Type: models.POITypeNeutral},
	}
	tags := make([][]string, len(pois))
	for i, p := range pois {
		tags[i] = p.Tags()
	}

	assert.Equal(t, Classify(pois), ClassifyTags(tags))
}

func TestCount(t *testing.T) {
	c := Count(poisOf(models.POITypeRisk, models.POITypeNeutral, models.POITypeSupport, models.POITypeAccess, models.POITypeEgress, "bogus"))
	assert.Equal(t, Counts{PR: 1, PN: 2, PA: 1, Va: 1, Ve: 1}, c)
	assert.Equal(t, 6, c.Total())
}
