package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/report"
)

// toGeoJSON renders the office center and its POIs for the map widget. The
// office is the first feature.
func toGeoJSON(o *models.Office) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	center := geojson.NewFeature(o.Center())
	center.ID = o.ID
	center.Properties["kind"] = "oficina"
	center.Properties["nombre"] = o.Name
	if o.Verdict != nil {
		center.Properties["riesgoTotal"] = o.Verdict.Total
		center.Properties["riesgoGeografico"] = o.Verdict.Geographic
	}
	fc.Append(center)

	for _, p := range o.POIs {
		f := geojson.NewFeature(p.Point())
		f.ID = p.ID
		f.Properties["kind"] = "poi"
		f.Properties["tipo"] = p.Type
		if p.Subtype != models.POISubtypeNone {
			f.Properties["subtipo"] = p.Subtype
		}
		f.Properties["nombre"] = p.Name
		f.Properties["color"] = report.Color(p)
		f.Properties["icon"] = report.IconURL(p)
		fc.Append(f)
	}

	return fc
}

func (h *Handler) geoJSON(c *gin.Context) {
	office, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(office))
}
