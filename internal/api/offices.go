package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mr1hm/go-perimeter-risk/internal/events"
	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/risk"
)

type officeRequest struct {
	Name       string   `json:"nombre" binding:"required"`
	Address    string   `json:"direccion"`
	Department string   `json:"departamento"`
	City       string   `json:"ciudad"`
	Zone       string   `json:"zona"`
	Capacity   int      `json:"aforo" binding:"min=0"`
	Facilities string   `json:"instalaciones"`
	Latitude   *float64 `json:"lat"`
	Longitude  *float64 `json:"lng"`
}

func (r officeRequest) details() models.OfficeDetails {
	return models.OfficeDetails{
		Name:       strings.TrimSpace(r.Name),
		Address:    r.Address,
		Department: r.Department,
		City:       r.City,
		Zone:       r.Zone,
		Capacity:   r.Capacity,
		Facilities: r.Facilities,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
	}
}

type locationRequest struct {
	Latitude  *float64 `json:"lat" binding:"required"`
	Longitude *float64 `json:"lng" binding:"required"`
}

type poiRequest struct {
	ID        string   `json:"id"`
	Type      string   `json:"tipo" binding:"required"`
	Subtype   string   `json:"subtipo"`
	Name      string   `json:"nombre"`
	Latitude  *float64 `json:"lat" binding:"required"`
	Longitude *float64 `json:"lng" binding:"required"`
}

type Stats struct {
	Offices     int            `json:"oficinas"`
	Evaluated   int            `json:"evaluadas"`
	Unevaluated int            `json:"sinEvaluar"`
	POIs        risk.Counts    `json:"pois"`
	ByTotal     map[string]int `json:"porRiesgoTotal"`
}

func (h *Handler) listOffices(c *gin.Context) {
	offices, err := h.repo.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, offices)
}

// createOffice registers an office with no POIs and an unevaluated verdict.
// The map center defaults to La Paz when no position is given.
func (h *Handler) createOffice(c *gin.Context) {
	var req officeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	unevaluated := models.UnevaluatedVerdict()
	office := models.Office{
		ID:        uuid.NewString(),
		Latitude:  models.DefaultLatitude,
		Longitude: models.DefaultLongitude,
		POIs:      []models.POI{},
		Verdict:   &unevaluated,
	}
	req.details().Apply(&office)

	if err := h.repo.Upsert(c.Request.Context(), &office); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, office)
}

func (h *Handler) getOffice(c *gin.Context) {
	office, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, office)
}

// updateOffice edits the descriptive fields. POIs and verdict are kept.
func (h *Handler) updateOffice(c *gin.Context) {
	var req officeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	office, err := h.repo.UpdateDetails(c.Request.Context(), c.Param("id"), req.details())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, office)
}

func (h *Handler) deleteOffice(c *gin.Context) {
	id := c.Param("id")
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.publish(id, events.KindDeleted, nil)
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id := c.Param("id")
	office, err := h.repo.UpdateLocation(c.Request.Context(), id, *req.Latitude, *req.Longitude)
	if err != nil {
		fail(c, err)
		return
	}
	h.publish(id, events.KindLocation, office)
	c.JSON(http.StatusOK, office)
}

func (h *Handler) addPOI(c *gin.Context) {
	var req poiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	t, ok := models.ParsePOIType(req.Type)
	if !ok {
		badRequest(c, "invalid tipo: "+req.Type)
		return
	}
	sub, ok := models.ParsePOISubtype(req.Subtype)
	if !ok {
		badRequest(c, "invalid subtipo: "+req.Subtype)
		return
	}

	poi := models.POI{
		ID:        req.ID,
		Type:      t,
		Subtype:   sub,
		Name:      strings.TrimSpace(req.Name),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	}
	if poi.ID == "" {
		poi.ID = uuid.NewString()
	}
	if poi.Name == "" {
		poi.Name = "Sin nombre"
	}

	id := c.Param("id")
	office, err := h.repo.AppendPOI(c.Request.Context(), id, poi)
	if err != nil {
		fail(c, err)
		return
	}
	h.publish(id, events.KindPOIs, office)
	c.JSON(http.StatusCreated, office)
}

// importNearby replaces the office POIs with the places found around its
// center. Every imported POI is PN until someone reclassifies it.
func (h *Handler) importNearby(c *gin.Context) {
	if h.finder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "nearby search not configured"})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	office, err := h.repo.Get(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}

	pois, err := h.finder.Nearby(ctx, office.Latitude, office.Longitude)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	office, err = h.repo.ReplacePOIs(ctx, id, pois)
	if err != nil {
		fail(c, err)
		return
	}
	h.publish(id, events.KindPOIs, office)
	c.JSON(http.StatusOK, office)
}

func (h *Handler) stats(c *gin.Context) {
	offices, err := h.repo.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	s := Stats{Offices: len(offices), ByTotal: map[string]int{}}
	for _, o := range offices {
		if o.Verdict.Evaluated() {
			s.Evaluated++
			s.ByTotal[string(o.Verdict.Total)]++
		} else {
			s.Unevaluated++
		}
		n := risk.Count(o.POIs)
		s.POIs.PR += n.PR
		s.POIs.PN += n.PN
		s.POIs.PA += n.PA
		s.POIs.Va += n.Va
		s.POIs.Ve += n.Ve
	}
	c.JSON(http.StatusOK, s)
}
