package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-perimeter-risk/internal/events"
	"github.com/mr1hm/go-perimeter-risk/internal/metrics"
	"github.com/mr1hm/go-perimeter-risk/internal/models"
	"github.com/mr1hm/go-perimeter-risk/internal/places"
	"github.com/mr1hm/go-perimeter-risk/internal/report"
	"github.com/mr1hm/go-perimeter-risk/internal/repository"
)

// NearbyFinder discovers POIs around a point. *places.Finder satisfies it.
type NearbyFinder interface {
	Nearby(ctx context.Context, lat, lng float64) ([]models.POI, error)
}

type Handler struct {
	repo        repository.OfficeRepository
	assembler   *report.Assembler
	finder      NearbyFinder
	broadcaster *events.Broadcaster
	metrics     *metrics.Metrics
}

// NewHandler wires the HTTP handlers. finder, broadcaster and m may be nil;
// the matching routes then answer 503 or are not registered.
func NewHandler(repo repository.OfficeRepository, assembler *report.Assembler, finder NearbyFinder, broadcaster *events.Broadcaster, m *metrics.Metrics) *Handler {
	return &Handler{
		repo:        repo,
		assembler:   assembler,
		finder:      finder,
		broadcaster: broadcaster,
		metrics:     m,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/stats", h.stats)
	api.GET("/events", h.streamEvents)

	oficinas := api.Group("/oficinas")
	oficinas.GET("", h.listOffices)
	oficinas.POST("", h.createOffice)
	oficinas.GET("/:id", h.getOffice)
	oficinas.PUT("/:id", h.updateOffice)
	oficinas.DELETE("/:id", h.deleteOffice)
	oficinas.PUT("/:id/location", h.updateLocation)
	oficinas.POST("/:id/pois", h.addPOI)
	oficinas.POST("/:id/pois/nearby", h.importNearby)
	oficinas.GET("/:id/geojson", h.geoJSON)
	oficinas.POST("/:id/verdict", h.ensureVerdict)
	oficinas.POST("/:id/narrative", h.refineNarrative)
	oficinas.GET("/:id/report", h.getReport)
	oficinas.GET("/:id/report.html", h.getReportHTML)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) publish(id string, kind events.Kind, office *models.Office) {
	if h.broadcaster == nil {
		return
	}
	e := events.Event{OfficeID: id, Kind: kind}
	if office != nil {
		e.Verdict = office.Verdict
	}
	h.broadcaster.Publish(e)
}

// fail maps domain errors to HTTP status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidOffice),
		errors.Is(err, repository.ErrInvalidPOI),
		errors.Is(err, report.ErrInvalidImage):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNoVerdict):
		status = http.StatusConflict
	case errors.Is(err, report.ErrNarrativeFailed):
		status = http.StatusBadGateway
	case errors.Is(err, places.ErrNoAPIKey):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
