// Package analysisapi serves the analysis endpoints the perimeter service
// calls: classification, risk verdicts and narrative analysis.
package analysisapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-perimeter-risk/internal/analysis"
)

// Service is implemented by *llm.Analyzer.
type Service interface {
	Classify(ctx context.Context, req analysis.ClassifyRequest) ([]analysis.Classification, error)
	AnalyzeRisk(ctx context.Context, req analysis.RiskRequest) analysis.RiskResponse
	GeneralAnalysis(ctx context.Context, req analysis.GeneralRequest) (string, error)
	ControlsAnalysis(ctx context.Context, req analysis.ControlsRequest) ([]string, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.POST("/classify", h.classify)
	r.POST("/analyze-risk", h.analyzeRisk)
	r.POST("/general-analysis", h.generalAnalysis)
	r.POST("/controls-analysis", h.controlsAnalysis)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) classify(c *gin.Context) {
	var req analysis.ClassifyRequest
	if !bind(c, &req) {
		return
	}
	if req.POIs == nil {
		invalid(c, "pois is required")
		return
	}

	slog.Info("classify request", "pois", len(req.POIs))
	out, err := h.svc.Classify(c.Request.Context(), req)
	if err != nil {
		slog.Error("classify failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error en LLM: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// analyzeRisk never fails once the request is valid; the service falls back
// to the count-based classifier.
func (h *Handler) analyzeRisk(c *gin.Context) {
	var req analysis.RiskRequest
	if !bind(c, &req) {
		return
	}
	if req.Center == nil {
		invalid(c, "center is required")
		return
	}
	if req.POIs == nil {
		invalid(c, "pois is required")
		return
	}

	slog.Info("risk analysis request", "pois", len(req.POIs))
	c.JSON(http.StatusOK, h.svc.AnalyzeRisk(c.Request.Context(), req))
}

func (h *Handler) generalAnalysis(c *gin.Context) {
	var req analysis.GeneralRequest
	if !bind(c, &req) {
		return
	}
	if req.POIs == nil {
		invalid(c, "pois is required")
		return
	}

	slog.Info("general analysis request", "pois", len(req.POIs), "image", req.ImageBase64 != nil)
	summary, err := h.svc.GeneralAnalysis(c.Request.Context(), req)
	if err != nil {
		slog.Error("general analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error en LLM análisis general"})
		return
	}
	c.JSON(http.StatusOK, analysis.GeneralResponse{Summary: summary})
}

func (h *Handler) controlsAnalysis(c *gin.Context) {
	var req analysis.ControlsRequest
	if !bind(c, &req) {
		return
	}
	if req.POIs == nil {
		invalid(c, "pois is required")
		return
	}

	slog.Info("controls analysis request", "pois", len(req.POIs), "image", req.ImageBase64 != nil)
	controls, err := h.svc.ControlsAnalysis(c.Request.Context(), req)
	if err != nil {
		slog.Error("controls analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error en LLM controles"})
		return
	}
	c.JSON(http.StatusOK, analysis.ControlsResponse{Controls: controls})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		invalid(c, err.Error())
		return false
	}
	return true
}

func invalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": msg})
}
