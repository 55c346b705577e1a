package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-perimeter-risk/internal/report"
)

type narrativeRequest struct {
	ImageBase64 string `json:"image_base64"`
}

func (h *Handler) ensureVerdict(c *gin.Context) {
	verdict, source, err := h.assembler.EnsureVerdict(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analisis": verdict, "source": source})
}

// refineNarrative returns 200 when at least one of the two narrative parts
// succeeded; the failed part carries its own error message.
func (h *Handler) refineNarrative(c *gin.Context) {
	var req narrativeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	n, err := h.assembler.RefineWithNarrative(c.Request.Context(), c.Param("id"), req.ImageBase64)
	if errors.Is(err, report.ErrNarrativeFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "narrative": n})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) getReport(c *gin.Context) {
	rep, err := h.assembler.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) getReportHTML(c *gin.Context) {
	rep, err := h.assembler.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, rep); err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
