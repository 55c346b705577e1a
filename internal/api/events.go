package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// streamEvents relays office events as server-sent events. The optional
// office query parameter narrows the stream to one office.
func (h *Handler) streamEvents(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "events not enabled"})
		return
	}

	office := c.Query("office")
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			if office != "" && e.OfficeID != office {
				return true
			}
			c.SSEvent(string(e.Kind), e)
			return true
		}
	})
}
