package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StreamHandler is the long-lived viewer session. EventSource cannot set
// headers, so the token arrives as a query parameter. Each board change is
// pushed as a named board_update event; the payload is a refresh hint, not
// the authoritative board state.
func (h *Handler) StreamHandler(c *gin.Context) {
	token := c.Query("access_token")
	if token == "" {
		c.Status(http.StatusUnauthorized)
		return
	}
	if _, err := h.Auth.VerifyToken(token); err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	session := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(session)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("hello", gin.H{"ok": true})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-session.C():
			if !ok {
				return false
			}
			c.SSEvent("board_update", msg)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
