package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/domain/conversation"
)

// IngestEvent is the push-signal ingress: the upstream backend POSTs
// attention events here as they happen. A "done" event additionally arms
// the delayed re-polls that capture the final message once upstream
// settles.
func (h *Handlers) IngestEvent(c *gin.Context) {
	var ev conversation.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}
	if ev.Type == "" || ev.Key.AccountID == "" || ev.Key.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "event requires type and key",
		})
		return
	}

	repoll := h.registry.ApplyEvent(ev)
	if repoll {
		h.poller.ScheduleFinalPolls(ev.Key)
	}
	h.log.Debug("push event ingested",
		zap.String("type", string(ev.Type)),
		zap.String("account", ev.Key.AccountID),
		zap.String("session", ev.Key.SessionID),
		zap.Bool("repoll", repoll))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
