package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/domain/conversation"
)

// ListConversations returns registry state, optionally scoped to one
// project. active=true filters to the active working set.
func (h *Handlers) ListConversations(c *gin.Context) {
	projectID := c.Query("project")
	var convs []conversation.Conversation
	if c.Query("active") == "true" {
		convs = h.registry.Active(projectID)
	} else {
		convs = h.registry.List(projectID)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": convs,
	})
}

// GetConversation returns one conversation's registry state.
func (h *Handlers) GetConversation(c *gin.Context) {
	conv, ok := h.registry.Get(keyFromPath(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "conversation not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": conv,
	})
}

// SendMessage forwards a prompt upstream and optimistically moves the
// conversation to working without waiting for the next poll.
func (h *Handlers) SendMessage(c *gin.Context) {
	key := keyFromPath(c)

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.agent.SendMessage(c.Request.Context(), key, req.Text); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.registry.NoteSent(key)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StopConversation interrupts a streaming response upstream.
func (h *Handlers) StopConversation(c *gin.Context) {
	if err := h.agent.Stop(c.Request.Context(), keyFromPath(c)); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetName writes the user-assigned subject upstream and mirrors it
// locally. Idempotent.
func (h *Handlers) SetName(c *gin.Context) {
	key := keyFromPath(c)

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.agent.SetCustomName(c.Request.Context(), key, req.Name); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.registry.SetCustomName(key, req.Name)
	c.JSON(http.StatusOK, gin.H{"success": true, "name": req.Name})
}

// SetFinished writes the user's terminal flag upstream and mirrors it
// locally. Idempotent.
func (h *Handlers) SetFinished(c *gin.Context) {
	key := keyFromPath(c)

	var req struct {
		Finished *bool `json:"finished" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.agent.SetManualFinished(c.Request.Context(), key, *req.Finished); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.registry.SetManualFinished(key, *req.Finished)
	c.JSON(http.StatusOK, gin.H{"success": true, "finished": *req.Finished})
}

// MarkSeen acknowledges a conversation after the operator views it.
func (h *Handlers) MarkSeen(c *gin.Context) {
	key := keyFromPath(c)
	if !h.registry.MarkSeen(key) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "conversation not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RetryRateLimit is the explicit user retry that clears a sticky
// rate_limit state.
func (h *Handlers) RetryRateLimit(c *gin.Context) {
	key := keyFromPath(c)
	if !h.registry.RetryAfterRateLimit(key) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "conversation not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteConversation removes a conversation upstream and locally. The
// backing log is unrecoverable, so deletion requires explicit confirm.
func (h *Handlers) DeleteConversation(c *gin.Context) {
	key := keyFromPath(c)

	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "deletion requires confirm=true",
		})
		return
	}

	if err := h.agent.Delete(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.registry.Delete(key)
	h.control.NotifyDeleted(key)
	h.log.Info("conversation deleted",
		zap.String("account", key.AccountID),
		zap.String("session", key.SessionID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListPermissions returns pending permission requests upstream, optionally
// scoped to one conversation via account+session query params.
func (h *Handlers) ListPermissions(c *gin.Context) {
	var key *conversation.Key
	if acct, sess := c.Query("account"), c.Query("session"); acct != "" && sess != "" {
		key = &conversation.Key{AccountID: acct, SessionID: sess}
	}

	perms, err := h.agent.Permissions(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"permissions": perms,
	})
}

// PermissionDecision approves or denies a pending permission request.
func (h *Handlers) PermissionDecision(c *gin.Context) {
	var req struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.agent.PermissionDecision(c.Request.Context(), c.Param("permission"), *req.Approve); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
