package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListProjects returns the workspace manifest's projects and the active
// one.
func (h *Handlers) ListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"projects": h.projects.List(),
		"active":   h.projects.ActiveID(),
	})
}

// SwitchProject activates another project: its layout tree is loaded and
// its active conversations reopened in their panes.
func (h *Handlers) SwitchProject(c *gin.Context) {
	projectID := c.Param("project")
	if err := h.control.SwitchProject(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.control.BroadcastReport()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"active":  projectID,
	})
}
