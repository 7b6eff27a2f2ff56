package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workbenchd/workbench/internal/domain/activation"
	"github.com/workbenchd/workbench/internal/domain/layout"
	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/shared/id"
)

// GetLayout returns the live tree in its persisted wire form.
func (h *Handlers) GetLayout(c *gin.Context) {
	doc, err := layout.Encode(h.store.Snapshot())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

type actionRequest struct {
	Kind      string            `json:"kind" binding:"required"`
	Component string            `json:"component,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
	TargetID  string            `json:"targetId,omitempty"`
	Location  string            `json:"location,omitempty"`
	PanelID   string            `json:"panelId,omitempty"`
	SplitID   string            `json:"splitId,omitempty"`
	Weights   []int             `json:"weights,omitempty"`
}

// ApplyAction applies one structural mutation to the live tree. A failed
// action leaves the tree untouched.
func (h *Handlers) ApplyAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}

	var (
		action     layout.Action
		newPanelID id.PanelID
	)
	switch req.Kind {
	case "add":
		newPanelID = id.NewPanelID()
		action = layout.AddPanel{
			Panel: &layout.Panel{
				ID:        newPanelID,
				Component: panel.Component(req.Component),
				Config:    req.Config,
			},
			TargetID: req.TargetID,
			Location: layout.DockLocation(req.Location),
		}
	case "remove":
		action = layout.RemovePanel{PanelID: id.PanelID(req.PanelID)}
	case "select":
		action = layout.SelectPanel{PanelID: id.PanelID(req.PanelID)}
	case "update-config":
		action = layout.UpdateConfig{PanelID: id.PanelID(req.PanelID), Config: req.Config}
	case "resize":
		action = layout.Resize{SplitID: req.SplitID, Weights: req.Weights}
	case "move":
		action = layout.MovePanel{PanelID: id.PanelID(req.PanelID), TargetID: req.TargetID}
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown action kind: " + req.Kind,
		})
		return
	}

	if err := h.store.Mutate(action); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.control.BroadcastReport()

	resp := gin.H{"success": true}
	if newPanelID != "" {
		resp["panelId"] = newPanelID.String()
	}
	c.JSON(http.StatusOK, resp)
}

// ResetLayout restores the project's template or the built-in default.
func (h *Handlers) ResetLayout(c *gin.Context) {
	tree := h.store.Reset()
	doc, err := layout.Encode(tree)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	h.control.BroadcastReport()
	c.Data(http.StatusOK, "application/json", doc)
}

// SaveTemplate snapshots the current tree as the project's reset target.
func (h *Handlers) SaveTemplate(c *gin.Context) {
	tree := h.store.Snapshot()
	h.store.Apply(tree, tree)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Activate runs an activation plan against the layout tree.
func (h *Handlers) Activate(c *gin.Context) {
	var req struct {
		ProjectID string               `json:"projectId"`
		Plan      []activation.Binding `json:"plan" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
		})
		return
	}
	if req.ProjectID == "" {
		req.ProjectID = h.projects.ActiveID()
	}

	res := h.control.Activate(req.ProjectID, req.Plan)
	h.control.BroadcastReport()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}
