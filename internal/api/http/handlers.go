// Package http provides the REST surface: conversation actions, layout
// reads and mutations, project switching, and the push-event ingress.
// Stateful coordination lives in the domain packages; handlers validate,
// delegate, and shape responses.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workbenchd/workbench/internal/api/ws"
	"github.com/workbenchd/workbench/internal/client"
	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/domain/layout"
	"github.com/workbenchd/workbench/internal/domain/project"
	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
)

// Handlers holds the REST handler dependencies.
type Handlers struct {
	log      *logging.Logger
	metrics  *monitoring.Metrics
	agent    *client.Agent
	registry *conversation.Registry
	poller   *conversation.Poller
	store    *layout.Store
	projects *project.Context
	control  *ws.Handler
}

// NewHandlers creates the REST handler set.
func NewHandlers(
	log *logging.Logger,
	metrics *monitoring.Metrics,
	agent *client.Agent,
	registry *conversation.Registry,
	poller *conversation.Poller,
	store *layout.Store,
	projects *project.Context,
	control *ws.Handler,
) *Handlers {
	return &Handlers{
		log:      log,
		metrics:  metrics,
		agent:    agent,
		registry: registry,
		poller:   poller,
		store:    store,
		projects: projects,
		control:  control,
	}
}

// Health reports service liveness and upstream circuit state.
func (h *Handlers) Health(c *gin.Context) {
	if h.metrics != nil {
		h.metrics.UpdateUptime()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "workbench",
		"agent_circuit": h.agent.BreakerState().String(),
		"project":       h.projects.ActiveID(),
	})
}

func keyFromPath(c *gin.Context) conversation.Key {
	return conversation.Key{
		AccountID: c.Param("account"),
		SessionID: c.Param("session"),
	}
}
