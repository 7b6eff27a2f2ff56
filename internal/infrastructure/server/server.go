// Package server assembles the orchestration service: collaborator
// clients, the layout store, the conversation registry and poller, the
// activation engine, and the HTTP plus control-channel surfaces.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/api/http"
	"github.com/workbenchd/workbench/internal/api/middleware"
	"github.com/workbenchd/workbench/internal/api/ws"
	"github.com/workbenchd/workbench/internal/client"
	"github.com/workbenchd/workbench/internal/domain/activation"
	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/domain/layout"
	"github.com/workbenchd/workbench/internal/domain/project"
	"github.com/workbenchd/workbench/internal/infrastructure/config"
	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	router   *gin.Engine
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	poller   *conversation.Poller
	control  *ws.Handler
	registry *conversation.Registry
	store    *layout.Store
	projects *project.Context
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing workbench server",
		zap.String("port", cfg.Server.Port),
		zap.String("agent_url", cfg.Upstream.AgentURL),
		zap.String("store_url", cfg.Upstream.StoreURL),
	)

	metrics := monitoring.NewMetrics()
	scheduler := sched.Real()

	// Workspace manifest is required; there is nothing to orchestrate
	// without projects.
	manifest, err := project.LoadManifest(cfg.Workspace.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	projects, err := project.NewContext(manifest, cfg.Workspace.DefaultProject)
	if err != nil {
		return nil, fmt.Errorf("workspace context: %w", err)
	}
	logger.Info("Workspace loaded",
		zap.Int("projects", len(manifest.Projects)),
		zap.String("active", projects.ActiveID()))

	// Collaborator clients.
	agent := client.NewAgent(cfg.Upstream.AgentURL, cfg.Upstream.Timeout)
	persist := client.NewStore(cfg.Upstream.StoreURL, cfg.Upstream.Timeout)

	// Layout store.
	storeOpts := []layout.StoreOption{
		layout.WithMetrics(metrics),
		layout.WithDebounce(cfg.Layout.Debounce),
	}
	if cfg.Layout.BackupDir != "" {
		storeOpts = append(storeOpts,
			layout.WithBackups(layout.NewBackups(cfg.Layout.BackupDir, cfg.Layout.BackupKeep, logger)))
	}
	store := layout.NewStore(persist, logger, scheduler, storeOpts...)

	// Conversation state.
	registry := conversation.NewRegistry(logger).WithMetrics(metrics)
	poller := conversation.NewPoller(agent, registry, scheduler, logger, conversation.Intervals{
		Normal:    cfg.Poll.Normal,
		Live:      cfg.Poll.Live,
		Aggregate: cfg.Poll.Aggregate,
		TailCount: cfg.Poll.TailCount,
	}).WithMetrics(metrics)

	// Control channel and activation engine. The handler is the engine's
	// navigator, so it is built first and wired after.
	hub := ws.NewHub(logger, metrics)
	queue := ws.NewQueue(scheduler, cfg.Activation.Stagger)
	control := ws.NewHandler(hub, queue, store, registry, poller, projects,
		scheduler, logger, metrics, cfg.Control.ReportInterval)
	engine := activation.NewEngine(store, control, logger, cfg.Layout.SplitCeiling).WithMetrics(metrics)
	control.SetEngine(engine)
	registry.SetOnChange(control.OnConversationChange)

	// Router.
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := http.NewHandlers(logger, metrics, agent, registry, poller, store, projects, control)

	router.GET("/health", handlers.Health)

	// Conversations
	router.GET("/conversations", handlers.ListConversations)
	router.GET("/accounts/:account/conversations/:session", handlers.GetConversation)
	router.POST("/accounts/:account/conversations/:session/messages", handlers.SendMessage)
	router.POST("/accounts/:account/conversations/:session/stop", handlers.StopConversation)
	router.PUT("/accounts/:account/conversations/:session/name", handlers.SetName)
	router.PUT("/accounts/:account/conversations/:session/finished", handlers.SetFinished)
	router.POST("/accounts/:account/conversations/:session/seen", handlers.MarkSeen)
	router.POST("/accounts/:account/conversations/:session/retry", handlers.RetryRateLimit)
	router.DELETE("/accounts/:account/conversations/:session", handlers.DeleteConversation)
	router.GET("/permissions", handlers.ListPermissions)
	router.POST("/permissions/:permission/decision", handlers.PermissionDecision)

	// Layout
	router.GET("/layout", handlers.GetLayout)
	router.POST("/layout/actions", handlers.ApplyAction)
	router.POST("/layout/reset", handlers.ResetLayout)
	router.PUT("/layout/template", handlers.SaveTemplate)
	router.POST("/activate", handlers.Activate)

	// Projects
	router.GET("/projects", handlers.ListProjects)
	router.POST("/projects/:project/switch", handlers.SwitchProject)

	// Push-event ingress from the upstream backend.
	router.POST("/events", handlers.IngestEvent)

	// Control channel
	router.GET("/stream", control.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		poller:   poller,
		control:  control,
		registry: registry,
		store:    store,
		projects: projects,
	}, nil
}

// Run loads the active project, starts the background loops, and serves
// until the listener fails.
func (s *Server) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s.store.Load(ctx, s.projects.ActiveID())
	cancel()

	s.poller.Start()
	s.control.Start()

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.poller.Stop()
	s.control.Stop()
	s.logger.Sync()
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
