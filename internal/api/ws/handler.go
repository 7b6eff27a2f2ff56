package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/domain/activation"
	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/domain/layout"
	"github.com/workbenchd/workbench/internal/domain/panel"
	"github.com/workbenchd/workbench/internal/domain/project"
	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
	"github.com/workbenchd/workbench/internal/shared/id"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

// Handler terminates the control channel: it upgrades connections,
// dispatches inbound commands against the orchestration core, and fans
// state back out. It also implements activation.Navigator so navigate
// commands ride the staggered queue.
type Handler struct {
	hub      *Hub
	queue    *Queue
	store    *layout.Store
	registry *conversation.Registry
	poller   *conversation.Poller
	projects *project.Context
	sched    sched.Scheduler
	log      *logging.Logger
	metrics  *monitoring.Metrics

	// Set after construction; the engine needs the handler as its
	// navigator.
	engine *activation.Engine

	reportInterval time.Duration
	upgrader       websocket.Upgrader

	reportMu      sync.Mutex
	reportTimer   sched.Timer
	reportStopped bool
}

// NewHandler creates a control-channel handler.
func NewHandler(
	hub *Hub,
	queue *Queue,
	store *layout.Store,
	registry *conversation.Registry,
	poller *conversation.Poller,
	projects *project.Context,
	scheduler sched.Scheduler,
	log *logging.Logger,
	metrics *monitoring.Metrics,
	reportInterval time.Duration,
) *Handler {
	return &Handler{
		hub:            hub,
		queue:          queue,
		store:          store,
		registry:       registry,
		poller:         poller,
		projects:       projects,
		sched:          scheduler,
		log:            log,
		metrics:        metrics,
		reportInterval: reportInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local workbench tool; the embedded UI connects from its own
			// origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetEngine wires the activation engine after construction.
func (h *Handler) SetEngine(e *activation.Engine) { h.engine = e }

// Navigate queues one navigate command for staggered broadcast.
func (h *Handler) Navigate(panelID id.PanelID, key conversation.Key) {
	k := key
	h.queue.Enqueue(func() {
		if h.metrics != nil {
			h.metrics.NavigateCommands.Inc()
		}
		h.hub.Broadcast(Message{Type: MsgNavigate, PanelID: panelID.String(), Key: &k})
	})
}

// Start begins the periodic state report loop.
func (h *Handler) Start() {
	if h.reportInterval <= 0 {
		return
	}
	h.reportMu.Lock()
	h.reportStopped = false
	h.reportTimer = h.sched.After(h.reportInterval, h.reportLoop)
	h.reportMu.Unlock()
}

// Stop tears down the report loop.
func (h *Handler) Stop() {
	h.reportMu.Lock()
	h.reportStopped = true
	if h.reportTimer != nil {
		h.reportTimer.Stop()
		h.reportTimer = nil
	}
	h.reportMu.Unlock()
}

func (h *Handler) reportLoop() {
	if h.hub.ClientCount() > 0 {
		h.hub.Broadcast(h.stateReport())
	}
	h.reportMu.Lock()
	if !h.reportStopped {
		h.reportTimer = h.sched.After(h.reportInterval, h.reportLoop)
	}
	h.reportMu.Unlock()
}

// HandleConnection upgrades one HTTP request into a control-channel
// connection. The first outbound frame is a full state report so a
// reconnecting client resynchronizes without replay.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("control upgrade failed", zap.Error(err))
		return
	}
	client := newClient(h.hub, conn)
	h.hub.register(client)

	go client.writePump()
	client.Send(h.stateReport())
	go client.readPump(h.dispatch)
}

// OnConversationChange is registered with the registry and fans attention
// and status transitions out to every client. A completed or manually
// finished conversation additionally carries the panels that show it, so
// the UI can offer to close them.
func (h *Handler) OnConversationChange(conv conversation.Conversation) {
	cc := conv
	msg := Message{Type: MsgConversationUpdate, Conversation: &cc, Key: &cc.Key}
	if conv.Status == conversation.StatusCompleted || conv.ManualFinished {
		msg.Type = MsgConversationFinished
		msg.PanelsToClose = h.panelsShowing(conv.Key)
	}
	h.hub.Broadcast(msg)
}

// NotifyDeleted tells clients a conversation is gone along with the
// panels that were bound to it.
func (h *Handler) NotifyDeleted(key conversation.Key) {
	k := key
	h.hub.Broadcast(Message{
		Type:          MsgConversationDeleted,
		Key:           &k,
		PanelsToClose: h.panelsShowing(key),
	})
}

func (h *Handler) panelsShowing(key conversation.Key) []string {
	var out []string
	for _, p := range h.store.Snapshot().Panels() {
		if p.Component != panel.Conversation && p.Component != panel.ConversationLite {
			continue
		}
		if p.Config[panel.ConfigAccountID] == key.AccountID && p.Config[panel.ConfigSessionID] == key.SessionID {
			out = append(out, p.ID.String())
		}
	}
	return out
}

func (h *Handler) dispatch(c *Client, msg Message) {
	switch msg.Type {
	case MsgPing:
		c.Send(Message{Type: MsgPong})
	case MsgSnapshotRequest:
		c.Send(h.stateReport())
	case MsgPanelAdd:
		h.handlePanelAdd(c, msg)
	case MsgPanelRemove:
		h.handlePanelRemove(c, msg)
	case MsgSelectTab:
		h.handleSelectTab(c, msg)
	case MsgEnsurePanel:
		h.handleEnsurePanel(c, msg)
	case MsgLayoutReset:
		h.handleLayoutReset()
	case MsgActivate:
		h.handleActivate(msg)
	case MsgProjectSwitch:
		h.handleProjectSwitch(c, msg)
	default:
		c.Send(Message{Type: MsgError, Error: "unknown message type: " + msg.Type})
	}
}

func (h *Handler) handlePanelAdd(c *Client, msg Message) {
	component := panel.Component(msg.Component)
	p := &layout.Panel{
		ID:        id.NewPanelID(),
		Component: component,
		Config:    msg.Config,
	}
	err := h.store.Mutate(layout.AddPanel{
		Panel:    p,
		TargetID: msg.Target,
		Location: layout.DockLocation(msg.Location),
	})
	if err != nil {
		c.Send(Message{Type: MsgPanelAddFailed, Target: msg.Target, Component: msg.Component, Error: err.Error()})
		return
	}
	h.watchIfConversation(p)
	h.hub.Broadcast(Message{Type: MsgPanelAdded, PanelID: p.ID.String(), Component: msg.Component})
	h.hub.Broadcast(h.stateReport())
}

func (h *Handler) handlePanelRemove(c *Client, msg Message) {
	panelID := id.PanelID(msg.Target)
	if err := h.store.Mutate(layout.RemovePanel{PanelID: panelID}); err != nil {
		c.Send(Message{Type: MsgPanelRemoveFailed, Target: msg.Target, Error: err.Error()})
		return
	}
	h.poller.Unwatch(panelID)
	h.hub.Broadcast(Message{Type: MsgPanelRemoved, PanelID: msg.Target})
	h.hub.Broadcast(h.stateReport())
}

// handleSelectTab resolves its target as a panel id first and a component
// kind second, so the palette can say "select-tab mission-control"
// without knowing ids. Selecting a conversation panel acknowledges its
// attention state.
func (h *Handler) handleSelectTab(c *Client, msg Message) {
	target := h.resolvePanel(msg.Target)
	if target == nil {
		c.Send(Message{Type: MsgSelectTabFailed, Target: msg.Target, Error: "no panel matches target"})
		return
	}
	if err := h.store.Mutate(layout.SelectPanel{PanelID: target.ID}); err != nil {
		c.Send(Message{Type: MsgSelectTabFailed, Target: msg.Target, Error: err.Error()})
		return
	}
	h.markSeenIfConversation(target)
	h.syncVisibility()
	h.hub.Broadcast(Message{Type: MsgTabSelected, PanelID: target.ID.String()})
	h.hub.Broadcast(h.stateReport())
}

// handleEnsurePanel selects an existing panel of the component, creating
// it first when absent. Idempotent: re-issuing converges on one panel.
func (h *Handler) handleEnsurePanel(c *Client, msg Message) {
	component := panel.Component(msg.Component)
	for _, p := range h.store.Snapshot().Panels() {
		if p.Component != component {
			continue
		}
		if err := h.store.Mutate(layout.SelectPanel{PanelID: p.ID}); err != nil {
			c.Send(Message{Type: MsgEnsurePanelFailed, Target: msg.Component, Error: err.Error()})
			return
		}
		h.markSeenIfConversation(p)
		h.syncVisibility()
		h.hub.Broadcast(Message{Type: MsgTabSelected, PanelID: p.ID.String()})
		h.hub.Broadcast(h.stateReport())
		return
	}

	p := &layout.Panel{ID: id.NewPanelID(), Component: component, Config: msg.Config}
	if err := h.store.Mutate(layout.AddPanel{Panel: p, Location: layout.DockCenter}); err != nil {
		c.Send(Message{Type: MsgEnsurePanelFailed, Target: msg.Component, Error: err.Error()})
		return
	}
	h.watchIfConversation(p)
	h.hub.Broadcast(Message{Type: MsgPanelAdded, PanelID: p.ID.String(), Component: msg.Component})
	h.hub.Broadcast(h.stateReport())
}

func (h *Handler) handleLayoutReset() {
	h.store.Reset()
	h.poller.UnwatchAll()
	h.rewatch()
	h.hub.Broadcast(Message{Type: MsgLayoutResetDone})
	h.hub.Broadcast(h.stateReport())
}

func (h *Handler) handleActivate(msg Message) {
	projectID := msg.ProjectID
	if projectID == "" {
		projectID = h.projects.ActiveID()
	}
	res := h.Activate(projectID, msg.Plan)
	h.hub.Broadcast(Message{Type: MsgActivationResult, ProjectID: projectID, Result: &res})
	h.hub.Broadcast(h.stateReport())
}

// Activate runs an activation plan, installs watches for the resulting
// bindings, and syncs visibility. Shared by the control channel and the
// REST surface.
func (h *Handler) Activate(projectID string, plan []activation.Binding) activation.Result {
	res := h.engine.Activate(projectID, plan)
	for _, b := range append(res.Reused, res.Created...) {
		if !h.poller.Watched(b.PanelID) {
			h.poller.Watch(b.PanelID, b.Key, false)
		}
	}
	h.syncVisibility()
	return res
}

func (h *Handler) handleProjectSwitch(c *Client, msg Message) {
	if err := h.SwitchProject(msg.ProjectID); err != nil {
		c.Send(Message{Type: MsgProjectSwitchFailed, Target: msg.ProjectID, Error: err.Error()})
		return
	}
	h.hub.Broadcast(Message{Type: MsgProjectSwitched, ProjectID: msg.ProjectID})
	h.hub.Broadcast(h.stateReport())
}

// SwitchProject swaps the whole workspace: new layout tree, new watch
// set, and an activation pass that reopens the project's active
// conversations in their panes.
func (h *Handler) SwitchProject(projectID string) error {
	proj, err := h.projects.Switch(projectID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	h.store.Load(ctx, proj.ID)

	h.poller.UnwatchAll()
	h.rewatch()

	var plan []activation.Binding
	for _, conv := range h.registry.Active(proj.ID) {
		plan = append(plan, activation.Binding{AccountID: conv.Key.AccountID, SessionID: conv.Key.SessionID})
	}
	if len(plan) > 0 {
		h.Activate(proj.ID, plan)
	}
	return nil
}

// BroadcastReport pushes a fresh state report to every client.
func (h *Handler) BroadcastReport() {
	h.hub.Broadcast(h.stateReport())
}

// stateReport renders the full tree into units. Visibility comes from
// tree position: the selected tab of each tabset.
func (h *Handler) stateReport() Message {
	tree := h.store.Snapshot()
	visible := make(map[id.PanelID]bool)
	for _, p := range tree.VisiblePanels() {
		visible[p.ID] = true
	}
	var units []panel.Unit
	for _, p := range tree.Panels() {
		units = append(units, panel.Render(p.Component, p.Config, p.ID, visible[p.ID]))
	}
	return Message{
		Type:            MsgStateReport,
		Panels:          units,
		ActiveProjectID: h.projects.ActiveID(),
	}
}

// resolvePanel interprets a select target as panel id, then component.
func (h *Handler) resolvePanel(target string) *layout.Panel {
	tree := h.store.Snapshot()
	if p, _ := tree.FindPanel(id.PanelID(target)); p != nil {
		return p
	}
	for _, p := range tree.Panels() {
		if p.Component == panel.Component(target) {
			return p
		}
	}
	return nil
}

func (h *Handler) watchIfConversation(p *layout.Panel) {
	if p.Component != panel.Conversation && p.Component != panel.ConversationLite {
		return
	}
	key := conversation.Key{
		AccountID: p.Config[panel.ConfigAccountID],
		SessionID: p.Config[panel.ConfigSessionID],
	}
	if key.AccountID == "" || key.SessionID == "" {
		return
	}
	h.poller.Watch(p.ID, key, false)
}

func (h *Handler) markSeenIfConversation(p *layout.Panel) {
	if p.Component != panel.Conversation && p.Component != panel.ConversationLite {
		return
	}
	key := conversation.Key{
		AccountID: p.Config[panel.ConfigAccountID],
		SessionID: p.Config[panel.ConfigSessionID],
	}
	if key.AccountID == "" || key.SessionID == "" {
		return
	}
	h.registry.MarkSeen(key)
}

// rewatch installs watches for every bound conversation panel in the
// current tree.
func (h *Handler) rewatch() {
	for _, p := range h.store.Snapshot().Panels() {
		h.watchIfConversation(p)
	}
	h.syncVisibility()
}

// syncVisibility pushes tree-derived visibility into the poller so hidden
// panels stop polling.
func (h *Handler) syncVisibility() {
	tree := h.store.Snapshot()
	visible := make(map[id.PanelID]bool)
	for _, p := range tree.VisiblePanels() {
		visible[p.ID] = true
	}
	for _, p := range tree.Panels() {
		if p.Component != panel.Conversation && p.Component != panel.ConversationLite {
			continue
		}
		if h.poller.Watched(p.ID) {
			h.poller.SetVisible(p.ID, visible[p.ID])
		}
	}
}
