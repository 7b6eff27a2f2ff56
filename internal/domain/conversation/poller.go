package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/workbenchd/workbench/internal/infrastructure/logging"
	"github.com/workbenchd/workbench/internal/infrastructure/monitoring"
	"github.com/workbenchd/workbench/internal/shared/id"
	"github.com/workbenchd/workbench/internal/shared/sched"
)

// Source is the upstream agent backend, poll side.
type Source interface {
	// Conversations lists conversations; empty projectID means all.
	Conversations(ctx context.Context, projectID string) ([]Snapshot, error)
	// Detail fetches one conversation with its tail artifacts.
	Detail(ctx context.Context, key Key, tailCount int) (Snapshot, error)
}

// Intervals holds the polling cadences.
type Intervals struct {
	Normal    time.Duration
	Live      time.Duration
	Aggregate time.Duration
	TailCount int
}

// finalPollDelays staggers the re-polls after a "done" push so the final
// message is captured despite eventual-consistency lag upstream.
var finalPollDelays = []time.Duration{
	500 * time.Millisecond,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
}

// Poller drives the poll signal: per-panel detail polls at normal or
// live cadence, one aggregate cross-project list poll, and the delayed
// final-message re-polls. Timers are torn down when a panel leaves
// visibility and restarted on return; live cadence downgrades to normal
// across an invisibility gap.
type Poller struct {
	src     Source
	reg     *Registry
	sched   sched.Scheduler
	log     *logging.Logger
	metrics *monitoring.Metrics
	cfg     Intervals

	mu       sync.Mutex
	watches  map[id.PanelID]*watch
	aggTimer sched.Timer
	stopped  bool
}

type watch struct {
	key     Key
	live    bool
	visible bool
	timer   sched.Timer
}

// NewPoller creates a poller.
func NewPoller(src Source, reg *Registry, scheduler sched.Scheduler, log *logging.Logger, cfg Intervals) *Poller {
	if cfg.TailCount <= 0 {
		cfg.TailCount = 20
	}
	return &Poller{
		src:     src,
		reg:     reg,
		sched:   scheduler,
		log:     log,
		cfg:     cfg,
		watches: make(map[id.PanelID]*watch),
	}
}

// WithMetrics attaches metrics tracking.
func (p *Poller) WithMetrics(m *monitoring.Metrics) *Poller {
	p.metrics = m
	return p
}

// Start begins the aggregate cross-project poll loop.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = false
	p.scheduleAggregateLocked(0)
}

// Stop tears down every timer.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.aggTimer != nil {
		p.aggTimer.Stop()
		p.aggTimer = nil
	}
	for _, w := range p.watches {
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
	}
}

// Watch starts per-panel polling for a conversation. A panel starts
// visible; an immediate first poll seeds the registry.
func (p *Poller) Watch(panelID id.PanelID, key Key, live bool) {
	p.mu.Lock()
	if prev, ok := p.watches[panelID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	w := &watch{key: key, live: live, visible: true}
	p.watches[panelID] = w
	p.armLocked(panelID, w, 0)
	p.mu.Unlock()
}

// Watched reports whether a panel has an active watch.
func (p *Poller) Watched(panelID id.PanelID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watches[panelID]
	return ok
}

// UnwatchAll drops every per-panel watch, keeping the aggregate loop.
// Used on project switch when the whole panel set is replaced.
func (p *Poller) UnwatchAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for panelID, w := range p.watches {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(p.watches, panelID)
	}
}

// Unwatch stops polling for a panel.
func (p *Poller) Unwatch(panelID id.PanelID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.watches[panelID]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(p.watches, panelID)
	}
}

// SetLive switches a panel between live and normal cadence.
func (p *Poller) SetLive(panelID id.PanelID, live bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.watches[panelID]
	if !ok || w.live == live {
		return
	}
	w.live = live
	if w.visible {
		if w.timer != nil {
			w.timer.Stop()
		}
		p.armLocked(panelID, w, p.intervalFor(w))
	}
}

// SetVisible reacts to viewport visibility. Leaving visibility stops the
// timer and downgrades live cadence; returning restarts at normal.
func (p *Poller) SetVisible(panelID id.PanelID, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.watches[panelID]
	if !ok || w.visible == visible {
		return
	}
	w.visible = visible
	if !visible {
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.live = false
		return
	}
	p.armLocked(panelID, w, 0)
}

// ScheduleFinalPolls arms the staggered re-polls following a "done" push.
func (p *Poller) ScheduleFinalPolls(key Key) {
	for _, d := range finalPollDelays {
		k := key
		p.sched.After(d, func() {
			p.pollDetail(k, "final")
		})
	}
}

func (p *Poller) intervalFor(w *watch) time.Duration {
	if w.live {
		return p.cfg.Live
	}
	return p.cfg.Normal
}

// armLocked schedules the next poll for a watch. Caller must hold mu.
func (p *Poller) armLocked(panelID id.PanelID, w *watch, delay time.Duration) {
	if p.stopped || !w.visible {
		return
	}
	w.timer = p.sched.After(delay, func() {
		cadence := "normal"
		p.mu.Lock()
		cur, ok := p.watches[panelID]
		if !ok || cur != w || !w.visible || p.stopped {
			p.mu.Unlock()
			return
		}
		if w.live {
			cadence = "live"
		}
		key := w.key
		p.mu.Unlock()

		p.pollDetail(key, cadence)

		p.mu.Lock()
		if cur, ok := p.watches[panelID]; ok && cur == w {
			p.armLocked(panelID, w, p.intervalFor(w))
		}
		p.mu.Unlock()
	})
}

func (p *Poller) pollDetail(key Key, cadence string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if p.metrics != nil {
		p.metrics.PollsTotal.WithLabelValues(cadence).Inc()
	}
	snap, err := p.src.Detail(ctx, key, p.cfg.TailCount)
	if err != nil {
		// Transient; the next timer tick retries.
		if p.metrics != nil {
			p.metrics.PollErrors.Inc()
		}
		p.log.Debug("detail poll failed",
			zap.String("account", key.AccountID),
			zap.String("session", key.SessionID),
			zap.Error(err))
		return
	}
	p.reg.ApplyPoll(snap)
}

// scheduleAggregateLocked arms the next aggregate list poll. Caller must
// hold mu.
func (p *Poller) scheduleAggregateLocked(delay time.Duration) {
	if p.stopped {
		return
	}
	p.aggTimer = p.sched.After(delay, func() {
		p.pollAggregate()
		p.mu.Lock()
		p.scheduleAggregateLocked(p.cfg.Aggregate)
		p.mu.Unlock()
	})
}

func (p *Poller) pollAggregate() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if p.metrics != nil {
		p.metrics.PollsTotal.WithLabelValues("aggregate").Inc()
	}
	snaps, err := p.src.Conversations(ctx, "")
	if err != nil {
		if p.metrics != nil {
			p.metrics.PollErrors.Inc()
		}
		p.log.Debug("aggregate poll failed", zap.Error(err))
		return
	}
	for _, snap := range snaps {
		p.reg.ApplyPoll(snap)
	}
}
