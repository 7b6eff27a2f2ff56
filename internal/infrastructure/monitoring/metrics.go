package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestration service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Layout metrics
	PanelsActive     prometheus.Gauge
	LayoutMutations  prometheus.Counter
	LayoutSaves      prometheus.Counter
	LayoutSaveErrors prometheus.Counter

	// Conversation metrics
	ConversationsByState *prometheus.GaugeVec
	AttentionEvents      *prometheus.CounterVec
	PollsTotal           *prometheus.CounterVec
	PollErrors           prometheus.Counter

	// Activation metrics
	ActivationsTotal prometheus.Counter
	PanelsMatched    prometheus.Counter
	PanelsCreated    prometheus.Counter
	NavigateCommands prometheus.Counter

	// Control channel metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
	registry  *prometheus.Registry
}

// NewMetrics creates a new metrics collector using a dedicated registry so
// repeated construction in tests does not collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	m.registry = reg
	return m
}

// NewMetricsWith registers metrics against the provided registerer.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workbench_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		PanelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "workbench_panels_active",
			Help: "Number of panels in the active layout tree",
		}),
		LayoutMutations: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_layout_mutations_total",
			Help: "Total layout tree mutations applied",
		}),
		LayoutSaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_layout_saves_total",
			Help: "Total debounced layout persistence writes",
		}),
		LayoutSaveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_layout_save_errors_total",
			Help: "Total failed layout persistence writes",
		}),

		ConversationsByState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "workbench_conversations",
				Help: "Conversations by attention state",
			},
			[]string{"state"},
		),
		AttentionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_attention_events_total",
				Help: "Attention transitions by reason",
			},
			[]string{"reason"},
		),
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_polls_total",
				Help: "Conversation polls by cadence",
			},
			[]string{"cadence"},
		),
		PollErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_poll_errors_total",
			Help: "Failed conversation polls",
		}),

		ActivationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_activations_total",
			Help: "Activation plans executed",
		}),
		PanelsMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_activation_panels_matched_total",
			Help: "Conversations matched to existing panels",
		}),
		PanelsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_activation_panels_created_total",
			Help: "Panels created by the activation engine",
		}),
		NavigateCommands: factory.NewCounter(prometheus.CounterOpts{
			Name: "workbench_navigate_commands_total",
			Help: "Staggered navigate commands dispatched",
		}),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "workbench_ws_connections",
			Help: "Active control-channel connections",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbench_ws_messages_total",
				Help: "Control-channel messages by direction and type",
			},
			[]string{"direction", "type"},
		),

		Uptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "workbench_uptime_seconds",
			Help: "Service uptime in seconds",
		}),
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// Handler exposes the scrape endpoint for this collector's registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
