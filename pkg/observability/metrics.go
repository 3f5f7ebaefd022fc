package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
)

// Metrics records chain events as Prometheus series.
type Metrics struct {
	events      *prometheus.CounterVec
	finished    *prometheus.CounterVec
	suspended   prometheus.Counter
	nodeErrors  *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainflow_events_total",
				Help: "Total number of chain events by kind.",
			},
			[]string{"kind"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainflow_runs_finished_total",
				Help: "Total number of chain runs reaching a terminal status.",
			},
			[]string{"scope", "status"},
		),
		suspended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chainflow_runs_suspended_total",
				Help: "Total number of suspensions waiting for input or wake-up.",
			},
		),
		nodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainflow_node_errors_total",
				Help: "Total number of node failures.",
			},
			[]string{"node_id"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainflow_run_segment_duration_seconds",
				Help:    "Time between a chain starting or resuming and it suspending or finishing.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		started: make(map[string]time.Time),
	}
	for _, c := range []prometheus.Collector{m.events, m.finished, m.suspended, m.nodeErrors, m.runDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attach subscribes m to every event of c and its descendants.
func (m *Metrics) Attach(c *chain.Chain) {
	c.OnEvent(domain.EventAny, m.Listen)
}

// Listen is a chain.EventListener. Events raised by c itself are labeled
// scope="root", bubbled ones scope="nested".
func (m *Metrics) Listen(ev domain.Event, c *chain.Chain) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case domain.EventChainStart, domain.EventChainResume:
		m.mu.Lock()
		m.started[ev.ChainID] = ev.Timestamp
		m.mu.Unlock()
	case domain.EventChainSuspend:
		m.suspended.Inc()
		m.observe(ev, c)
	case domain.EventChainFinished:
		m.finished.WithLabelValues(scope(ev, c), string(ev.Status)).Inc()
		m.observe(ev, c)
	case domain.EventNodeError:
		m.nodeErrors.WithLabelValues(ev.NodeID).Inc()
	}
}

func (m *Metrics) observe(ev domain.Event, c *chain.Chain) {
	m.mu.Lock()
	start, ok := m.started[ev.ChainID]
	delete(m.started, ev.ChainID)
	m.mu.Unlock()
	if ok {
		m.runDuration.WithLabelValues(scope(ev, c)).Observe(ev.Timestamp.Sub(start).Seconds())
	}
}

func scope(ev domain.Event, c *chain.Chain) string {
	if ev.ChainID == c.ID() {
		return "root"
	}
	return "nested"
}
