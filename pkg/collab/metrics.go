package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "impactboard"

// Event outcomes.
const (
	outcomeApplied       = "applied"
	outcomeSelf          = "ignored_self"
	outcomeStale         = "stale"
	outcomeFinalized     = "finalized"
	outcomeInvalid       = "invalid"
	outcomeInactive      = "inactive"
	outcomeOtherDocument = "other_document"
	outcomeOK            = "ok"
	outcomeError         = "error"
)

// Metrics counts coordinator activity. A nil *Metrics records nothing.
type Metrics struct {
	events       *prometheus.CounterVec
	emits        *prometheus.CounterVec
	persists     *prometheus.CounterVec
	participants prometheus.Gauge
}

// NewMetrics registers the coordinator metrics with reg. A nil reg creates unregistered
// collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "Channel events received, by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		emits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "emits_total",
				Help:      "Channel events emitted, by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		persists: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "persists_total",
				Help:      "Debounced field writes to the document store, by outcome",
			},
			[]string{"outcome"},
		),
		participants: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "participants",
				Help:      "Remote participants currently in the room",
			},
		),
	}
}

func (m *Metrics) event(event, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) emit(event string, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.emits.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) persist(err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.persists.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}
