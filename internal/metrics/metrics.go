// Package metrics holds the Prometheus collectors of the auction core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeStale    = "stale"
	OutcomeRetry    = "retry"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics groups the collectors so tests can use a private registry.
type Metrics struct {
	Bids              *prometheus.CounterVec
	LifecycleEvents   *prometheus.CounterVec
	BrokerPublishes   *prometheus.CounterVec
	ScheduledMessages *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_total",
			Help:      "Bid submissions by result.",
		}, []string{"result"}),
		LifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle messages handled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		BrokerPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "broker_publish_total",
			Help:      "Broker publishes by exchange and outcome.",
		}, []string{"exchange", "outcome"}),
		ScheduledMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "scheduled_messages_total",
			Help:      "Delayed lifecycle messages published by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Bids, m.LifecycleEvents, m.BrokerPublishes, m.ScheduledMessages)
	}
	return m
}

// NewNop returns unregistered collectors, handy for tests.
func NewNop() *Metrics {
	return New(nil)
}
