package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/conduit/pkg/domain"
)

const namespace = "conduit"

// Metrics holds the Prometheus collectors of one engine.
type Metrics struct {
	registry *prometheus.Registry

	rounds   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	ticks    *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry, so several
// engines in one process do not collide.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_rounds_total",
				Help:      "Total number of processing rounds per node.",
			},
			[]string{"node_id", "node_type"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_round_duration_seconds",
				Help:      "Duration of processing rounds per node type.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"node_type"},
		),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_ticks_total",
				Help:      "Total number of ticks per source node.",
			},
			[]string{"node_id"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_published_total",
				Help:      "Total number of tokens committed by outputs.",
			},
			[]string{"node_id", "marker"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_errors_total",
				Help:      "Total number of contained node errors per level.",
			},
			[]string{"node_id", "level"},
		),
	}
	m.registry.MustRegister(m.rounds, m.duration, m.ticks, m.tokens, m.errors)
	return m
}

// Registry exposes the private registry, e.g. to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnProcessFinish: func(_ context.Context, e *domain.NodeEvent) {
			m.rounds.WithLabelValues(e.NodeID, e.NodeType).Inc()
			m.duration.WithLabelValues(e.NodeType).Observe(e.Duration.Seconds())
		},
		OnTick: func(_ context.Context, e *domain.NodeEvent) {
			m.ticks.WithLabelValues(e.NodeID).Inc()
		},
		OnTokenPublished: func(_ context.Context, e *domain.TokenEvent) {
			m.tokens.WithLabelValues(e.NodeID, strconv.FormatBool(e.Marker)).Inc()
		},
		OnNodeError: func(_ context.Context, e *domain.NodeEvent) {
			level := string(domain.LevelError)
			if e.Error != nil && e.Error.Level != "" {
				level = string(e.Error.Level)
			}
			m.errors.WithLabelValues(e.NodeID, level).Inc()
		},
	}
}
