// Package observability exposes pipeline activity as Prometheus metrics,
// fed entirely through domain.Hooks so the core stays free of metric
// concerns.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbor/pkg/domain"
)

// Metrics holds the pipeline collectors. Create one per process and
// register its Hooks on the runner and render contexts.
type Metrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	emitsTotal      *prometheus.CounterVec
	buildsTotal     *prometheus.CounterVec
	liveAppends     *prometheus.CounterVec
	dropsTotal      *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "commands_total",
			Help:      "Finished command runs by command and status.",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arbor",
			Name:      "command_duration_seconds",
			Help:      "Command run duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		emitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "emits_total",
			Help:      "Nodes appended to output stacks, by backend.",
		}, []string{"backend"}),
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "builds_total",
			Help:      "Backend artifacts built, by backend.",
		}, []string{"backend"}),
		liveAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "live_appends_total",
			Help:      "Artifacts built via the live observer path, by backend.",
		}, []string{"backend"}),
		dropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbor",
			Name:      "dropped_emissions_total",
			Help:      "Emissions recorded after their scope closed, by backend.",
		}, []string{"backend"}),
	}
	reg.MustRegister(
		m.commandsTotal,
		m.commandDuration,
		m.emitsTotal,
		m.buildsTotal,
		m.liveAppends,
		m.dropsTotal,
	)
	return m
}

// Hooks returns the hook set feeding these collectors.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnCommandEnd: func(_ context.Context, e *domain.CommandEvent) {
			m.commandsTotal.WithLabelValues(e.Command, string(e.Status)).Inc()
			m.commandDuration.WithLabelValues(e.Command).Observe(e.Duration.Seconds())
		},
		OnEmit: func(_ context.Context, e *domain.RenderEvent) {
			m.emitsTotal.WithLabelValues(e.Backend).Inc()
		},
		OnBuild: func(_ context.Context, e *domain.RenderEvent) {
			m.buildsTotal.WithLabelValues(e.Backend).Inc()
			if e.Live {
				m.liveAppends.WithLabelValues(e.Backend).Inc()
			}
		},
		OnDrop: func(_ context.Context, e *domain.RenderEvent) {
			m.dropsTotal.WithLabelValues(e.Backend).Inc()
		},
	}
}
