package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom records license decisions and HTTP traffic on its own registry.
type Prom struct {
	registry        *prometheus.Registry
	decisions       *prometheus.CounterVec
	keyCollisions   prometheus.Counter
	requestDuration *prometheus.HistogramVec
	once            sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_decisions_total",
			Help:      "License engine outcomes by operation, outcome and refusal reason",
		}, []string{"operation", "outcome", "reason"}),
		keyCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_key_collisions_total",
			Help:      "Generated license keys that were already taken",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by method, route and status",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		p.registry.MustRegister(
			p.decisions,
			p.keyCollisions,
			p.requestDuration,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

func (p *Prom) ObserveDecision(operation, outcome, reason string) {
	if reason == "" {
		reason = "none"
	}
	p.decisions.WithLabelValues(operation, outcome, reason).Inc()
}

func (p *Prom) IncKeyCollision() {
	p.keyCollisions.Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}

// Handler serves the registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
