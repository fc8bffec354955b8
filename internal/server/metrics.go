package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the API collectors on a private registry so several servers
// (and tests) can coexist in one process.
type Metrics struct {
	reg      *prometheus.Registry
	analyses prometheus.Counter
	chats    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		analyses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "funnelscope",
			Name:      "analyses_total",
			Help:      "Datasets analyzed through the API.",
		}),
		chats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funnelscope",
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funnelscope",
			Name:      "errors_total",
			Help:      "Error responses by route.",
		}, []string{"route"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "funnelscope",
			Name:      "request_duration_seconds",
			Help:      "Request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
