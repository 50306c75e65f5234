package mapfeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors the feed server exports.
type Metrics struct {
	Clients    prometheus.Gauge
	Broadcasts prometheus.Counter
	Coalesced  prometheus.Counter
	Requests   *prometheus.CounterVec
	Uploads    *prometheus.CounterVec
}

// NewMetrics registers the feed collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "photomap",
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Subscribed live map feed clients.",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "photomap",
			Subsystem: "feed",
			Name:      "broadcasts_total",
			Help:      "Collection snapshots published to the feed.",
		}),
		Coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "photomap",
			Subsystem: "feed",
			Name:      "coalesced_total",
			Help:      "Undelivered snapshots replaced by a newer one.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "photomap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "photomap",
			Subsystem: "http",
			Name:      "uploads_total",
			Help:      "Photo uploads received over HTTP by outcome.",
		}, []string{"outcome"}),
	}
}
