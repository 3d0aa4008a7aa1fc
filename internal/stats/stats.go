// Package stats exposes trackerd's counters over a Prometheus /metrics
// endpoint, following the exporter shape of ptp/sptp/stats.PrometheusExporter:
// a dedicated registry, counters registered once at construction, served by
// promhttp on a configurable port.
package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Stats holds trackerd's Prometheus counters.
type Stats struct {
	registry *prometheus.Registry

	SessionsOpened    prometheus.Counter
	SessionsClosed    prometheus.Counter
	MessagesByID      *prometheus.CounterVec
	FramingErrors     prometheus.Counter
	RateLimitDrops    prometheus.Counter
	PersistQueueSize  prometheus.Gauge
	LinkCodesIssued   prometheus.Counter
	LinkCodesRedeemed prometheus.Counter
}

// New creates and registers trackerd's counters.
func New() *Stats {
	registry := prometheus.NewRegistry()
	s := &Stats{
		registry: registry,
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerd_sessions_opened_total",
			Help: "Number of TCP sessions accepted.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerd_sessions_closed_total",
			Help: "Number of TCP sessions closed.",
		}),
		MessagesByID: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackerd_messages_total",
			Help: "Number of messages dispatched, by message id.",
		}, []string{"id"}),
		FramingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerd_framing_errors_total",
			Help: "Number of framing errors encountered.",
		}),
		RateLimitDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerd_rate_limit_drops_total",
			Help: "Number of control requests dropped by the rate limiter.",
		}),
		PersistQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackerd_persist_queue_depth",
			Help: "Current depth of the persistence pipeline queue.",
		}),
		LinkCodesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerd_link_codes_issued_total",
			Help: "Number of link codes issued to trackers.",
		}),
		LinkCodesRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackerd_link_codes_redeemed_total",
			Help: "Number of link codes redeemed by monitors.",
		}),
	}
	registry.MustRegister(
		s.SessionsOpened, s.SessionsClosed, s.MessagesByID, s.FramingErrors,
		s.RateLimitDrops, s.PersistQueueSize, s.LinkCodesIssued, s.LinkCodesRedeemed,
	)
	return s
}

// Start serves /metrics on listenPort. It blocks; callers run it in a
// goroutine.
func (s *Stats) Start(listenPort int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", listenPort)
	log.Infof("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server stopped: %v", err)
	}
}
