package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveVehicles *prometheus.GaugeVec // line label
	Directions     prometheus.Gauge

	Rebuilds      *prometheus.CounterVec // line label
	WindowPolls   prometheus.Counter
	AppliedWindow *prometheus.GaugeVec // line, window labels; 1 for the applied window

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	QueryDuration   prometheus.Histogram
	PublishDuration prometheus.Histogram

	FrameInterval prometheus.Gauge // seconds
	PollInterval  prometheus.Gauge // seconds
}

func NewCollector(frameInterval, pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveVehicles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simulator_active_vehicles",
			Help: "Vehicles in service at the last frame, per line.",
		}, []string{"line"}),
		Directions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_directions",
			Help: "Directions with animation metrics in the current snapshot.",
		}),
		Rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_metrics_rebuilds_total",
			Help: "Override applications followed by a metrics rebuild, per line.",
		}, []string{"line"}),
		WindowPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_window_polls_total",
			Help: "Total override window polls.",
		}),
		AppliedWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simulator_applied_window",
			Help: "1 for the override window currently applied to a line.",
		}, []string{"line", "window"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_query_duration_seconds",
			Help:    "Duration of a fleet position query.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		FrameInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_frame_interval_seconds",
			Help: "Frame interval in seconds.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_window_poll_interval_seconds",
			Help: "Override window poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.ActiveVehicles, c.Directions,
		c.Rebuilds, c.WindowPolls, c.AppliedWindow,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.QueryDuration, c.PublishDuration,
		c.FrameInterval, c.PollInterval,
	)

	c.FrameInterval.Set(frameInterval.Seconds())
	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
