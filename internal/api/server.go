// Package api exposes the simulator over HTTP.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	mmetrics "metro-simulator/internal/metrics"
	"metro-simulator/internal/sim"
)

// WindowReporter reports the override window applied to a line.
type WindowReporter interface {
	Applied(lineID string) (string, bool)
}

type Server struct {
	net     *sim.Network
	sim     *sim.Simulator
	windows WindowReporter
	metrics *mmetrics.Collector
	tz      *time.Location
	now     func() time.Time
	origins []string

	// instance identifies this process in /health.
	instance string
}

type Option func(*Server)

// WithWindows adds the applied override window to line responses.
func WithWindows(w WindowReporter) Option { return func(s *Server) { s.windows = w } }

// WithMetrics mounts the Prometheus handler on /metrics.
func WithMetrics(c *mmetrics.Collector) Option { return func(s *Server) { s.metrics = c } }

// WithAllowedOrigins restricts CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

func withClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

func NewServer(net *sim.Network, simulator *sim.Simulator, tz *time.Location, opts ...Option) *Server {
	if tz == nil {
		tz = time.Local
	}
	s := &Server{net: net, sim: simulator, tz: tz, now: time.Now, origins: []string{"*"}, instance: uuid.NewString()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/vehicles", s.vehicles)
		r.Get("/lines", s.lines)
		r.Get("/lines/{lineID}", s.line)
		r.Get("/gtfs-rt/vehicle-positions", s.vehiclePositions)
	})
	return r
}

// Serve starts the HTTP server on addr in the background.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server error: %v", err)
		}
	}()
	log.Printf("api listening on %s", addr)
	return srv
}
