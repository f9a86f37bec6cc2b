package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"metro-simulator/internal/api"
	"metro-simulator/internal/config"
	"metro-simulator/internal/db"
	"metro-simulator/internal/feed"
	"metro-simulator/internal/metrics"
	"metro-simulator/internal/metro"
	"metro-simulator/internal/publisher"
	"metro-simulator/internal/schedule"
	"metro-simulator/internal/sim"
)

func main() {
	importOnly := flag.Bool("import", false, "import the JSON datasets from DATA_DIR into DATABASE_URL and exit")
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *importOnly {
		if err := importDatasets(ctx, cfg); err != nil {
			log.Fatalf("import error: %v", err)
		}
		return
	}

	snap, err := loadSnapshot(ctx, cfg)
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}
	config.ApplyLines(snap.Lines, cfg.Lines)
	lines := schedule.Ingest(snap.Lines, snap.Timetable)
	if len(lines) == 0 {
		log.Fatalf("no line has a usable timetable")
	}
	net := sim.NewNetwork(lines)
	catalog := schedule.NewCatalog(snap.Overrides, lines)
	log.Printf("network ready lines=%d directions=%d override_lines=%d", len(lines), len(net.Snapshot().Metrics), len(catalog.Lines()))

	// Metrics are always collected; METRICS_ADDR adds a dedicated listener.
	mcol := metrics.NewCollector(cfg.FrameInterval, cfg.WindowPollInterval)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	simulator := &sim.Simulator{ServiceStart: cfg.ServiceStart, ServiceEnd: cfg.ServiceEnd}

	// The first poll applies the effective window before any frame runs.
	scheduler := sim.NewWindowScheduler(net, catalog, cfg.WindowPollInterval, cfg.Location, mcol)
	scheduler.Poll(time.Now())
	scheduler.Start(ctx)

	var pub sim.VehiclePublisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer np.Close()
		pub = np
	} else {
		log.Printf("NATS_URL not set; frames are not published")
	}
	runner := sim.NewRunner(net, simulator, pub, cfg.FrameInterval, cfg.Location, mcol)
	runner.Start(ctx)

	var apiSrv *http.Server
	if cfg.HTTPAddr != "" {
		apiSrv = api.NewServer(net, simulator, cfg.Location,
			api.WithWindows(scheduler),
			api.WithMetrics(mcol),
			api.WithAllowedOrigins(cfg.AllowedOrigins...),
		).Serve(cfg.HTTPAddr)
	}

	// Block until context cancelled
	<-ctx.Done()
	runner.Stop()
	scheduler.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{apiSrv, metricsSrv} {
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
		}
	}
	log.Println("shutdown complete")
}

// loadSnapshot reads the latest import from the database when one is
// configured, seeding an empty database from DATA_DIR. Without a database
// the JSON files are read directly.
func loadSnapshot(ctx context.Context, cfg *config.Config) (metro.Snapshot, error) {
	if cfg.DatabaseURL == "" {
		log.Printf("loading datasets from %s", cfg.DataDir)
		return feed.Load(cfg.DataDir)
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return metro.Snapshot{}, err
	}
	defer store.Close()

	snap, id, err := store.LoadSnapshot(ctx)
	if errors.Is(err, db.ErrEmptySnapshot) {
		log.Printf("database has no snapshot; seeding from %s", cfg.DataDir)
		snap, err = feed.Load(cfg.DataDir)
		if err != nil {
			return snap, err
		}
		if _, err := store.Import(ctx, snap, cfg.DataDir); err != nil {
			return snap, err
		}
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	log.Printf("using snapshot %s from %s database", id, store.Driver())
	return snap, nil
}

func importDatasets(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for -import")
	}
	snap, err := feed.Load(cfg.DataDir)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.Import(ctx, snap, cfg.DataDir)
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (*db.Store, error) {
	store, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, store.Conn()); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
