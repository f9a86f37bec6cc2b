package sim

import (
	"context"
	"log"
	"sync"
	"time"

	mmetrics "metro-simulator/internal/metrics"
	"metro-simulator/internal/metro"
)

// VehiclePublisher receives one frame of vehicles for a line.
type VehiclePublisher interface {
	PublishVehicles(lineID string, at time.Time, vehicles []metro.Vehicle) error
}

// Runner drives the per-frame query: on every tick it rebuilds the fleet from
// the current snapshot and publishes it line by line.
type Runner struct {
	net      *Network
	sim      *Simulator
	pub      VehiclePublisher
	interval time.Duration
	tz       *time.Location
	metrics  *mmetrics.Collector

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastLines map[string]bool
}

func NewRunner(net *Network, sim *Simulator, pub VehiclePublisher, interval time.Duration, tz *time.Location, metrics *mmetrics.Collector) *Runner {
	if tz == nil {
		tz = time.Local
	}
	return &Runner{
		net:       net,
		sim:       sim,
		pub:       pub,
		interval:  interval,
		tz:        tz,
		metrics:   metrics,
		lastLines: make(map[string]bool),
	}
}

// Frame computes and publishes the fleet at now. Lines that had vehicles in
// the previous frame and have none now get an empty frame so consumers can
// clear them.
func (r *Runner) Frame(now time.Time) []metro.Vehicle {
	start := time.Now()
	snap := r.net.Snapshot()
	vehicles := r.sim.Query(snap.Metrics, now.In(r.tz))
	if r.metrics != nil {
		r.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		r.metrics.Directions.Set(float64(len(snap.Metrics)))
	}

	byLine := make(map[string][]metro.Vehicle)
	var order []string
	for _, v := range vehicles {
		if _, ok := byLine[v.LineID]; !ok {
			order = append(order, v.LineID)
		}
		byLine[v.LineID] = append(byLine[v.LineID], v)
	}

	r.mu.Lock()
	prev := r.lastLines
	r.lastLines = make(map[string]bool, len(order))
	for _, id := range order {
		r.lastLines[id] = true
	}
	r.mu.Unlock()
	for id := range prev {
		if _, ok := byLine[id]; !ok {
			order = append(order, id)
		}
	}

	for _, lineID := range order {
		vs := byLine[lineID]
		if r.metrics != nil {
			r.metrics.ActiveVehicles.WithLabelValues(lineID).Set(float64(len(vs)))
		}
		if r.pub == nil {
			continue
		}
		if err := r.pub.PublishVehicles(lineID, now, vs); err != nil {
			log.Printf("publish error for line %s: %v", lineID, err)
		}
	}
	return vehicles
}

// Start runs Frame on every interval until Stop or ctx cancellation.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		tick := time.NewTicker(r.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-tick.C:
				r.Frame(now)
			}
		}
	}()
	log.Printf("frame runner started interval=%s", r.interval)
}

// Stop halts the frame loop. It is safe to call more than once or before
// Start.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
}
