package sim

import (
	"context"
	"log"
	"sync"
	"time"

	"metro-simulator/internal/clock"
	mmetrics "metro-simulator/internal/metrics"
	"metro-simulator/internal/metro"
	"metro-simulator/internal/schedule"
)

// WindowScheduler polls wall time, picks each line's effective override
// window and applies it when the selection changes.
type WindowScheduler struct {
	net      *Network
	catalog  *schedule.Catalog
	interval time.Duration
	tz       *time.Location
	metrics  *mmetrics.Collector

	mu      sync.Mutex
	applied map[string]appliedWindow

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// appliedWindow is the edge-trigger identity. The weekday is part of it so a
// day rollover onto a different weekday configuration re-applies.
type appliedWindow struct {
	weekday int
	key     string
}

func NewWindowScheduler(net *Network, catalog *schedule.Catalog, interval time.Duration, tz *time.Location, metrics *mmetrics.Collector) *WindowScheduler {
	if tz == nil {
		tz = time.Local
	}
	return &WindowScheduler{
		net:      net,
		catalog:  catalog,
		interval: interval,
		tz:       tz,
		metrics:  metrics,
		applied:  make(map[string]appliedWindow),
	}
}

// Poll selects the window for every line at now and applies those that
// changed since the previous poll. It returns the ids of rebuilt lines.
//
// The first time a line is configured its "other" window is applied as the
// base layer, so time-specific windows always stack on the same durations
// whatever time the process started.
func (s *WindowScheduler) Poll(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.tz)
	minute := clock.MinutesOfDay(now)
	weekday := clock.ISOWeekday(now.Weekday())
	if s.metrics != nil {
		s.metrics.WindowPolls.Inc()
	}

	var rebuilt []string
	for _, lineID := range s.net.Lines() {
		cfg, ok := s.catalog.Config(lineID, weekday)
		if !ok {
			continue
		}
		w, ok := schedule.SelectWindow(cfg.Windows, minute)
		if !ok {
			continue
		}
		next := appliedWindow{weekday: weekday, key: w.Key}
		prev, had := s.applied[lineID]
		if had && prev == next {
			continue
		}
		if !had && w.Key != metro.OtherWindow {
			if base, ok := otherWindow(cfg.Windows); ok {
				if err := s.net.ApplyOverride(lineID, base.Segments); err != nil {
					log.Printf("apply base window line=%s: %v", lineID, err)
					continue
				}
			}
		}
		if err := s.net.ApplyOverride(lineID, w.Segments); err != nil {
			log.Printf("apply window line=%s key=%s: %v", lineID, w.Key, err)
			continue
		}
		s.applied[lineID] = next
		rebuilt = append(rebuilt, lineID)
		log.Printf("window switch line=%s weekday=%d key=%s segments=%d", lineID, weekday, w.Key, len(w.Segments))
		if s.metrics != nil {
			s.metrics.Rebuilds.WithLabelValues(lineID).Inc()
			if had {
				s.metrics.AppliedWindow.DeleteLabelValues(lineID, prev.key)
			}
			s.metrics.AppliedWindow.WithLabelValues(lineID, w.Key).Set(1)
		}
	}
	return rebuilt
}

func otherWindow(windows []metro.OverrideWindow) (metro.OverrideWindow, bool) {
	for _, w := range windows {
		if w.Key == metro.OtherWindow {
			return w, true
		}
	}
	return metro.OverrideWindow{}, false
}

// Applied returns the window key last applied to a line.
func (s *WindowScheduler) Applied(lineID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applied[lineID]
	return a.key, ok
}

// Start polls immediately and then on every interval until Stop or ctx
// cancellation. Calling Start on a running scheduler is a no-op.
func (s *WindowScheduler) Start(parent context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil || s.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Poll(time.Now())
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Poll(now)
			}
		}
	}()
	log.Printf("window scheduler started interval=%s", s.interval)
}

// Stop halts polling. It is safe to call more than once or before Start.
func (s *WindowScheduler) Stop() {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}
