package sim

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"metro-simulator/internal/metro"
	"metro-simulator/internal/schedule"
)

var ErrUnknownLine = errors.New("unknown line")

// Snapshot is a fully built, immutable set of metrics. Readers load it once
// per query and never see a partial rebuild.
type Snapshot struct {
	Metrics []metro.AnimMetrics
	Version uint64
	BuiltAt time.Time
}

// Network owns every line's directions and the metrics snapshot derived
// from them. Direction state is only changed through ApplyOverride.
type Network struct {
	mu      sync.Mutex
	lines   []schedule.Line
	index   map[string]int
	perLine [][]metro.AnimMetrics

	snap atomic.Pointer[Snapshot]
}

// NewNetwork takes ownership of the ingested lines and publishes the
// baseline snapshot.
func NewNetwork(lines []schedule.Line) *Network {
	n := &Network{
		lines:   lines,
		index:   make(map[string]int, len(lines)),
		perLine: make([][]metro.AnimMetrics, len(lines)),
	}
	for i, l := range lines {
		n.index[l.ID] = i
		n.perLine[i] = schedule.BuildLine(l)
	}
	n.publish(0)
	return n
}

// Snapshot returns the current metrics snapshot.
func (n *Network) Snapshot() *Snapshot { return n.snap.Load() }

// Lines returns line ids in ingest order.
func (n *Network) Lines() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, len(n.lines))
	for i, l := range n.lines {
		ids[i] = l.ID
	}
	return ids
}

// Directions returns copies of a line's directions.
func (n *Network) Directions(lineID string) ([]*metro.LineDirection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	i, ok := n.index[lineID]
	if !ok {
		return nil, ErrUnknownLine
	}
	return cloneDirections(n.lines[i].Directions), nil
}

// ApplyOverride writes segments onto a line and swaps in a snapshot with
// that line's metrics rebuilt. The mutation runs on copies; the live
// directions and snapshot are replaced only once the rebuild is complete.
func (n *Network) ApplyOverride(lineID string, segs []metro.OverrideSegment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	i, ok := n.index[lineID]
	if !ok {
		return ErrUnknownLine
	}
	line := n.lines[i]
	line.Directions = cloneDirections(line.Directions)
	schedule.Apply(line.Directions, line.Ring, segs)

	n.perLine[i] = schedule.BuildLine(line)
	n.lines[i] = line
	n.publish(n.snap.Load().Version + 1)
	return nil
}

// publish flattens per-line metrics into a new snapshot. Caller holds mu
// (or is the constructor).
func (n *Network) publish(version uint64) {
	var all []metro.AnimMetrics
	for _, ms := range n.perLine {
		all = append(all, ms...)
	}
	n.snap.Store(&Snapshot{Metrics: all, Version: version, BuiltAt: time.Now()})
}

func cloneDirections(dirs []*metro.LineDirection) []*metro.LineDirection {
	out := make([]*metro.LineDirection, len(dirs))
	for i, d := range dirs {
		out[i] = d.Clone()
	}
	return out
}
