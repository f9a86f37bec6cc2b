package schedule

import (
	"math"
	"time"

	"metro-simulator/internal/metro"
)

// MaxDwell caps the stationary phase carved out of each segment.
const MaxDwell = 30 * time.Second

// FallbackSegmentMinutes is used for segments with no derivable duration.
const FallbackSegmentMinutes = 1.0

// BuildMetrics derives the animation metrics of one direction. Stops
// without coordinates are dropped from the path, and the durations of the
// segments they start are folded into the preceding retained segment, so
// path, names and timings stay aligned. It reports false when fewer than two
// stops can be placed.
func BuildMetrics(d *metro.LineDirection) (metro.AnimMetrics, bool) {
	var kept []int
	for i, s := range d.Stops {
		if s.Station.HasCoords() {
			kept = append(kept, i)
		}
	}
	if len(kept) < 2 {
		return metro.AnimMetrics{}, false
	}

	m := metro.AnimMetrics{
		ID:           d.ID(),
		LineID:       d.LineID,
		Label:        d.Label,
		Color:        d.Color,
		Path:         make([][2]float64, 0, len(kept)),
		StationNames: make([]string, 0, len(kept)),
		StopIndices:  kept,
		Segments:     make([]metro.SegmentTiming, 0, len(kept)-1),
	}
	for _, idx := range kept {
		st := d.Stops[idx].Station
		m.Path = append(m.Path, st.Coord())
		m.StationNames = append(m.StationNames, st.Name)
	}
	for k := 0; k < len(kept)-1; k++ {
		minutes := 0.0
		for i := kept[k]; i < kept[k+1]; i++ {
			minutes += segmentMinutes(d.Stops[i].SegmentMinutes)
		}
		seg := timing(minutes)
		m.Segments = append(m.Segments, seg)
		m.Total += seg.Total
	}
	return m, true
}

// BuildAll builds metrics for every direction of every line, in order.
func BuildAll(lines []Line) []metro.AnimMetrics {
	var out []metro.AnimMetrics
	for _, l := range lines {
		out = append(out, BuildLine(l)...)
	}
	return out
}

// BuildLine builds metrics for the directions of one line.
func BuildLine(l Line) []metro.AnimMetrics {
	var out []metro.AnimMetrics
	for _, d := range l.Directions {
		if m, ok := BuildMetrics(d); ok {
			out = append(out, m)
		}
	}
	return out
}

func segmentMinutes(v float64) float64 {
	if v > 0 && !math.IsInf(v, 0) {
		return v
	}
	return FallbackSegmentMinutes
}

func timing(minutes float64) metro.SegmentTiming {
	total := time.Duration(math.Round(minutes * float64(time.Minute)))
	dwell := min(MaxDwell, total)
	return metro.SegmentTiming{
		Total: total,
		Move:  max(total-dwell, 0),
		Dwell: dwell,
	}
}
