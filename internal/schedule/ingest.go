package schedule

import (
	"math"

	"metro-simulator/internal/clock"
	"metro-simulator/internal/metro"
)

// Baseline segment clamp, in minutes.
const (
	MinSegmentMinutes = 0.5
	MaxSegmentMinutes = 20.0
)

// UnknownLabel groups timetable rows that carry no direction label.
const UnknownLabel = "unknown"

// Line is the ingested form of one line: its static ring flag and its
// directions in first-seen label order.
type Line struct {
	ID         string
	Color      string
	Ring       bool
	Directions []*metro.LineDirection
}

// Ingest groups timetable rows into normalized directions. Directions with
// fewer than two stops are discarded, as are lines left without directions.
func Ingest(infos []metro.LineInfo, rows []metro.TimetableRow) []Line {
	stations := make(map[string]metro.Station)
	byID := make(map[string]*Line)
	var order []string
	for _, li := range infos {
		for _, st := range li.Stations {
			if _, ok := stations[st.ID]; !ok && st.ID != "" {
				stations[st.ID] = st
			}
		}
		if _, ok := byID[li.ID]; ok {
			continue
		}
		byID[li.ID] = &Line{ID: li.ID, Color: li.Color, Ring: li.Ring}
		order = append(order, li.ID)
	}

	type group struct {
		label string
		rows  []metro.TimetableRow
	}
	groups := make(map[string][]*group)
	for _, r := range rows {
		if _, ok := byID[r.LineID]; !ok {
			byID[r.LineID] = &Line{ID: r.LineID}
			order = append(order, r.LineID)
		}
		label := r.Label
		if label == "" {
			label = UnknownLabel
		}
		var g *group
		for _, existing := range groups[r.LineID] {
			if existing.label == label {
				g = existing
				break
			}
		}
		if g == nil {
			g = &group{label: label}
			groups[r.LineID] = append(groups[r.LineID], g)
		}
		g.rows = append(g.rows, r)
	}

	out := make([]Line, 0, len(order))
	for _, id := range order {
		line := byID[id]
		for _, g := range groups[id] {
			if d := buildDirection(line, g.label, g.rows, stations); d != nil {
				line.Directions = append(line.Directions, d)
			}
		}
		if len(line.Directions) > 0 {
			out = append(out, *line)
		}
	}
	return out
}

func buildDirection(line *Line, label string, rows []metro.TimetableRow, stations map[string]metro.Station) *metro.LineDirection {
	if len(rows) < 2 {
		return nil
	}
	stops := make([]metro.Stop, len(rows))
	for i, r := range rows {
		st, ok := stations[r.StationID]
		if !ok {
			st = metro.Station{ID: r.StationID}
		}
		if r.StationName != "" {
			st.Name = r.StationName
		}
		stops[i] = metro.Stop{
			Station:   st,
			FirstTime: clock.ParseClock(r.FirstTime),
			LastTime:  clock.ParseClock(r.LastTime),
		}
	}

	sign := metro.Forward
	if stops[0].FirstTime > stops[1].FirstTime {
		sign = metro.Reverse
		for i, j := 0, len(stops)-1; i < j; i, j = i+1, j-1 {
			stops[i], stops[j] = stops[j], stops[i]
		}
	}
	for i := 0; i < len(stops)-1; i++ {
		stops[i].SegmentMinutes = BaselineMinutes(stops[i], stops[i+1])
	}
	return &metro.LineDirection{
		LineID: line.ID,
		Color:  line.Color,
		Sign:   sign,
		Label:  label,
		Stops:  stops,
	}
}

// BaselineMinutes derives the travel time between adjacent stops from the
// first and last departure deltas. It returns 0 when neither delta exists.
func BaselineMinutes(a, b metro.Stop) float64 {
	best := math.Inf(1)
	if a.FirstTime > 0 || b.FirstTime > 0 {
		best = math.Min(best, wrappedDelta(a.FirstTime, b.FirstTime))
	}
	if a.LastTime > 0 || b.LastTime > 0 {
		best = math.Min(best, wrappedDelta(a.LastTime, b.LastTime))
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return math.Max(MinSegmentMinutes, math.Min(best, MaxSegmentMinutes))
}

func wrappedDelta(from, to int) float64 {
	d := to - from
	if d <= 0 {
		d += clock.MinutesPerDay
	}
	return float64(d)
}
