package schedule

import (
	"sort"
	"strings"

	"metro-simulator/internal/clock"
	"metro-simulator/internal/metro"
)

// Catalog is the normalized override catalog: per line, per ISO weekday, an
// ordered list of windows whose payloads are always segment lists.
type Catalog struct {
	byLine map[string]map[int][]metro.OverrideWindow
}

// NewCatalog normalizes raw interval records against the ingested lines.
// When several records cover the same line and weekday the first one wins.
func NewCatalog(raw []metro.RawOverride, lines []Line) *Catalog {
	refs := make(map[string]*metro.LineDirection, len(lines))
	for _, l := range lines {
		refs[l.ID] = ReferenceDirection(l)
	}
	c := &Catalog{byLine: make(map[string]map[int][]metro.OverrideWindow)}
	for _, rec := range raw {
		windows := normalizeWindows(rec.Windows, refs[rec.LineID])
		days := c.byLine[rec.LineID]
		if days == nil {
			days = make(map[int][]metro.OverrideWindow)
			c.byLine[rec.LineID] = days
		}
		for _, wd := range rec.Weekdays {
			if wd < 1 || wd > 7 {
				continue
			}
			if _, ok := days[wd]; ok {
				continue
			}
			days[wd] = windows
		}
	}
	return c
}

// Config returns the windows of a line for an ISO weekday.
func (c *Catalog) Config(lineID string, weekday int) (metro.LineOverrideConfig, bool) {
	windows, ok := c.byLine[lineID][weekday]
	if !ok {
		return metro.LineOverrideConfig{}, false
	}
	return metro.LineOverrideConfig{LineID: lineID, Weekday: weekday, Windows: windows}, true
}

// Lines lists the line ids that have override records, sorted.
func (c *Catalog) Lines() []string {
	ids := make([]string, 0, len(c.byLine))
	for id := range c.byLine {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReferenceDirection picks the forward direction with the most stops. A line
// without a forward direction falls back to its longest direction.
func ReferenceDirection(l Line) *metro.LineDirection {
	var best, longest *metro.LineDirection
	for _, d := range l.Directions {
		if longest == nil || len(d.Stops) > len(longest.Stops) {
			longest = d
		}
		if d.Sign == metro.Forward && (best == nil || len(d.Stops) > len(best.Stops)) {
			best = d
		}
	}
	if best != nil {
		return best
	}
	return longest
}

func normalizeWindows(raw []metro.RawWindow, ref *metro.LineDirection) []metro.OverrideWindow {
	out := make([]metro.OverrideWindow, 0, len(raw))
	for _, rw := range raw {
		var segs []metro.OverrideSegment
		if rw.Scalar != nil {
			seg := metro.OverrideSegment{Minutes: float64(*rw.Scalar)}
			if ref != nil && len(ref.Stops) > 0 {
				seg.From = ref.Stops[0].Station.Name
				seg.To = ref.Stops[len(ref.Stops)-1].Station.Name
			}
			segs = append(segs, seg)
		} else {
			for _, rs := range rw.Segments {
				seg := metro.OverrideSegment{Minutes: float64(rs.Time)}
				if len(rs.Range) == 2 && rs.Range[0] != "" && rs.Range[1] != "" {
					seg.From, seg.To = rs.Range[0], rs.Range[1]
				}
				segs = append(segs, seg)
			}
		}
		out = append(out, metro.OverrideWindow{Key: strings.TrimSpace(rw.Key), Segments: completeReciprocals(segs)})
	}
	return out
}

// completeReciprocals appends [b,a] for every ranged [a,b] that lacks one.
func completeReciprocals(segs []metro.OverrideSegment) []metro.OverrideSegment {
	n := len(segs)
	for i := 0; i < n; i++ {
		s := segs[i]
		if s.WholeLine() {
			continue
		}
		found := false
		for _, o := range segs {
			if o.From == s.To && o.To == s.From {
				found = true
				break
			}
		}
		if !found {
			segs = append(segs, metro.OverrideSegment{From: s.To, To: s.From, Minutes: s.Minutes})
		}
	}
	return segs
}

// SelectWindow returns the first window whose key contains minuteOfDay,
// falling back to the "other" window.
func SelectWindow(windows []metro.OverrideWindow, minuteOfDay int) (metro.OverrideWindow, bool) {
	var other *metro.OverrideWindow
	for i := range windows {
		w := &windows[i]
		if w.Key == metro.OtherWindow {
			if other == nil {
				other = w
			}
			continue
		}
		if WindowContains(w.Key, minuteOfDay) {
			return *w, true
		}
	}
	if other != nil {
		return *other, true
	}
	return metro.OverrideWindow{}, false
}

// WindowContains tests "HH:MM-HH:MM" membership. Keys with start >= end
// cross midnight. Malformed keys never match.
func WindowContains(key string, minuteOfDay int) bool {
	s, e, ok := strings.Cut(key, "-")
	if !ok || strings.TrimSpace(s) == "" || strings.TrimSpace(e) == "" {
		return false
	}
	start, end := clock.ParseClock(s), clock.ParseClock(e)
	if start < end {
		return start <= minuteOfDay && minuteOfDay < end
	}
	return minuteOfDay >= start || minuteOfDay < end
}
