package schedule

import "metro-simulator/internal/metro"

// Apply writes each segment's duration onto every direction of a line.
// Writes are destructive and last-writer-wins. Segments without a positive
// duration are ignored. It returns the number of stop durations written.
//
// Apply mutates dirs in place; callers owning a published snapshot must pass
// clones and rebuild metrics before exposing them.
func Apply(dirs []*metro.LineDirection, ring bool, segs []metro.OverrideSegment) int {
	writes := 0
	for _, seg := range segs {
		if !(seg.Minutes > 0) {
			continue
		}
		for _, d := range dirs {
			if d == nil || len(d.Stops) < 2 {
				continue
			}
			start, end := ResolveRange(d, seg, ring)
			for _, i := range SegmentIndices(len(d.Stops), start, end, ring) {
				d.Stops[i].SegmentMinutes = seg.Minutes
				writes++
			}
		}
	}
	return writes
}

// ResolveRange maps a segment's station names to stop indices on d. An
// absent or unmatched name widens the range to the whole direction. On ring
// lines an end at or before the start resolves to the last stop with that
// name so the range can cover the wrap.
func ResolveRange(d *metro.LineDirection, seg metro.OverrideSegment, ring bool) (start, end int) {
	n := len(d.Stops)
	if seg.WholeLine() {
		return 0, n - 1
	}
	start, end = d.IndexOf(seg.From), d.IndexOf(seg.To)
	if start < 0 || end < 0 {
		return 0, n - 1
	}
	if ring && end <= start {
		end = d.LastIndexOf(seg.To)
	}
	return start, end
}

// SegmentIndices lists the segment indices covered by [start, end) on a
// direction with n stops. Both ends are clamped to [0, n-1]. Ring ranges with
// end before start wrap as [start, n-1) followed by [0, end).
func SegmentIndices(n, start, end int, ring bool) []int {
	if n < 2 {
		return nil
	}
	s, e := clampIndex(start, n), clampIndex(end, n)
	if s == e {
		return nil
	}
	var out []int
	if !ring || s < e {
		lo, hi := min(s, e), max(s, e)
		for i := lo; i < hi; i++ {
			out = append(out, i)
		}
		return out
	}
	for i := s; i < n-1; i++ {
		out = append(out, i)
	}
	for i := 0; i < e; i++ {
		out = append(out, i)
	}
	return out
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}
