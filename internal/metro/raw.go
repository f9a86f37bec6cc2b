package metro

import "metro-simulator/internal/clock"

// Raw records as delivered by a data source, before ingest.

// LineInfo is a line/station snapshot entry.
type LineInfo struct {
	ID       string
	Color    string
	Ring     bool
	Stations []Station
}

// TimetableRow is one stop of one direction in source order.
type TimetableRow struct {
	LineID      string
	Label       string
	StationID   string
	StationName string
	FirstTime   string
	LastTime    string
}

// RawSegment is an override segment before normalization. Range is nil
// when the source gave none.
type RawSegment struct {
	Range []string
	Time  clock.Minutes
}

// RawWindow holds either a scalar duration for the whole line or a list of
// segments, depending on the source payload shape.
type RawWindow struct {
	Key      string
	Scalar   *clock.Minutes
	Segments []RawSegment
}

// RawOverride is one interval record: a line, the ISO weekdays it covers,
// and its windows in source order.
type RawOverride struct {
	LineID   string
	Weekdays []int
	Windows  []RawWindow
}

// Snapshot is a full load from a data source.
type Snapshot struct {
	Lines     []LineInfo
	Timetable []TimetableRow
	Overrides []RawOverride
}
