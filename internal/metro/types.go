package metro

import "time"

// Direction signs fixed at ingest.
const (
	Forward = 1
	Reverse = -1
)

// Station is immutable after load.
type Station struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
}

// HasCoords reports whether the station can be placed on the map.
// A zero longitude or latitude is treated as missing.
func (s Station) HasCoords() bool {
	return s.Lon != 0 && s.Lat != 0
}

// Coord returns the station position as [lon, lat].
func (s Station) Coord() [2]float64 { return [2]float64{s.Lon, s.Lat} }

// Stop is one row of a direction's ordered sequence.
type Stop struct {
	Station   Station
	FirstTime int // minutes of day of the first scheduled departure
	LastTime  int // minutes of day of the last scheduled departure
	// SegmentMinutes is the travel time to the next stop. Zero means
	// undefined; it is always zero on the last stop.
	SegmentMinutes float64
}

// LineDirection is one travel orientation of a line. Stops[0] is the origin.
type LineDirection struct {
	LineID string
	Color  string
	Sign   int
	Label  string
	Stops  []Stop
}

// ID identifies the direction within a network.
func (d *LineDirection) ID() string { return d.LineID + "-" + d.Label }

// Clone returns a deep copy so mutations never touch a shared stop slice.
func (d *LineDirection) Clone() *LineDirection {
	c := *d
	c.Stops = append([]Stop(nil), d.Stops...)
	return &c
}

// SegmentDurations returns the per-segment minutes, len(Stops)-1 entries.
func (d *LineDirection) SegmentDurations() []float64 {
	if len(d.Stops) < 2 {
		return nil
	}
	out := make([]float64, len(d.Stops)-1)
	for i := range out {
		out[i] = d.Stops[i].SegmentMinutes
	}
	return out
}

// IndexOf returns the first stop index whose station name matches, or -1.
func (d *LineDirection) IndexOf(name string) int {
	for i, s := range d.Stops {
		if s.Station.Name == name {
			return i
		}
	}
	return -1
}

// LastIndexOf returns the last stop index whose station name matches, or -1.
func (d *LineDirection) LastIndexOf(name string) int {
	for i := len(d.Stops) - 1; i >= 0; i-- {
		if d.Stops[i].Station.Name == name {
			return i
		}
	}
	return -1
}

// OverrideSegment is a travel-duration correction. Empty From/To means the
// whole line.
type OverrideSegment struct {
	From    string  `json:"from,omitempty"`
	To      string  `json:"to,omitempty"`
	Minutes float64 `json:"minutes"`
}

// WholeLine reports whether the segment has no usable station range.
func (s OverrideSegment) WholeLine() bool { return s.From == "" || s.To == "" }

// OtherWindow is the fallback window key.
const OtherWindow = "other"

// OverrideWindow groups the segments active during one time-of-day key.
type OverrideWindow struct {
	Key      string            `json:"key"`
	Segments []OverrideSegment `json:"segments"`
}

// LineOverrideConfig holds the windows of one line for one ISO weekday
// (1..7, Sunday is 7). Windows keep their source order.
type LineOverrideConfig struct {
	LineID  string           `json:"lineId"`
	Weekday int              `json:"weekday"`
	Windows []OverrideWindow `json:"windows"`
}

// SegmentTiming splits one segment into its moving and dwelling phases.
type SegmentTiming struct {
	Total time.Duration `json:"total"`
	Move  time.Duration `json:"move"`
	Dwell time.Duration `json:"dwell"`
}

// AnimMetrics is the renderer-agnostic animation model of one direction.
// Instances are never modified after they are built.
type AnimMetrics struct {
	ID           string          `json:"id"`
	LineID       string          `json:"lineId"`
	Label        string          `json:"label"`
	Color        string          `json:"color"`
	Path         [][2]float64    `json:"path"`
	StationNames []string        `json:"stationNames"`
	StopIndices  []int           `json:"stopIndices"`
	Segments     []SegmentTiming `json:"segments"`
	Total        time.Duration   `json:"total"`
}

// Vehicle is produced per query and never stored.
type Vehicle struct {
	ID               string     `json:"id"`
	LineID           string     `json:"lineId"`
	Label            string     `json:"label"`
	Color            string     `json:"color"`
	Position         [2]float64 `json:"position"`
	From             [2]float64 `json:"from"`
	To               [2]float64 `json:"to"`
	Bearing          float64    `json:"bearing"`
	FromStation      string     `json:"fromStation"`
	ToStation        string     `json:"toStation"`
	Dwelling         bool       `json:"dwelling"`
	RemainingMinutes float64    `json:"remainingMinutesToNext"`
	Departed         time.Time  `json:"departed"`
	Caption          string     `json:"caption,omitempty"` // set only when ShowLabel
	ShowLabel        bool       `json:"showLabel"`
}
