package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"metro-simulator/internal/clock"
	"metro-simulator/internal/metro"
)

// Ident is an identifier published either as a JSON number or a string.
type Ident string

func (id *Ident) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*id = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Ident(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("identifier %s: %w", b, ErrInvalidPayload)
		}
		*id = Ident(n.String())
	}
	return nil
}

// coord accepts a number or a numeric string; anything else reads as 0,
// which downstream treats as a missing coordinate.
type coord float64

func (c *coord) UnmarshalJSON(b []byte) error {
	var v any
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	if err := d.Decode(&v); err != nil {
		*c = 0
		return nil
	}
	switch x := v.(type) {
	case json.Number:
		f, _ := x.Float64()
		*c = coord(f)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		*c = coord(f)
	default:
		*c = 0
	}
	return nil
}

type lineInfoJSON struct {
	LineNo Ident  `json:"line_no"`
	Color  string `json:"color"`
	Ring   bool   `json:"ring"`
}

type stationJSON struct {
	StatID    Ident  `json:"stat_id"`
	NameCN    string `json:"name_cn"`
	Name      string `json:"name"`
	Longitude coord  `json:"longitude"`
	Latitude  coord  `json:"latitude"`
}

type linesFile struct {
	Lines *[]struct {
		LineInfo lineInfoJSON  `json:"line_info"`
		Stations []stationJSON `json:"stations"`
	} `json:"lines"`
}

type timetableJSON struct {
	Description string `json:"description"`
	StatID      Ident  `json:"stat_id"`
	Name        string `json:"name"`
	FirstTime   string `json:"first_time"`
	LastTime    string `json:"last_time"`
}

type scheduleFile struct {
	Lines *[]struct {
		LineInfo  lineInfoJSON `json:"line_info"`
		Timetable *struct {
			Timetable []timetableJSON `json:"timetable"`
		} `json:"timetable"`
	} `json:"lines"`
}

type intervalJSON struct {
	Line     Ident `json:"line"`
	Interval []struct {
		Range         []int         `json:"range"`
		RangeInterval rangeInterval `json:"range_interval"`
	} `json:"interval"`
}

// DecodeLines parses the line/station dataset.
func DecodeLines(b []byte) ([]metro.LineInfo, error) {
	var f linesFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode lines: %w", err)
	}
	if f.Lines == nil {
		return nil, fmt.Errorf("decode lines: missing lines array: %w", ErrInvalidPayload)
	}
	out := make([]metro.LineInfo, 0, len(*f.Lines))
	for _, l := range *f.Lines {
		if l.LineInfo.LineNo == "" {
			continue
		}
		info := metro.LineInfo{ID: string(l.LineInfo.LineNo), Color: l.LineInfo.Color, Ring: l.LineInfo.Ring}
		for _, s := range l.Stations {
			name := s.NameCN
			if name == "" {
				name = s.Name
			}
			info.Stations = append(info.Stations, metro.Station{
				ID:   string(s.StatID),
				Name: name,
				Lon:  float64(s.Longitude),
				Lat:  float64(s.Latitude),
			})
		}
		out = append(out, info)
	}
	return out, nil
}

// DecodeSchedule parses the timetable dataset. It also returns the line
// headers it carries so lines absent from the station dataset keep a color.
func DecodeSchedule(b []byte) ([]metro.TimetableRow, []metro.LineInfo, error) {
	var f scheduleFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, nil, fmt.Errorf("decode schedule: %w", err)
	}
	if f.Lines == nil {
		return nil, nil, fmt.Errorf("decode schedule: missing lines array: %w", ErrInvalidPayload)
	}
	var rows []metro.TimetableRow
	var infos []metro.LineInfo
	for _, l := range *f.Lines {
		id := string(l.LineInfo.LineNo)
		if id == "" || l.Timetable == nil {
			continue
		}
		infos = append(infos, metro.LineInfo{ID: id, Color: l.LineInfo.Color, Ring: l.LineInfo.Ring})
		for _, t := range l.Timetable.Timetable {
			rows = append(rows, metro.TimetableRow{
				LineID:      id,
				Label:       strings.TrimSpace(t.Description),
				StationID:   string(t.StatID),
				StationName: t.Name,
				FirstTime:   t.FirstTime,
				LastTime:    t.LastTime,
			})
		}
	}
	return rows, infos, nil
}

// DecodeIntervals parses the override dataset, one record per line and
// weekday range.
func DecodeIntervals(b []byte) ([]metro.RawOverride, error) {
	var f []intervalJSON
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode intervals: %w", err)
	}
	var out []metro.RawOverride
	for _, rec := range f {
		if rec.Line == "" {
			continue
		}
		for _, iv := range rec.Interval {
			out = append(out, metro.RawOverride{
				LineID:   string(rec.Line),
				Weekdays: iv.Range,
				Windows:  []metro.RawWindow(iv.RangeInterval),
			})
		}
	}
	return out, nil
}

// DecodeWindows parses one range_interval object, keeping key order.
func DecodeWindows(b []byte) ([]metro.RawWindow, error) {
	var ri rangeInterval
	if err := json.Unmarshal(b, &ri); err != nil {
		return nil, err
	}
	return ri, nil
}

// EncodeWindows is the inverse of DecodeWindows.
func EncodeWindows(windows []metro.RawWindow) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, w := range windows {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(w.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		var v []byte
		if w.Scalar != nil {
			v, err = json.Marshal(float64(*w.Scalar))
		} else {
			segs := make([]segmentJSON, 0, len(w.Segments))
			for _, s := range w.Segments {
				segs = append(segs, segmentJSON{StationRange: s.Range, Time: float64(s.Time)})
			}
			v, err = json.Marshal(segs)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type segmentJSON struct {
	StationRange []string `json:"station_range,omitempty"`
	Time         float64  `json:"time"`
}

// rangeInterval decodes the window object in document order. Values are
// either a scalar duration for the whole line or a list of ranged segments;
// values of any other shape are skipped.
type rangeInterval []metro.RawWindow

func (r *rangeInterval) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("range_interval: expected object: %w", ErrInvalidPayload)
	}
	var out rangeInterval
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if w, ok := decodeWindow(key, raw); ok {
			out = append(out, w)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

func decodeWindow(key string, raw json.RawMessage) (metro.RawWindow, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return metro.RawWindow{}, false
	}
	w := metro.RawWindow{Key: strings.TrimSpace(key)}
	switch raw[0] {
	case '[':
		var segs []struct {
			StationRange json.RawMessage `json:"station_range"`
			Time         clock.Minutes   `json:"time"`
		}
		if err := json.Unmarshal(raw, &segs); err != nil {
			return metro.RawWindow{}, false
		}
		w.Segments = make([]metro.RawSegment, 0, len(segs))
		for _, s := range segs {
			var names []string
			if len(s.StationRange) > 0 && json.Unmarshal(s.StationRange, &names) != nil {
				names = nil
			}
			w.Segments = append(w.Segments, metro.RawSegment{Range: names, Time: s.Time})
		}
	case '{', 'n', 't', 'f':
		return metro.RawWindow{}, false
	default:
		var m clock.Minutes
		if err := json.Unmarshal(raw, &m); err != nil {
			return metro.RawWindow{}, false
		}
		w.Scalar = &m
	}
	return w, true
}
