package clock

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the wrap applied to clock deltas that cross midnight.
const MinutesPerDay = 24 * 60

// ParseClock parses "HH:MM" into minutes since midnight.
// Empty or unparseable input yields 0.
func ParseClock(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0
	}
	total := h*60 + m
	if total < 0 {
		return 0
	}
	return total
}

// ParseDuration converts a duration value to minutes. Numbers are taken as
// minutes; strings may be "MM:SS" or a plain number. Anything else is 0.
func ParseDuration(v any) float64 {
	switch x := v.(type) {
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		return finite(f)
	case string:
		return parseDurationString(x)
	case Minutes:
		return float64(x)
	}
	return 0
}

func parseDurationString(s string) float64 {
	text := strings.TrimSpace(s)
	if text == "" {
		return 0
	}
	if mm, ss, ok := strings.Cut(text, ":"); ok && isDigits(mm, 1, 2) && isDigits(ss, 2, 2) {
		m, _ := strconv.Atoi(mm)
		sec, _ := strconv.Atoi(ss)
		return float64(m) + float64(sec)/60
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func isDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Minutes is a duration in minutes decoded from either a JSON number or a
// JSON string. Decoding never fails; unusable payloads become 0.
type Minutes float64

func (m *Minutes) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		*m = 0
		return nil
	}
	*m = Minutes(ParseDuration(v))
	return nil
}

// Duration converts minutes to a time.Duration rounded to the nanosecond.
func (m Minutes) Duration() time.Duration {
	return time.Duration(math.Round(float64(m) * float64(time.Minute)))
}

// MinutesOfDay returns the minutes elapsed since local midnight of t.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// OnDay returns the wall-clock time offset after midnight on t's calendar
// day in t's location. The offset is read as hours, minutes and seconds, so
// 05:00 stays 05:00 local on days with a DST transition.
func OnDay(t time.Time, offset time.Duration) time.Time {
	y, m, d := t.Date()
	h := int(offset / time.Hour)
	mm := int(offset % time.Hour / time.Minute)
	sec := int(offset % time.Minute / time.Second)
	return time.Date(y, m, d, h, mm, sec, 0, t.Location())
}

// ISOWeekday numbers weekdays 1..7 with Sunday as 7.
func ISOWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}
