// Package feed loads the raw metro datasets from JSON files.
package feed

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"metro-simulator/internal/metro"
)

var ErrInvalidPayload = errors.New("invalid payload")

const (
	LinesFile     = "lines.json"
	ScheduleFile  = "schedule.json"
	IntervalsFile = "intervals.json"
)

// Load reads lines.json, schedule.json and, when present, intervals.json
// from dir.
func Load(dir string) (metro.Snapshot, error) {
	var snap metro.Snapshot

	b, err := os.ReadFile(filepath.Join(dir, LinesFile))
	if err != nil {
		return snap, fmt.Errorf("read lines: %w", err)
	}
	lines, err := DecodeLines(b)
	if err != nil {
		return snap, err
	}

	b, err = os.ReadFile(filepath.Join(dir, ScheduleFile))
	if err != nil {
		return snap, fmt.Errorf("read schedule: %w", err)
	}
	rows, headers, err := DecodeSchedule(b)
	if err != nil {
		return snap, err
	}

	snap.Lines = MergeLineInfo(lines, headers)
	snap.Timetable = rows

	b, err = os.ReadFile(filepath.Join(dir, IntervalsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("no %s in %s; running on baseline durations", IntervalsFile, dir)
	case err != nil:
		return snap, fmt.Errorf("read intervals: %w", err)
	default:
		if snap.Overrides, err = DecodeIntervals(b); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// MergeLineInfo completes the station dataset with schedule headers: a
// missing color is filled in and lines only known to the schedule are
// appended.
func MergeLineInfo(lines, headers []metro.LineInfo) []metro.LineInfo {
	index := make(map[string]int, len(lines))
	for i, l := range lines {
		index[l.ID] = i
	}
	for _, h := range headers {
		i, ok := index[h.ID]
		if !ok {
			index[h.ID] = len(lines)
			lines = append(lines, h)
			continue
		}
		if lines[i].Color == "" {
			lines[i].Color = h.Color
		}
		lines[i].Ring = lines[i].Ring || h.Ring
	}
	return lines
}
