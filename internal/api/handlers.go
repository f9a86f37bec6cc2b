package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"metro-simulator/internal/gtfsrt"
	"metro-simulator/internal/metro"
	"metro-simulator/internal/sim"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type HealthResponse struct {
	Status          string    `json:"status"`
	Instance        string    `json:"instance"`
	Directions      int       `json:"directions"`
	SnapshotVersion uint64    `json:"snapshotVersion"`
	SnapshotBuiltAt time.Time `json:"snapshotBuiltAt"`
	Timestamp       time.Time `json:"timestamp"`
}

type VehiclesResponse struct {
	Vehicles        []metro.Vehicle `json:"vehicles"`
	Count           int             `json:"count"`
	At              time.Time       `json:"at"`
	SnapshotVersion uint64          `json:"snapshotVersion"`
}

type SegmentResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TotalMs int64  `json:"totalMs"`
	MoveMs  int64  `json:"moveMs"`
	DwellMs int64  `json:"dwellMs"`
}

type DirectionResponse struct {
	ID           string            `json:"id"`
	LineID       string            `json:"lineId"`
	Label        string            `json:"label"`
	Color        string            `json:"color"`
	StationNames []string          `json:"stationNames"`
	Path         [][2]float64      `json:"path,omitempty"`
	HeadwayMs    int64             `json:"headwayMs"`
	TotalMs      int64             `json:"totalDurationMs"`
	Segments     []SegmentResponse `json:"segments,omitempty"`
	Window       string            `json:"window,omitempty"`
}

type LinesResponse struct {
	Directions      []DirectionResponse `json:"directions"`
	Count           int                 `json:"count"`
	SnapshotVersion uint64              `json:"snapshotVersion"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.net.Snapshot()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Instance:        s.instance,
		Directions:      len(snap.Metrics),
		SnapshotVersion: snap.Version,
		SnapshotBuiltAt: snap.BuiltAt.UTC(),
		Timestamp:       s.now().UTC(),
	})
}

// vehicles handles GET /api/vehicles?at=<RFC3339>&line=<id>
func (s *Server) vehicles(w http.ResponseWriter, r *http.Request) {
	at, err := s.queryTime(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid at parameter",
			Details: map[string]any{"at": r.URL.Query().Get("at"), "expected": "RFC3339 or unix milliseconds"},
		})
		return
	}
	snap := s.net.Snapshot()
	metrics := filterLine(snap.Metrics, r.URL.Query().Get("line"))
	vs := s.sim.Query(metrics, at)
	if vs == nil {
		vs = []metro.Vehicle{}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:        vs,
		Count:           len(vs),
		At:              at,
		SnapshotVersion: snap.Version,
	})
}

// lines handles GET /api/lines
func (s *Server) lines(w http.ResponseWriter, r *http.Request) {
	snap := s.net.Snapshot()
	resp := LinesResponse{Directions: make([]DirectionResponse, 0, len(snap.Metrics)), SnapshotVersion: snap.Version}
	for i := range snap.Metrics {
		resp.Directions = append(resp.Directions, s.direction(&snap.Metrics[i], false))
	}
	resp.Count = len(resp.Directions)
	writeJSON(w, http.StatusOK, resp)
}

// line handles GET /api/lines/{lineID}
func (s *Server) line(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")
	if _, err := s.net.Directions(lineID); errors.Is(err, sim.ErrUnknownLine) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "unknown line",
			Details: map[string]any{"line": lineID},
		})
		return
	}
	snap := s.net.Snapshot()
	resp := LinesResponse{Directions: []DirectionResponse{}, SnapshotVersion: snap.Version}
	for _, m := range filterLine(snap.Metrics, lineID) {
		resp.Directions = append(resp.Directions, s.direction(&m, true))
	}
	resp.Count = len(resp.Directions)
	writeJSON(w, http.StatusOK, resp)
}

// vehiclePositions handles GET /api/gtfs-rt/vehicle-positions
func (s *Server) vehiclePositions(w http.ResponseWriter, r *http.Request) {
	at, err := s.queryTime(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid at parameter"})
		return
	}
	vs := s.sim.Query(filterLine(s.net.Snapshot().Metrics, r.URL.Query().Get("line")), at)
	b, err := gtfsrt.Marshal(vs, at)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to encode feed",
			Details: map[string]any{"internal": err.Error()},
		})
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) direction(m *metro.AnimMetrics, detail bool) DirectionResponse {
	d := DirectionResponse{
		ID:           m.ID,
		LineID:       m.LineID,
		Label:        m.Label,
		Color:        m.Color,
		StationNames: m.StationNames,
		TotalMs:      m.Total.Milliseconds(),
	}
	if len(m.Segments) > 0 {
		d.HeadwayMs = m.Segments[0].Total.Milliseconds()
	}
	if s.windows != nil {
		d.Window, _ = s.windows.Applied(m.LineID)
	}
	if !detail {
		return d
	}
	d.Path = m.Path
	d.Segments = make([]SegmentResponse, len(m.Segments))
	for i, seg := range m.Segments {
		d.Segments[i] = SegmentResponse{
			From:    m.StationNames[i],
			To:      m.StationNames[i+1],
			TotalMs: seg.Total.Milliseconds(),
			MoveMs:  seg.Move.Milliseconds(),
			DwellMs: seg.Dwell.Milliseconds(),
		}
	}
	return d
}

// queryTime reads ?at= as RFC3339 or unix milliseconds, defaulting to now.
func (s *Server) queryTime(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("at")
	if v == "" {
		return s.now().In(s.tz), nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).In(s.tz), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.tz), nil
}

func filterLine(metrics []metro.AnimMetrics, lineID string) []metro.AnimMetrics {
	if lineID == "" {
		return metrics
	}
	var out []metro.AnimMetrics
	for _, m := range metrics {
		if m.LineID == lineID {
			out = append(out, m)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
