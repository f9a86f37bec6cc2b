package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"metro-simulator/internal/feed"
	"metro-simulator/internal/metro"
)

//go:embed schema.sql
var schemaSQL string

// ErrEmptySnapshot is returned when the database holds no import.
var ErrEmptySnapshot = errors.New("no imported snapshot")

const importedAtLayout = "2006-01-02T15:04:05.000000Z"

// Store is a snapshot source backed by Postgres or SQLite.
type Store struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

func Open(dsn string) (*Store, error) {
	driver, source := ParseDSN(dsn)
	if source == "" {
		return nil, fmt.Errorf("empty DSN")
	}
	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// A single connection also keeps ":memory:" databases alive.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}
	return &Store{conn: conn, driver: driver, now: time.Now}, nil
}

func (s *Store) Conn() *sql.DB { return s.conn }

func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) q(q string) string { return rebind(s.driver, q) }

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// EnsureSchema creates the snapshot tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Import stores a full snapshot under a new import id and returns it. The
// write is a single transaction; readers keep seeing the previous import
// until it commits.
func (s *Store) Import(ctx context.Context, snap metro.Snapshot, source string) (string, error) {
	id := uuid.New().String()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, l := range snap.Lines {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO metro_lines (import_id, line_id, seq, color, ring) VALUES (?, ?, ?, ?, ?)`),
			id, l.ID, i, l.Color, l.Ring); err != nil {
			return "", fmt.Errorf("insert line %s: %w", l.ID, err)
		}
		for j, st := range l.Stations {
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO metro_stations (import_id, line_id, seq, station_id, name, lon, lat) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				id, l.ID, j, st.ID, st.Name, st.Lon, st.Lat); err != nil {
				return "", fmt.Errorf("insert station %s/%d: %w", l.ID, j, err)
			}
		}
	}
	for i, r := range snap.Timetable {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO metro_timetable (import_id, seq, line_id, label, station_id, station_name, first_time, last_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			id, i, r.LineID, r.Label, r.StationID, r.StationName, r.FirstTime, r.LastTime); err != nil {
			return "", fmt.Errorf("insert timetable row %d: %w", i, err)
		}
	}
	for i, o := range snap.Overrides {
		windows, err := feed.EncodeWindows(o.Windows)
		if err != nil {
			return "", fmt.Errorf("encode windows for line %s: %w", o.LineID, err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO metro_intervals (import_id, seq, line_id, weekdays, windows) VALUES (?, ?, ?, ?, ?)`),
			id, i, o.LineID, formatWeekdays(o.Weekdays), string(windows)); err != nil {
			return "", fmt.Errorf("insert interval %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO metro_imports (import_id, imported_at, source) VALUES (?, ?, ?)`),
		id, s.now().UTC().Format(importedAtLayout), source); err != nil {
		return "", fmt.Errorf("insert import: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit import: %w", err)
	}
	log.Printf("imported snapshot id=%s lines=%d rows=%d overrides=%d", id, len(snap.Lines), len(snap.Timetable), len(snap.Overrides))
	return id, nil
}

// LatestImport returns the id of the most recent import.
func (s *Store) LatestImport(ctx context.Context) (string, error) {
	var id sql.NullString
	err := s.conn.QueryRowContext(ctx, `SELECT import_id FROM metro_imports ORDER BY imported_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && (!id.Valid || id.String == "")) {
		return "", ErrEmptySnapshot
	}
	if err != nil {
		return "", fmt.Errorf("latest import: %w", err)
	}
	return id.String, nil
}

// LoadSnapshot reads the most recent import.
func (s *Store) LoadSnapshot(ctx context.Context) (metro.Snapshot, string, error) {
	id, err := s.LatestImport(ctx)
	if err != nil {
		return metro.Snapshot{}, "", err
	}
	snap, err := s.LoadImport(ctx, id)
	return snap, id, err
}

// LoadImport reads one import by id.
func (s *Store) LoadImport(ctx context.Context, id string) (metro.Snapshot, error) {
	var snap metro.Snapshot
	var err error
	if snap.Lines, err = s.loadLines(ctx, id); err != nil {
		return snap, err
	}
	if snap.Timetable, err = s.loadTimetable(ctx, id); err != nil {
		return snap, err
	}
	if snap.Overrides, err = s.loadOverrides(ctx, id); err != nil {
		return snap, err
	}
	if len(snap.Lines) == 0 && len(snap.Timetable) == 0 {
		return snap, ErrEmptySnapshot
	}
	return snap, nil
}

func (s *Store) loadLines(ctx context.Context, id string) ([]metro.LineInfo, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(`SELECT line_id, color, ring FROM metro_lines WHERE import_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()
	var lines []metro.LineInfo
	index := make(map[string]int)
	for rows.Next() {
		var l metro.LineInfo
		if err := rows.Scan(&l.ID, &l.Color, &l.Ring); err != nil {
			return nil, err
		}
		index[l.ID] = len(lines)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.conn.QueryContext(ctx, s.q(`SELECT line_id, station_id, name, lon, lat FROM metro_stations WHERE import_id = ? ORDER BY line_id, seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var lineID string
		var st metro.Station
		if err := srows.Scan(&lineID, &st.ID, &st.Name, &st.Lon, &st.Lat); err != nil {
			return nil, err
		}
		i, ok := index[lineID]
		if !ok {
			continue
		}
		lines[i].Stations = append(lines[i].Stations, st)
	}
	return lines, srows.Err()
}

func (s *Store) loadTimetable(ctx context.Context, id string) ([]metro.TimetableRow, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(`SELECT line_id, label, station_id, station_name, first_time, last_time FROM metro_timetable WHERE import_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query timetable: %w", err)
	}
	defer rows.Close()
	var out []metro.TimetableRow
	for rows.Next() {
		var r metro.TimetableRow
		if err := rows.Scan(&r.LineID, &r.Label, &r.StationID, &r.StationName, &r.FirstTime, &r.LastTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadOverrides(ctx context.Context, id string) ([]metro.RawOverride, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(`SELECT line_id, weekdays, windows FROM metro_intervals WHERE import_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("query intervals: %w", err)
	}
	defer rows.Close()
	var out []metro.RawOverride
	for rows.Next() {
		var lineID, days, payload string
		if err := rows.Scan(&lineID, &days, &payload); err != nil {
			return nil, err
		}
		windows, err := feed.DecodeWindows([]byte(payload))
		if err != nil {
			log.Printf("skip interval record line=%s: %v", lineID, err)
			continue
		}
		out = append(out, metro.RawOverride{LineID: lineID, Weekdays: parseWeekdays(days), Windows: windows})
	}
	return out, rows.Err()
}

func formatWeekdays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseWeekdays(s string) []int {
	var out []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
