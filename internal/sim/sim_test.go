package sim

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/clock"
	"metro-simulator/internal/metro"
	"metro-simulator/internal/schedule"
)

var shanghai = time.FixedZone("CST", 8*3600)

// at returns 2026-10-19 (a Monday) hh:mm in the test zone.
func at(hh, mm int) time.Time {
	return time.Date(2026, time.October, 19, hh, mm, 0, 0, shanghai)
}

func testLine(id string, minutes ...float64) schedule.Line {
	names := []string{"A", "B", "C", "D", "E"}[:len(minutes)+1]
	d := &metro.LineDirection{LineID: id, Label: id + " up", Sign: metro.Forward, Color: "#e00"}
	for i, n := range names {
		s := metro.Stop{Station: metro.Station{ID: id + n, Name: n, Lon: 121 + float64(i)*0.01, Lat: 31}}
		if i < len(minutes) {
			s.SegmentMinutes = minutes[i]
		}
		d.Stops = append(d.Stops, s)
	}
	return schedule.Line{ID: id, Directions: []*metro.LineDirection{d}}
}

func TestQueryDispatchScenario(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	m := net.Snapshot().Metrics
	require.Len(t, m, 1)
	assert.Equal(t, 17*time.Minute, m[0].Total)

	vs := NewSimulator().Query(m, at(5, 16))
	require.Len(t, vs, 3)

	byDeparture := map[time.Time]metro.Vehicle{}
	for _, v := range vs {
		byDeparture[v.Departed] = v
	}
	a, b := m[0].Path[0], m[0].Path[1]

	k2 := byDeparture[at(5, 16)]
	assert.Equal(t, a, k2.Position)
	assert.False(t, k2.Dwelling)
	assert.Equal(t, "A → B", k2.Caption)

	k1 := byDeparture[at(5, 8)]
	assert.Equal(t, b, k1.Position)
	assert.True(t, k1.Dwelling)
	assert.Equal(t, "B", k1.ToStation)
	assert.InDelta(t, 0, k1.RemainingMinutes, 1e-9)

	k0 := byDeparture[at(5, 0)]
	assert.False(t, k0.Dwelling)
	assert.Equal(t, "B", k0.FromStation)
	assert.Equal(t, "C", k0.ToStation)
	assert.Greater(t, k0.Position[0], b[0])
	assert.Less(t, k0.Position[0], m[0].Path[2][0])
	assert.InDelta(t, 90, k0.Bearing, 0.1)
}

func TestQueryBeforeServiceStart(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	assert.Empty(t, NewSimulator().Query(net.Snapshot().Metrics, at(4, 59)))
}

func TestQueryAfterServiceEndFinishesRunningVehicles(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	s := NewSimulator()

	vs := s.Query(net.Snapshot().Metrics, at(22, 40))
	require.Len(t, vs, 1)
	assert.Equal(t, at(22, 28), vs[0].Departed)

	assert.Empty(t, s.Query(net.Snapshot().Metrics, at(22, 50)))
}

func TestQueryVehicleIDsAreStable(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	s := NewSimulator()
	first := s.Query(net.Snapshot().Metrics, at(5, 16))
	later := s.Query(net.Snapshot().Metrics, at(5, 16).Add(20*time.Second))

	ids := map[string]bool{}
	for _, v := range first {
		ids[v.ID] = true
	}
	require.Len(t, ids, 3)
	for _, v := range later {
		assert.True(t, ids[v.ID], "vehicle %s changed identity", v.ID)
	}
}

func TestQueryShowsOneLabelPerSpot(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9), testLine("2", 8, 9)})
	vs := NewSimulator().Query(net.Snapshot().Metrics, at(5, 0))
	require.Len(t, vs, 2)
	assert.True(t, vs[0].ShowLabel)
	assert.False(t, vs[1].ShowLabel)
	assert.Equal(t, "1", vs[0].LineID)
}

func TestApplyOverrideSwapsSnapshot(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	before := net.Snapshot()
	assert.Zero(t, before.Version)

	err := net.ApplyOverride("1", []metro.OverrideSegment{{From: "A", To: "B", Minutes: 4}})
	require.NoError(t, err)

	after := net.Snapshot()
	assert.Equal(t, uint64(1), after.Version)
	assert.Equal(t, 13*time.Minute, after.Metrics[0].Total)
	assert.Equal(t, 17*time.Minute, before.Metrics[0].Total, "old snapshot must stay intact")

	dirs, err := net.Directions("1")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 9}, dirs[0].SegmentDurations())

	assert.ErrorIs(t, net.ApplyOverride("9", nil), ErrUnknownLine)
	_, err = net.Directions("9")
	assert.ErrorIs(t, err, ErrUnknownLine)
}

func TestApplyOverrideIsIdempotent(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9, 6)})
	segs := []metro.OverrideSegment{{From: "B", To: "D", Minutes: 3}, {Minutes: 0}}

	require.NoError(t, net.ApplyOverride("1", segs))
	once, err := json.Marshal(net.Snapshot().Metrics)
	require.NoError(t, err)

	require.NoError(t, net.ApplyOverride("1", segs))
	twice, err := json.Marshal(net.Snapshot().Metrics)
	require.NoError(t, err)

	assert.JSONEq(t, string(once), string(twice))
}

func TestApplyOverrideConcurrentReaders(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	s := NewSimulator()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := net.Snapshot()
				for _, m := range snap.Metrics {
					assert.Len(t, m.Segments, len(m.Path)-1)
				}
				s.Query(snap.Metrics, at(6, 0))
			}
		}()
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, net.ApplyOverride("1", []metro.OverrideSegment{{Minutes: float64(1 + i%5)}}))
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(50), net.Snapshot().Version)
}

func scalar(v float64) *clock.Minutes {
	m := clock.Minutes(v)
	return &m
}

func testCatalog(lines []schedule.Line) *schedule.Catalog {
	raw := []metro.RawOverride{{
		LineID:   "1",
		Weekdays: []int{1, 2, 3, 4, 5},
		Windows: []metro.RawWindow{
			{Key: "07:00-09:00", Scalar: scalar(5)},
			{Key: metro.OtherWindow, Scalar: scalar(8)},
		},
	}}
	return schedule.NewCatalog(raw, lines)
}

func TestPollIsEdgeTriggered(t *testing.T) {
	lines := []schedule.Line{testLine("1", 8, 9), testLine("2", 8, 9)}
	net := NewNetwork(lines)
	ws := NewWindowScheduler(net, testCatalog(lines), time.Minute, shanghai, nil)

	// First application layers "other" then the matching window.
	assert.Equal(t, []string{"1"}, ws.Poll(at(7, 30)))
	assert.Equal(t, uint64(2), net.Snapshot().Version)
	key, ok := ws.Applied("1")
	require.True(t, ok)
	assert.Equal(t, "07:00-09:00", key)
	assert.Equal(t, 10*time.Minute, net.Snapshot().Metrics[0].Total)

	assert.Empty(t, ws.Poll(at(7, 45)))
	assert.Equal(t, uint64(2), net.Snapshot().Version)

	assert.Equal(t, []string{"1"}, ws.Poll(at(9, 0)))
	assert.Equal(t, uint64(3), net.Snapshot().Version)
	key, _ = ws.Applied("1")
	assert.Equal(t, metro.OtherWindow, key)

	_, ok = ws.Applied("2")
	assert.False(t, ok)
}

func TestPollStartTimeDoesNotChangeDurations(t *testing.T) {
	catalogFor := func(lines []schedule.Line) *schedule.Catalog {
		return schedule.NewCatalog([]metro.RawOverride{{
			LineID:   "1",
			Weekdays: []int{1, 2, 3, 4, 5},
			Windows: []metro.RawWindow{
				{Key: "07:00-09:00", Segments: []metro.RawSegment{{Range: []string{"A", "B"}, Time: 2}}},
				{Key: metro.OtherWindow, Scalar: scalar(3)},
			},
		}}, lines)
	}
	durations := func(polls ...time.Time) []float64 {
		lines := []schedule.Line{testLine("1", 8, 9)}
		net := NewNetwork(lines)
		ws := NewWindowScheduler(net, catalogFor(lines), time.Minute, shanghai, nil)
		for _, p := range polls {
			ws.Poll(p)
		}
		dirs, err := net.Directions("1")
		require.NoError(t, err)
		return dirs[0].SegmentDurations()
	}

	early := durations(at(6, 0), at(8, 0))
	assert.Equal(t, []float64{2, 3}, early)
	assert.Equal(t, early, durations(at(8, 0)), "started inside the window")
}

func TestQueryServiceStartOnDSTDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})

	// 2026-03-08 springs forward at 02:00; service still opens at 05:00 local.
	vs := NewSimulator().Query(net.Snapshot().Metrics, time.Date(2026, time.March, 8, 5, 30, 0, 0, ny))
	require.Len(t, vs, 2)
	departed := map[string]bool{}
	for _, v := range vs {
		departed[v.Departed.Format("15:04")] = true
	}
	assert.Equal(t, map[string]bool{"05:16": true, "05:24": true}, departed)
}

func TestCaptionOnlyOnLabelledVehicles(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9), testLine("2", 8, 9)})
	vs := NewSimulator().Query(net.Snapshot().Metrics, at(5, 0))
	require.Len(t, vs, 2)
	assert.Equal(t, "A → B", vs[0].Caption)
	assert.Empty(t, vs[1].Caption)
}

func TestPollSkipsWeekdaysWithoutConfig(t *testing.T) {
	lines := []schedule.Line{testLine("1", 8, 9)}
	net := NewNetwork(lines)
	ws := NewWindowScheduler(net, testCatalog(lines), time.Minute, shanghai, nil)

	sunday := at(7, 30).AddDate(0, 0, 6)
	assert.Empty(t, ws.Poll(sunday))
	assert.Zero(t, net.Snapshot().Version)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	lines := []schedule.Line{testLine("1", 8, 9)}
	net := NewNetwork(lines)
	catalog := schedule.NewCatalog([]metro.RawOverride{{
		LineID:   "1",
		Weekdays: []int{1, 2, 3, 4, 5, 6, 7},
		Windows:  []metro.RawWindow{{Key: metro.OtherWindow, Scalar: scalar(6)}},
	}}, lines)
	ws := NewWindowScheduler(net, catalog, time.Hour, shanghai, nil)

	ws.Stop()
	ws.Start(context.Background())
	ws.Start(context.Background())
	ws.Stop()
	ws.Stop()

	// The immediate poll on start applies a window whatever the time of day.
	assert.GreaterOrEqual(t, net.Snapshot().Version, uint64(1))
}

type recordingPublisher struct {
	mu     sync.Mutex
	frames map[string][]int
}

func (p *recordingPublisher) PublishVehicles(lineID string, _ time.Time, vs []metro.Vehicle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = map[string][]int{}
	}
	p.frames[lineID] = append(p.frames[lineID], len(vs))
	return nil
}

func TestRunnerFramePublishesPerLine(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9), testLine("2", 4)})
	pub := &recordingPublisher{}
	r := NewRunner(net, NewSimulator(), pub, time.Second, shanghai, nil)

	vs := r.Frame(at(5, 16))
	assert.Len(t, vs, 5)
	assert.Equal(t, []int{3}, pub.frames["1"])
	assert.Equal(t, []int{2}, pub.frames["2"])

	r.Frame(at(4, 0))
	assert.Equal(t, []int{3, 0}, pub.frames["1"], "emptied line gets a clearing frame")
	assert.Equal(t, []int{2, 0}, pub.frames["2"])

	r.Frame(at(3, 0))
	assert.Equal(t, []int{3, 0}, pub.frames["1"], "no repeated clearing frames")
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	net := NewNetwork([]schedule.Line{testLine("1", 8, 9)})
	r := NewRunner(net, NewSimulator(), nil, 10*time.Millisecond, shanghai, nil)
	r.Stop()
	r.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	r.Stop()
}
