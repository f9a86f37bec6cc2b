package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metro-simulator/internal/metro"
)

const linesJSON = `{"lines":[
  {"line_info":{"line_no":1,"color":"#E4002B"},
   "stations":[
     {"stat_id":101,"name_cn":"Xinzhuang","longitude":121.385,"latitude":31.111},
     {"stat_id":"102","name_cn":"Waihuanlu","longitude":"121.393","latitude":"31.120"},
     {"stat_id":103,"name_cn":"Lianhua Rd","longitude":0,"latitude":0}
   ]},
  {"line_info":{"line_no":"4"},"stations":[]}
]}`

const scheduleJSON = `{"lines":[
  {"line_info":{"line_no":1,"color":"#E4002B"},
   "timetable":{"timetable":[
     {"description":"to Fujin Rd","stat_id":101,"name":"Xinzhuang","first_time":"05:30","last_time":"22:30"},
     {"description":"to Fujin Rd","stat_id":102,"name":"Waihuanlu","first_time":"05:32","last_time":"22:32"},
     {"stat_id":101,"name":"Xinzhuang","first_time":"06:00","last_time":"23:00"}
   ]}},
  {"line_info":{"line_no":"4","color":"#461D84"},"timetable":{"timetable":[]}},
  {"line_info":{"line_no":9,"color":"#71C5E8"}}
]}`

const intervalsJSON = `[
  {"line":1,"interval":[
    {"range":[1,2,3,4,5],"range_interval":{
      "07:00-09:00":"02:30",
      "other":[{"station_range":["Xinzhuang","Waihuanlu"],"time":"3:00"},{"station_range":"","time":4}],
      "17:00-19:00":2.5,
      "broken":{"x":1}
    }},
    {"range":[6,7],"range_interval":{"other":"05:00"}}
  ]},
  {"line":"4","interval":[{"range":[1],"range_interval":null}]}
]`

func TestDecodeLines(t *testing.T) {
	lines, err := DecodeLines([]byte(linesJSON))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	l1 := lines[0]
	assert.Equal(t, "1", l1.ID)
	assert.Equal(t, "#E4002B", l1.Color)
	require.Len(t, l1.Stations, 3)
	assert.Equal(t, metro.Station{ID: "102", Name: "Waihuanlu", Lon: 121.393, Lat: 31.12}, l1.Stations[1])
	assert.False(t, l1.Stations[2].HasCoords())
	assert.Equal(t, "4", lines[1].ID)

	_, err = DecodeLines([]byte(`{"data":[]}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeSchedule(t *testing.T) {
	rows, headers, err := DecodeSchedule([]byte(scheduleJSON))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, metro.TimetableRow{
		LineID: "1", Label: "to Fujin Rd", StationID: "102", StationName: "Waihuanlu",
		FirstTime: "05:32", LastTime: "22:32",
	}, rows[1])
	assert.Empty(t, rows[2].Label)

	require.Len(t, headers, 2, "line without a timetable is skipped")
	assert.Equal(t, "#461D84", headers[1].Color)
}

func TestDecodeIntervalsKeepsKeyOrder(t *testing.T) {
	recs, err := DecodeIntervals([]byte(intervalsJSON))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	wk := recs[0]
	assert.Equal(t, "1", wk.LineID)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, wk.Weekdays)
	require.Len(t, wk.Windows, 3, "object payload is skipped")

	assert.Equal(t, "07:00-09:00", wk.Windows[0].Key)
	require.NotNil(t, wk.Windows[0].Scalar)
	assert.InDelta(t, 2.5, float64(*wk.Windows[0].Scalar), 1e-9)

	other := wk.Windows[1]
	assert.Equal(t, metro.OtherWindow, other.Key)
	assert.Nil(t, other.Scalar)
	require.Len(t, other.Segments, 2)
	assert.Equal(t, []string{"Xinzhuang", "Waihuanlu"}, other.Segments[0].Range)
	assert.InDelta(t, 3, float64(other.Segments[0].Time), 1e-9)
	assert.Nil(t, other.Segments[1].Range)
	assert.InDelta(t, 4, float64(other.Segments[1].Time), 1e-9)

	assert.Equal(t, "17:00-19:00", wk.Windows[2].Key)

	assert.Equal(t, []int{6, 7}, recs[1].Weekdays)
	assert.Equal(t, "4", recs[2].LineID)
	assert.Empty(t, recs[2].Windows)
}

func TestEncodeWindowsRoundTrip(t *testing.T) {
	windows, err := DecodeWindows([]byte(`{"b":"01:30","a":[{"station_range":["X","Y"],"time":2}]}`))
	require.NoError(t, err)

	b, err := EncodeWindows(windows)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":1.5,"a":[{"station_range":["X","Y"],"time":2}]}`, string(b))

	again, err := DecodeWindows(b)
	require.NoError(t, err)
	assert.Equal(t, windows, again)
}

func TestDecodeWindowsRejectsNonObject(t *testing.T) {
	_, err := DecodeWindows([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LinesFile), []byte(linesJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScheduleFile), []byte(scheduleJSON), 0o644))

	snap, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, snap.Overrides)
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, "#461D84", snap.Lines[1].Color, "color filled from schedule header")
	assert.Len(t, snap.Timetable, 3)

	require.NoError(t, os.WriteFile(filepath.Join(dir, IntervalsFile), []byte(intervalsJSON), 0o644))
	snap, err = Load(dir)
	require.NoError(t, err)
	assert.Len(t, snap.Overrides, 3)

	_, err = Load(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
