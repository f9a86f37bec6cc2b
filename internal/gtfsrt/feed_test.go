package gtfsrt

import (
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"metro-simulator/internal/metro"
)

func TestMarshalVehiclePositions(t *testing.T) {
	now := time.Date(2026, time.October, 19, 5, 16, 0, 0, time.UTC)
	vs := []metro.Vehicle{
		{ID: "v-moving", LineID: "1", Label: "up", Position: [2]float64{121.5, 31.25}, Bearing: 90, Departed: now.Add(-16 * time.Minute)},
		{ID: "v-dwelling", LineID: "1", Label: "up", Position: [2]float64{121.4, 31.2}, Dwelling: true, Departed: now.Add(-8 * time.Minute)},
	}

	b, err := Marshal(vs, now)
	require.NoError(t, err)

	var fm gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &fm))
	assert.Equal(t, Version, fm.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, gtfsrtpb.FeedHeader_FULL_DATASET, fm.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(now.Unix()), fm.GetHeader().GetTimestamp())
	require.Len(t, fm.GetEntity(), 2)

	moving := fm.GetEntity()[0]
	assert.Equal(t, "v-moving", moving.GetId())
	vp := moving.GetVehicle()
	assert.Equal(t, gtfsrtpb.VehiclePosition_IN_TRANSIT_TO, vp.GetCurrentStatus())
	assert.Equal(t, "1", vp.GetTrip().GetRouteId())
	assert.Equal(t, "1-up-0500", vp.GetTrip().GetTripId())
	assert.Equal(t, "05:00:00", vp.GetTrip().GetStartTime())
	assert.Equal(t, "20261019", vp.GetTrip().GetStartDate())
	assert.InDelta(t, 31.25, vp.GetPosition().GetLatitude(), 1e-4)
	assert.InDelta(t, 121.5, vp.GetPosition().GetLongitude(), 1e-4)
	assert.InDelta(t, 90, vp.GetPosition().GetBearing(), 1e-4)

	assert.Equal(t, gtfsrtpb.VehiclePosition_STOPPED_AT, fm.GetEntity()[1].GetVehicle().GetCurrentStatus())
}

func TestBuildFeedEmpty(t *testing.T) {
	fm := BuildFeed(nil, time.Unix(0, 0))
	assert.Empty(t, fm.GetEntity())
	assert.NotNil(t, fm.GetHeader())
}
