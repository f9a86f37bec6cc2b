// Package gtfsrt encodes simulated vehicles as a GTFS-Realtime
// VehiclePositions feed.
package gtfsrt

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"metro-simulator/internal/metro"
)

const Version = "2.0"

// BuildFeed returns a full-dataset feed with one entity per vehicle.
func BuildFeed(vehicles []metro.Vehicle, now time.Time) *gtfsrtpb.FeedMessage {
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(Version),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(vehicles)),
	}
	for _, v := range vehicles {
		fm.Entity = append(fm.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(v.ID),
			Vehicle: vehiclePosition(v, now),
		})
	}
	return fm
}

// Marshal encodes the feed built from vehicles.
func Marshal(vehicles []metro.Vehicle, now time.Time) ([]byte, error) {
	return proto.Marshal(BuildFeed(vehicles, now))
}

func vehiclePosition(v metro.Vehicle, now time.Time) *gtfsrtpb.VehiclePosition {
	status := gtfsrtpb.VehiclePosition_IN_TRANSIT_TO
	if v.Dwelling {
		status = gtfsrtpb.VehiclePosition_STOPPED_AT
	}
	departed := v.Departed.In(now.Location())
	return &gtfsrtpb.VehiclePosition{
		Trip: &gtfsrtpb.TripDescriptor{
			TripId:    proto.String(TripID(v)),
			RouteId:   proto.String(v.LineID),
			StartTime: proto.String(departed.Format("15:04:05")),
			StartDate: proto.String(departed.Format("20060102")),
		},
		Vehicle: &gtfsrtpb.VehicleDescriptor{
			Id:    proto.String(v.ID),
			Label: proto.String(v.Label),
		},
		Position: &gtfsrtpb.Position{
			Latitude:  proto.Float32(float32(v.Position[1])),
			Longitude: proto.Float32(float32(v.Position[0])),
			Bearing:   proto.Float32(float32(v.Bearing)),
		},
		CurrentStatus: status.Enum(),
		Timestamp:     proto.Uint64(uint64(now.Unix())),
	}
}

// TripID names a run by its direction and departure time, e.g.
// "1-up-0530".
func TripID(v metro.Vehicle) string {
	return v.LineID + "-" + v.Label + "-" + v.Departed.Format("1504")
}
