package sim

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"metro-simulator/internal/clock"
	"metro-simulator/internal/metro"
)

// Daily service window, as offsets from local midnight.
const (
	DefaultServiceStart = 5 * time.Hour
	DefaultServiceEnd   = 22*time.Hour + 30*time.Minute
)

var vehicleNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("metro-simulator/vehicle"))

// Simulator reconstructs the in-service fleet from metrics and a wall-clock
// instant. It keeps no state between queries.
//
// Each direction dispatches a vehicle every headway from service start,
// where the headway is the first segment's total duration. Dispatching stops
// at service end; vehicles already running finish their run.
type Simulator struct {
	ServiceStart time.Duration
	ServiceEnd   time.Duration
}

func NewSimulator() *Simulator {
	return &Simulator{ServiceStart: DefaultServiceStart, ServiceEnd: DefaultServiceEnd}
}

// Query returns every active vehicle at now. The service day is now's
// calendar day in now's location. Directions are processed in slice order,
// which also decides label ownership when vehicles overlap.
func (s *Simulator) Query(metrics []metro.AnimMetrics, now time.Time) []metro.Vehicle {
	start := clock.OnDay(now, s.ServiceStart)
	end := clock.OnDay(now, s.ServiceEnd)
	if now.Before(start) {
		return nil
	}
	cutoff := now
	if end.Before(cutoff) {
		cutoff = end
	}

	var out []metro.Vehicle
	labels := make(map[labelBucket]struct{})
	for i := range metrics {
		m := &metrics[i]
		if len(m.Segments) == 0 || len(m.Path) < 2 || m.Total <= 0 {
			continue
		}
		headway := m.Segments[0].Total
		if headway <= 0 {
			continue
		}
		kMax := int64(cutoff.Sub(start) / headway)
		kMin := int64(0)
		if late := now.Sub(start) - m.Total; late > 0 {
			kMin = int64((late + headway - 1) / headway)
		}
		for k := kMin; k <= kMax; k++ {
			departed := start.Add(time.Duration(k) * headway)
			elapsed := now.Sub(departed)
			if elapsed < 0 || elapsed > m.Total {
				continue
			}
			v := locate(m, elapsed)
			v.ID = uuid.NewSHA1(vehicleNamespace, []byte(m.ID+"|"+strconv.FormatInt(departed.UnixMilli(), 10))).String()
			v.Departed = departed
			b := bucketOf(v.Position)
			if _, taken := labels[b]; !taken {
				labels[b] = struct{}{}
				v.ShowLabel = true
				v.Caption = v.FromStation + " → " + v.ToStation
			}
			out = append(out, v)
		}
	}
	return out
}

// locate places a vehicle elapsed into its run on m.
func locate(m *metro.AnimMetrics, elapsed time.Duration) metro.Vehicle {
	var acc time.Duration
	j := len(m.Segments) - 1
	for i, seg := range m.Segments {
		if elapsed <= acc+seg.Total {
			j = i
			break
		}
		acc += seg.Total
	}
	seg := m.Segments[j]
	local := elapsed - acc
	from, to := m.Path[j], m.Path[j+1]

	v := metro.Vehicle{
		LineID:      m.LineID,
		Label:       m.Label,
		Color:       m.Color,
		From:        from,
		To:          to,
		Bearing:     bearingDeg(from, to),
		FromStation: m.StationNames[j],
		ToStation:   m.StationNames[j+1],
	}
	if local <= seg.Move && seg.Move > 0 {
		v.Position = interpolate(from, to, float64(local)/float64(seg.Move))
		v.RemainingMinutes = (seg.Move - min(local, seg.Move) + seg.Dwell).Minutes()
		return v
	}
	v.Position = to
	v.Dwelling = true
	v.RemainingMinutes = max(seg.Total-local, 0).Minutes()
	return v
}
