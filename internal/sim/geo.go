package sim

import "math"

// interpolate moves fraction of the way from a to b; points are [lon, lat].
func interpolate(a, b [2]float64, fraction float64) [2]float64 {
	return [2]float64{
		a[0] + (b[0]-a[0])*fraction,
		a[1] + (b[1]-a[1])*fraction,
	}
}

// bearingDeg is the initial great-circle bearing from a to b in [0, 360).
func bearingDeg(a, b [2]float64) float64 {
	lat1, lat2 := a[1]*math.Pi/180.0, b[1]*math.Pi/180.0
	dLon := (b[0] - a[0]) * math.Pi / 180.0
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// labelBucket is the grid cell used to keep one label per spot on the map.
type labelBucket struct{ x, y int64 }

const labelGrid = 5000

func bucketOf(p [2]float64) labelBucket {
	return labelBucket{int64(math.Round(p[0] * labelGrid)), int64(math.Round(p[1] * labelGrid))}
}
