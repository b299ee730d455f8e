package core

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances
// (kilometres).
const EarthRadiusKm = 6371.0

// KmPerDegree is the nominal length of one great-circle degree used when
// converting pixel spacing in degrees into a resolution in kilometres.
const KmPerDegree = 111.1

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// clip bounds v to [-1, 1] so inverse trig never sees round-off overshoot.
func clip(v float64) float64 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return v
}

// GreatCircleAngle returns the angular separation of two points.
func GreatCircleAngle(lat1, lon1, lat2, lon2 float64) s1.Angle {
	return s2.LatLngFromDegrees(lat1, lon1).Distance(s2.LatLngFromDegrees(lat2, lon2))
}

// GreatCircleKm returns the great-circle distance in kilometres.
func GreatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	return GreatCircleAngle(lat1, lon1, lat2, lon2).Radians() * EarthRadiusKm
}

// AngleFromKm converts a surface distance into a central angle.
func AngleFromKm(km float64) s1.Angle {
	return s1.Angle(km / EarthRadiusKm)
}

// Destination returns the point reached by travelling km along the given
// initial bearing (degrees clockwise from north).
func Destination(lat, lon, bearingDeg, km float64) (float64, float64) {
	d := km / EarthRadiusKm
	phi1 := lat * deg2rad
	lam1 := lon * deg2rad
	theta := bearingDeg * deg2rad

	phi2 := math.Asin(clip(math.Sin(phi1)*math.Cos(d) + math.Cos(phi1)*math.Sin(d)*math.Cos(theta)))
	lam2 := lam1 + math.Atan2(
		math.Sin(theta)*math.Sin(d)*math.Cos(phi1),
		math.Cos(d)-math.Sin(phi1)*math.Sin(phi2),
	)
	return phi2 * rad2deg, wrapLon(lam2 * rad2deg)
}

func wrapLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
