package core

import (
	"math"

	"github.com/signalsfoundry/geoloc/model"
)

// SatelliteLookAngles returns the satellite zenith and azimuth angles in
// degrees seen from a ground point. Azimuth is measured clockwise from
// north towards the sub-satellite point and lies in [0, 360).
//
// h is the satellite distance from the Earth centre and r the Earth radius,
// in the same unit.
func SatelliteLookAngles(lat, lon, subLat, subLon, h, r float64) (zenith, azimuth float64) {
	phi := lat * deg2rad
	phiS := subLat * deg2rad
	dLon := wrapLon(lon-subLon) * deg2rad

	cosBeta := clip(math.Sin(phi)*math.Sin(phiS) + math.Cos(phi)*math.Cos(phiS)*math.Cos(dLon))
	beta := math.Acos(cosBeta)
	sinBeta := math.Sin(beta)

	slant := math.Sqrt(h*h + r*r - 2*h*r*cosBeta)
	if slant == 0 {
		return 0, 0
	}
	zenith = math.Asin(clip(h*sinBeta/slant)) * rad2deg
	// Below the local horizon the zenith exceeds 90 degrees.
	if h*cosBeta < r {
		zenith = 180 - zenith
	}

	if sinBeta < 1e-12 {
		return zenith, 0
	}
	a := math.Asin(clip(math.Sin(math.Abs(dLon))*math.Cos(phiS)/sinBeta)) * rad2deg

	// The base angle a is folded into the quadrant where the sub-satellite
	// point lies as seen from the pixel.
	north := lat >= subLat
	west := dLon < 0
	switch {
	case north && west:
		azimuth = 180 - a
	case north && !west:
		azimuth = 180 + a
	case !north && west:
		azimuth = a
	default:
		azimuth = 360 - a
	}
	if azimuth >= 360 {
		azimuth -= 360
	} else if azimuth < 0 {
		azimuth += 360
	}
	return zenith, azimuth
}

// SatelliteAngles computes satellite zenith and azimuth grids for every
// valid pixel of lat/lon. Pixels flagged off-disk stay off-disk.
func SatelliteAngles(md *model.Metadata, lat, lon *model.Grid, bad model.BadValues) (zen, azm *model.Grid) {
	zen = model.NewGrid(lat.Lines, lat.Samples)
	azm = model.NewGrid(lat.Lines, lat.Samples)
	for i := range lat.Data {
		la, lo := lat.Data[i], lon.Data[i]
		if !validLatLon(la, lo, bad) {
			zen.Data[i] = bad.OffOfDisk
			azm.Data[i] = bad.OffOfDisk
			continue
		}
		zen.Data[i], azm.Data[i] = SatelliteLookAngles(la, lo, md.SubLat, md.SubLon, md.SatelliteDistance, md.EquatorRadius)
	}
	return zen, azm
}

// validLatLon rejects sentinels and anything outside the geographic range.
func validLatLon(lat, lon float64, bad model.BadValues) bool {
	if lat == bad.OffOfDisk || lon == bad.OffOfDisk {
		return false
	}
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -360 && lon <= 360
}
