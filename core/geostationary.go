package core

import (
	"math"

	"github.com/signalsfoundry/geoloc/model"
)

// FixedGridPoint solves the geostationary viewing geometry for one pair of
// scan angles (radians). It returns ok=false when the line of sight misses
// the Earth, i.e. the quadratic for the slant range has a negative
// discriminant.
//
// h is the satellite distance from the Earth centre, req/rpol the
// equatorial and polar radii (all in the same unit) and subLon the
// sub-satellite longitude in degrees.
func FixedGridPoint(x, y, h, req, rpol, subLon float64) (lat, lon float64, ok bool) {
	cosX, sinX := math.Cos(x), math.Sin(x)
	cosY, sinY := math.Cos(y), math.Sin(y)
	ratio := (req * req) / (rpol * rpol)

	a := sinX*sinX + cosX*cosX*(cosY*cosY+ratio*sinY*sinY)
	b := -2 * h * cosX * cosY
	c := h*h - req*req

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, 0, false
	}

	rs := (-b - math.Sqrt(disc)) / (2 * a)
	sx := rs * cosX * cosY
	sy := -rs * sinX
	sz := rs * cosX * sinY

	lat = math.Atan(ratio*sz/math.Sqrt((h-sx)*(h-sx)+sy*sy)) * rad2deg
	lon = subLon - math.Atan(sy/(h-sx))*rad2deg
	return lat, wrapLon(lon), true
}

// GeostationaryLatLon computes the full-disk latitude and longitude grids
// for md. Pixels whose line of sight misses the Earth are set to
// bad.OffOfDisk in both grids.
func GeostationaryLatLon(md *model.Metadata, bad model.BadValues) (lat, lon *model.Grid) {
	lat = model.NewGrid(md.NumLines, md.NumSamples)
	lon = model.NewGrid(md.NumLines, md.NumSamples)

	// Scan angles are separable: precompute one row and one column.
	xs := make([]float64, md.NumSamples)
	for j := range xs {
		xs[j] = md.Scan.X(j)
	}

	for i := 0; i < md.NumLines; i++ {
		y := md.Scan.Y(i)
		row := i * md.NumSamples
		for j, x := range xs {
			la, lo, ok := FixedGridPoint(x, y, md.SatelliteDistance, md.EquatorRadius, md.PolarRadius, md.SubLon)
			if !ok {
				lat.Data[row+j] = bad.OffOfDisk
				lon.Data[row+j] = bad.OffOfDisk
				continue
			}
			lat.Data[row+j] = la
			lon.Data[row+j] = lo
		}
	}
	return lat, lon
}

// EstimateResKm estimates the ground resolution at the grid centre from the
// spacing of adjacent valid pixels along lines and along samples, taking the
// larger of the two. It assumes locally uniform spacing, which is a poor
// approximation far from nadir. ok is false when no valid neighbour pair
// exists near the centre.
func EstimateResKm(lat, lon *model.Grid, bad model.BadValues) (float64, bool) {
	ci, cj := lat.Lines/2, lat.Samples/2
	valid := func(i, j int) bool {
		if i < 0 || j < 0 || i >= lat.Lines || j >= lat.Samples {
			return false
		}
		la, lo := lat.At(i, j), lon.At(i, j)
		return la != bad.OffOfDisk && lo != bad.OffOfDisk && la > -90.5 && la < 90.5
	}
	spacing := func(i1, j1, i2, j2 int) (float64, bool) {
		if !valid(i1, j1) || !valid(i2, j2) {
			return 0, false
		}
		return GreatCircleAngle(lat.At(i1, j1), lon.At(i1, j1), lat.At(i2, j2), lon.At(i2, j2)).Degrees(), true
	}

	var best float64
	found := false
	if d, ok := spacing(ci, cj, ci+1, cj); ok {
		best, found = d, true
	} else if d, ok := spacing(ci-1, cj, ci, cj); ok {
		best, found = d, true
	}
	if d, ok := spacing(ci, cj, ci, cj+1); ok {
		if !found || d > best {
			best = d
		}
		found = true
	} else if d, ok := spacing(ci, cj-1, ci, cj); ok {
		if !found || d > best {
			best = d
		}
		found = true
	}
	if !found || best <= 0 {
		return 0, false
	}
	return best * KmPerDegree, true
}
