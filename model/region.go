package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

// Area is a target sector: a fixed projection and pixel grid that is
// mapped onto the full-disk sensor grid.
type Area interface {
	// AreaID names the sector, e.g. "tc2024wp05" or "japan".
	AreaID() string
	// Shape returns the sector grid as (lines, samples).
	Shape() (int, int)
	// Center returns the sector centre in degrees.
	Center() (lat, lon float64)
	// ProjParams returns the projection definition used for the cache key.
	ProjParams() map[string]string
	// PixelSize returns the pixel size in metres along x and y.
	PixelSize() (x, y float64)
	// LonLats returns per-pixel longitude and latitude grids in degrees.
	LonLats() (lons, lats *Grid, err error)
	// Dynamic reports whether the sector moves from scene to scene.
	Dynamic() bool
}

// metresPerDegree is the length of one degree of latitude on the mean sphere.
const metresPerDegree = 111_195.0

// LatLonArea is a regular latitude/longitude sector centred on a point,
// with pixel sizes given in metres at the centre latitude.
type LatLonArea struct {
	ID        string
	Lines     int
	Samples   int
	CenterLat float64
	CenterLon float64
	PixelX    float64
	PixelY    float64
	IsDynamic bool
}

// AreaID implements Area.
func (a *LatLonArea) AreaID() string { return a.ID }

// Shape implements Area.
func (a *LatLonArea) Shape() (int, int) { return a.Lines, a.Samples }

// Center implements Area.
func (a *LatLonArea) Center() (float64, float64) { return a.CenterLat, a.CenterLon }

// PixelSize implements Area.
func (a *LatLonArea) PixelSize() (float64, float64) { return a.PixelX, a.PixelY }

// Dynamic implements Area.
func (a *LatLonArea) Dynamic() bool { return a.IsDynamic }

// ProjParams implements Area.
func (a *LatLonArea) ProjParams() map[string]string {
	return map[string]string{
		"proj":  "eqc",
		"lat_0": strconv.FormatFloat(a.CenterLat, 'g', -1, 64),
		"lon_0": strconv.FormatFloat(a.CenterLon, 'g', -1, 64),
		"dx":    strconv.FormatFloat(a.PixelX, 'g', -1, 64),
		"dy":    strconv.FormatFloat(a.PixelY, 'g', -1, 64),
	}
}

func (a *LatLonArea) steps() (dLon, dLat float64) {
	dLat = a.PixelY / metresPerDegree
	cosLat := math.Cos(a.CenterLat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLon = a.PixelX / (metresPerDegree * cosLat)
	return dLon, dLat
}

// LonLats implements Area. Line 0 is the northern edge.
func (a *LatLonArea) LonLats() (*Grid, *Grid, error) {
	if a.Lines <= 0 || a.Samples <= 0 {
		return nil, nil, fmt.Errorf("area %q has invalid shape %dx%d", a.ID, a.Lines, a.Samples)
	}
	if a.PixelX <= 0 || a.PixelY <= 0 {
		return nil, nil, fmt.Errorf("area %q has invalid pixel size %gx%g", a.ID, a.PixelX, a.PixelY)
	}
	dLon, dLat := a.steps()
	lons := NewGrid(a.Lines, a.Samples)
	lats := NewGrid(a.Lines, a.Samples)
	lat0 := a.CenterLat + dLat*float64(a.Lines-1)/2
	lon0 := a.CenterLon - dLon*float64(a.Samples-1)/2
	for i := 0; i < a.Lines; i++ {
		lat := lat0 - dLat*float64(i)
		for j := 0; j < a.Samples; j++ {
			lats.Set(i, j, lat)
			lons.Set(i, j, WrapLongitude(lon0+dLon*float64(j)))
		}
	}
	return lons, lats, nil
}

// AreaBound returns the geographic bounding box of an area's pixel centres
// and whether the box is usable. Areas spanning the antimeridian report
// false because a single orb.Bound cannot describe them.
func AreaBound(a Area) (orb.Bound, bool, error) {
	lons, lats, err := a.LonLats()
	if err != nil {
		return orb.Bound{}, false, err
	}
	var mp orb.MultiPoint
	for i := range lons.Data {
		mp = append(mp, orb.Point{lons.Data[i], lats.Data[i]})
	}
	if len(mp) == 0 {
		return orb.Bound{}, false, nil
	}
	b := mp.Bound()
	if b.Max.X()-b.Min.X() > 180 {
		return b, false, nil
	}
	return b, true, nil
}

// WrapLongitude folds a longitude in degrees into [-180, 180].
func WrapLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
