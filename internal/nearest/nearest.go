// Package nearest answers bounded-radius one-nearest-neighbour queries on
// the sphere using an S2 cell index.
package nearest

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/signalsfoundry/geoloc/core"
)

// minIndexedLevel is the coarsest level at which neighbour lookups are
// complete. Radii needing coarser cells fall back to a linear scan.
const minIndexedLevel = 3

type point struct {
	id int
	ll s2.LatLng
}

// Index stores points by S2 cell at a level whose cells are at least as
// wide as the search radius, so every match of a query lies in the query
// cell or one of its eight neighbours.
type Index struct {
	radius s1.Angle
	level  int
	points []point
	cells  map[s2.CellID][]int
}

// New returns an empty index answering queries within radiusMeters.
func New(radiusMeters float64) *Index {
	radius := s1.Angle(radiusMeters / (core.EarthRadiusKm * 1000))
	return &Index{
		radius: radius,
		level:  s2.MinWidthMetric.MaxLevel(float64(radius)),
		cells:  make(map[s2.CellID][]int),
	}
}

// Radius returns the search radius in metres.
func (x *Index) Radius() float64 {
	return float64(x.radius) * core.EarthRadiusKm * 1000
}

// Len returns the number of indexed points.
func (x *Index) Len() int { return len(x.points) }

// Insert adds a point under id. Invalid coordinates are ignored.
func (x *Index) Insert(id int, lat, lon float64) {
	if !validCoord(lat, lon) {
		return
	}
	ll := s2.LatLngFromDegrees(lat, lon)
	pos := len(x.points)
	x.points = append(x.points, point{id: id, ll: ll})
	if x.level >= minIndexedLevel {
		cell := s2.CellIDFromLatLng(ll).Parent(x.level)
		x.cells[cell] = append(x.cells[cell], pos)
	}
}

// Nearest returns the id of the closest point strictly within the radius
// and its distance in metres. Equidistant points resolve to the one
// inserted first.
func (x *Index) Nearest(lat, lon float64) (int, float64, bool) {
	if !validCoord(lat, lon) || len(x.points) == 0 {
		return 0, 0, false
	}
	query := s2.LatLngFromDegrees(lat, lon)

	best := -1
	var bestDist s1.Angle
	consider := func(pos int) {
		d := query.Distance(x.points[pos].ll)
		if d >= x.radius {
			return
		}
		if best < 0 || d < bestDist || (d == bestDist && pos < best) {
			best, bestDist = pos, d
		}
	}

	if x.level < minIndexedLevel {
		for pos := range x.points {
			consider(pos)
		}
	} else {
		cell := s2.CellIDFromLatLng(query).Parent(x.level)
		for _, c := range cellAndNeighbors(cell) {
			for _, pos := range x.cells[c] {
				consider(pos)
			}
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return x.points[best].id, float64(bestDist) * core.EarthRadiusKm * 1000, true
}

// cellAndNeighbors returns the given cell plus its edge and corner neighbours.
func cellAndNeighbors(cell s2.CellID) []s2.CellID {
	cells := make([]s2.CellID, 0, 9)
	cells = append(cells, cell)

	edgeNeighbors := cell.EdgeNeighbors()
	for i := 0; i < 4; i++ {
		cells = append(cells, edgeNeighbors[i])
	}

	seen := make(map[s2.CellID]bool, 9)
	for _, c := range cells {
		seen[c] = true
	}
	for i := 0; i < 4; i++ {
		for _, corner := range edgeNeighbors[i].EdgeNeighbors() {
			if !seen[corner] {
				seen[corner] = true
				cells = append(cells, corner)
			}
		}
	}
	return cells
}

func validCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
