package geoloc

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/geoloc/core"
	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/internal/nearest"
	"github.com/signalsfoundry/geoloc/model"
)

// DefaultROIFactor applies when metadata leaves the radius-of-influence
// multiplier unset.
const DefaultROIFactor = 5.0

// SectorIndex maps every area pixel to a full-disk (line, sample), or
// model.NoIndex where no full-disk pixel lies within the radius of
// influence.
type SectorIndex struct {
	Lines   *model.IndexGrid
	Samples *model.IndexGrid
	Path    string
}

// Valid returns the number of matched area pixels.
func (x *SectorIndex) Valid() int { return x.Lines.Valid() }

// RadiusOfInfluence returns the match radius in metres: roi_factor times
// res_km in metres, estimating res_km from fd when md does not carry it.
func RadiusOfInfluence(md *model.Metadata, fd *FullDisk, bad model.BadValues) (float64, error) {
	factor := md.ROIFactor
	if factor <= 0 {
		factor = DefaultROIFactor
	}
	resKm := md.ResKm
	if resKm <= 0 {
		est, ok := core.EstimateResKm(fd.Latitude, fd.Longitude, bad)
		if !ok {
			return 0, fmt.Errorf("cannot estimate res_km: no valid pixels near the grid centre")
		}
		resKm = est
	}
	return factor * 1000 * resKm, nil
}

// Indices resolves every pixel of area onto the full-disk grid with a
// bounded-radius nearest-neighbour search, cached under GEOINDS. An area
// without a single match leaves a no-coverage marker and fails with
// ErrCoverage; later calls fail with ErrNoCoverage without recomputing.
func (s *Service) Indices(ctx context.Context, md *model.Metadata, fd *FullDisk, bad model.BadValues, area model.Area) (*SectorIndex, error) {
	if area == nil {
		return nil, fmt.Errorf("indices need an area")
	}
	if err := checkFullDisk(md, fd); err != nil {
		return nil, err
	}
	lines, samples := area.Shape()
	art := artifact{
		prefix:  cache.PrefixIndices,
		key:     area,
		policy:  area,
		names:   []string{arrayLines, arraySamples},
		lines:   lines,
		samples: samples,
	}
	entry, err := s.loadOrCompute(ctx, md, art, func(ctx context.Context) ([]cache.Array, error) {
		idx, err := s.resolve(ctx, md, fd, bad, area)
		if err != nil {
			return nil, err
		}
		return []cache.Array{
			{Name: arrayLines, Grid: idx.Lines.ToGrid()},
			{Name: arraySamples, Grid: idx.Samples.ToGrid()},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	defer entry.Close()

	lg, sg := entry.Grid(arrayLines), entry.Grid(arraySamples)
	if lg == nil || sg == nil {
		return nil, fmt.Errorf("%w: %s lacks index arrays", cache.ErrCacheNotFound, entry.Path)
	}
	return &SectorIndex{
		Lines:   model.IndexGridFromGrid(lg),
		Samples: model.IndexGridFromGrid(sg),
		Path:    entry.Path,
	}, nil
}

func (s *Service) resolve(ctx context.Context, md *model.Metadata, fd *FullDisk, bad model.BadValues, area model.Area) (*SectorIndex, error) {
	roi, err := RadiusOfInfluence(md, fd, bad)
	if err != nil {
		return nil, err
	}
	lons, lats, err := area.LonLats()
	if err != nil {
		return nil, err
	}

	bound, useBound, err := model.AreaBound(area)
	if err != nil {
		return nil, err
	}
	if useBound {
		bound = padBound(bound, roi)
		// A padded box reaching over the antimeridian would drop matches.
		useBound = bound.Min.X() >= -180 && bound.Max.X() <= 180
	}

	index := nearest.New(roi)
	for i, lat := range fd.Latitude.Data {
		lon := fd.Longitude.Data[i]
		if lat == bad.OffOfDisk || lon == bad.OffOfDisk {
			continue
		}
		if useBound && !bound.Contains(orb.Point{lon, lat}) {
			continue
		}
		index.Insert(i, lat, lon)
	}

	fdSamples := fd.Latitude.Samples
	out := &SectorIndex{
		Lines:   model.NewIndexGrid(lats.Lines, lats.Samples),
		Samples: model.NewIndexGrid(lats.Lines, lats.Samples),
	}
	matched := 0
	for j := range lats.Data {
		id, _, ok := index.Nearest(lats.Data[j], lons.Data[j])
		if !ok {
			continue
		}
		out.Lines.Data[j] = id / fdSamples
		out.Samples.Data[j] = id % fdSamples
		matched++
	}

	s.log.Debug(ctx, "resolved area indices",
		logging.String("area", area.AreaID()),
		logging.Float("roi_m", roi),
		logging.Int("candidates", index.Len()),
		logging.Int("matched", matched),
		logging.Int("pixels", len(lats.Data)),
	)
	if matched == 0 {
		return nil, fmt.Errorf("%w: area %q has no full-disk pixel within %.0f m", cache.ErrCoverage, area.AreaID(), roi)
	}
	return out, nil
}

// padBound grows b by the radius of influence, widening longitudes by the
// convergence of meridians at the bound's most poleward edge.
func padBound(b orb.Bound, roiMeters float64) orb.Bound {
	padLat := roiMeters/1000/core.KmPerDegree + 0.01
	maxLat := math.Min(89, math.Max(math.Abs(b.Min.Y()), math.Abs(b.Max.Y()))+padLat)
	padLon := padLat / math.Cos(maxLat*math.Pi/180)
	return orb.Bound{
		Min: orb.Point{b.Min.X() - padLon, b.Min.Y() - padLat},
		Max: orb.Point{b.Max.X() + padLon, b.Max.Y() + padLat},
	}
}
