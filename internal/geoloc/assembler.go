package geoloc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/model"
)

// Output field names of Geolocation.Fields.
const (
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldSatelliteZenith  = "satellite_zenith_angle"
	FieldSatelliteAzimuth = "satellite_azimuth_angle"
	FieldSolarZenith      = "solar_zenith_angle"
	FieldSolarAzimuth     = "solar_azimuth_angle"
	FieldLines            = "Lines"
	FieldSamples          = "Samples"
)

// Geolocation is the assembled per-area (or full-disk) geolocation. Lines
// and Samples are nil without an area. Call Close once the grids are no
// longer needed; some may be views into cache files.
type Geolocation struct {
	Latitude         *model.Grid
	Longitude        *model.Grid
	SatelliteZenith  *model.Grid
	SatelliteAzimuth *model.Grid
	SolarZenith      *model.Grid
	SolarAzimuth     *model.Grid
	Lines            *model.IndexGrid
	Samples          *model.IndexGrid

	closers []io.Closer
}

// Fields returns the output keyed by field name.
func (g *Geolocation) Fields() map[string]any {
	f := map[string]any{
		FieldLatitude:         g.Latitude,
		FieldLongitude:        g.Longitude,
		FieldSatelliteZenith:  g.SatelliteZenith,
		FieldSatelliteAzimuth: g.SatelliteAzimuth,
		FieldSolarZenith:      g.SolarZenith,
		FieldSolarAzimuth:     g.SolarAzimuth,
	}
	if g.Lines != nil {
		f[FieldLines] = g.Lines
		f[FieldSamples] = g.Samples
	}
	return f
}

// Close releases every cache entry the grids depend on.
func (g *Geolocation) Close() error {
	if g == nil {
		return nil
	}
	var errs []error
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}

// Assemble combines satellite angles, area indices and solar angles into
// the geolocation of area, or of the full disk when area is nil. It returns
// (nil, nil) when auto-generation is disabled for a missing artifact so
// batch callers can skip the scene; the condition is logged as a warning.
func (s *Service) Assemble(ctx context.Context, scanTime time.Time, md *model.Metadata, fd *FullDisk, bad model.BadValues, area model.Area) (geo *Geolocation, err error) {
	ctx, span := startSpan(ctx, "geoloc.Assemble", md, area)
	defer func() { endSpan(span, err) }()

	geo, err = s.assemble(ctx, scanTime, md, fd, bad, area)
	if errors.Is(err, ErrAutoGenerationDisabled) {
		s.log.Warn(ctx, "skipping geolocation: cache missing and auto-generation disabled",
			logging.String("scene", md.SceneID), logging.Err(err))
		return nil, nil
	}
	return geo, err
}

func (s *Service) assemble(ctx context.Context, scanTime time.Time, md *model.Metadata, fd *FullDisk, bad model.BadValues, area model.Area) (*Geolocation, error) {
	sat, err := s.SatelliteAngles(ctx, md, fd, bad, area)
	if err != nil {
		return nil, err
	}

	geo := &Geolocation{}
	if area == nil {
		geo.Latitude, geo.Longitude = fd.Latitude, fd.Longitude
		geo.SatelliteZenith, geo.SatelliteAzimuth = sat.Zenith, sat.Azimuth
		geo.closers = append(geo.closers, sat)
	} else {
		err := s.assembleArea(ctx, geo, md, fd, sat, bad, area)
		sat.Close()
		if err != nil {
			return nil, err
		}
	}

	solar, err := s.SolarAngles(ctx, md, geo.Latitude, geo.Longitude, bad, scanTime, area, s.cacheSolar)
	if err != nil {
		geo.Close()
		return nil, err
	}
	geo.SolarZenith, geo.SolarAzimuth = solar.Zenith, solar.Azimuth
	geo.closers = append(geo.closers, solar)

	applyMasks(geo, area != nil)
	return geo, nil
}

func (s *Service) assembleArea(ctx context.Context, geo *Geolocation, md *model.Metadata, fd *FullDisk, sat *Angles, bad model.BadValues, area model.Area) error {
	idx, err := s.Indices(ctx, md, fd, bad, area)
	if err != nil {
		return err
	}
	lines, samples := area.Shape()
	if err := s.reconcileIndex(ctx, idx, lines, samples); err != nil {
		return err
	}
	if geo.SatelliteZenith, err = gather(sat.Zenith, idx); err != nil {
		return err
	}
	if geo.SatelliteAzimuth, err = gather(sat.Azimuth, idx); err != nil {
		return err
	}
	// Area coordinates come straight from its projection; disk-edge pixels
	// are masked later from the satellite zenith.
	if geo.Longitude, geo.Latitude, err = area.LonLats(); err != nil {
		return err
	}
	if !geo.Latitude.SameShape(geo.SatelliteZenith) {
		return &IndexError{Path: idx.Path, Reason: fmt.Sprintf("area lon/lat %dx%d differ from index %dx%d",
			geo.Latitude.Lines, geo.Latitude.Samples, geo.SatelliteZenith.Lines, geo.SatelliteZenith.Samples)}
	}
	geo.Lines, geo.Samples = idx.Lines, idx.Samples
	return nil
}

// reconcileIndex checks that both index arrays have the area's shape. A
// flat 1-D array of the right size is reshaped with a warning: it cannot
// be told apart from a transposed array, so the result is best-effort.
func (s *Service) reconcileIndex(ctx context.Context, idx *SectorIndex, lines, samples int) error {
	for _, g := range []*model.IndexGrid{idx.Lines, idx.Samples} {
		if g.Lines == lines && g.Samples == samples {
			continue
		}
		if g.Len() == lines*samples && (g.Lines == 1 || g.Samples == 1) {
			s.log.Warn(ctx, "reshaping flattened index array",
				logging.String("path", idx.Path),
				logging.String("from", fmt.Sprintf("%dx%d", g.Lines, g.Samples)),
				logging.String("to", fmt.Sprintf("%dx%d", lines, samples)))
			g.Lines, g.Samples = lines, samples
			continue
		}
		return &IndexError{Path: idx.Path, Reason: fmt.Sprintf("index array %dx%d does not fit area %dx%d", g.Lines, g.Samples, lines, samples)}
	}
	return nil
}

// gather picks src values at the resolved indices, filling unmatched
// pixels with model.FillValue.
func gather(src *model.Grid, idx *SectorIndex) (*model.Grid, error) {
	out := model.NewFilledGrid(idx.Lines.Lines, idx.Lines.Samples, model.FillValue)
	for j, line := range idx.Lines.Data {
		sample := idx.Samples.Data[j]
		if line == model.NoIndex || sample == model.NoIndex {
			continue
		}
		if line < 0 || line >= src.Lines || sample < 0 || sample >= src.Samples {
			return nil, &IndexError{Path: idx.Path, Reason: fmt.Sprintf("index (%d, %d) outside full disk %dx%d", line, sample, src.Lines, src.Samples)}
		}
		out.Data[j] = src.At(line, sample)
	}
	return out, nil
}

// applyMasks masks satellite angles at or below the fill value, solar
// angles wherever the satellite zenith is masked, and, for areas, the
// coordinates as well.
func applyMasks(geo *Geolocation, area bool) {
	zen := geo.SatelliteZenith
	zen.MaskWhere(func(i int) bool { return zen.Data[i] <= model.FillValue })
	azm := geo.SatelliteAzimuth
	azm.MaskWhere(func(i int) bool { return azm.Data[i] <= model.FillValue || zen.Masked(i) })

	satMasked := func(i int) bool { return zen.Masked(i) }
	geo.SolarZenith.MaskWhere(satMasked)
	geo.SolarAzimuth.MaskWhere(satMasked)
	if area {
		geo.Latitude.MaskWhere(satMasked)
		geo.Longitude.MaskWhere(satMasked)
	}
}

// Locate loads or computes the full-disk grid and assembles the
// geolocation of area. Like Assemble, it returns (nil, nil) when
// auto-generation is disabled for a missing artifact.
func (s *Service) Locate(ctx context.Context, scanTime time.Time, md *model.Metadata, bad model.BadValues, area model.Area) (*Geolocation, error) {
	fd, err := s.LatLon(ctx, md, bad, area)
	if errors.Is(err, ErrAutoGenerationDisabled) {
		s.log.Warn(ctx, "skipping geolocation: full disk missing and auto-generation disabled",
			logging.String("scene", md.SceneID), logging.Err(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	geo, err := s.Assemble(ctx, scanTime, md, fd, bad, area)
	if err != nil || geo == nil {
		fd.Close()
		return nil, err
	}
	if area == nil {
		geo.closers = append(geo.closers, fd)
	} else {
		fd.Close()
	}
	return geo, nil
}
