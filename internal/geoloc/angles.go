package geoloc

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/geoloc/core"
	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/model"
)

// solarStampLayout formats the scan time appended to solar-angle prefixes.
const solarStampLayout = "20060102T150405"

// Angles is a zenith/azimuth pair in degrees. Cached grids are valid until
// Close.
type Angles struct {
	Zenith  *model.Grid
	Azimuth *model.Grid

	entry *cache.Entry
}

// Close releases the backing cache entry, if any.
func (a *Angles) Close() error {
	if a == nil {
		return nil
	}
	return a.entry.Close()
}

func anglesFromEntry(entry *cache.Entry) (*Angles, error) {
	a := &Angles{Zenith: entry.Grid(arrayZenith), Azimuth: entry.Grid(arrayAzimuth), entry: entry}
	if a.Zenith == nil || a.Azimuth == nil {
		entry.Close()
		return nil, fmt.Errorf("%w: %s lacks angle arrays", cache.ErrCacheNotFound, entry.Path)
	}
	return a, nil
}

// SatelliteAngles returns the full-disk satellite zenith and azimuth,
// cached under GEOSAT. Off-disk pixels of fd stay sentinel.
func (s *Service) SatelliteAngles(ctx context.Context, md *model.Metadata, fd *FullDisk, bad model.BadValues, area model.Area) (*Angles, error) {
	if err := checkFullDisk(md, fd); err != nil {
		return nil, err
	}
	art := artifact{
		prefix:  cache.PrefixSatelliteAngles,
		policy:  area,
		names:   []string{arrayZenith, arrayAzimuth},
		lines:   md.NumLines,
		samples: md.NumSamples,
	}
	entry, err := s.loadOrCompute(ctx, md, art, func(ctx context.Context) ([]cache.Array, error) {
		zen, azm := core.SatelliteAngles(md, fd.Latitude, fd.Longitude, bad)
		return []cache.Array{{Name: arrayZenith, Grid: zen}, {Name: arrayAzimuth, Grid: azm}}, nil
	})
	if err != nil {
		return nil, err
	}
	return anglesFromEntry(entry)
}

// SolarAngles returns solar zenith and azimuth for lat/lon at scanTime.
// They are recomputed in memory unless cacheResult is set, in which case
// they are cached under GEOSOL_<scan time> for area.
func (s *Service) SolarAngles(ctx context.Context, md *model.Metadata, lat, lon *model.Grid, bad model.BadValues, scanTime time.Time, area model.Area, cacheResult bool) (*Angles, error) {
	if lat == nil || !lat.SameShape(lon) {
		return nil, fmt.Errorf("solar angles need lat/lon grids of one shape")
	}
	if !cacheResult {
		zen, azm := core.SolarAngles(lat, lon, scanTime, bad)
		return &Angles{Zenith: zen, Azimuth: azm}, nil
	}
	compute := func(context.Context) ([]cache.Array, error) {
		zen, azm := core.SolarAngles(lat, lon, scanTime, bad)
		return []cache.Array{{Name: arrayZenith, Grid: zen}, {Name: arrayAzimuth, Grid: azm}}, nil
	}

	art := artifact{
		prefix:  cache.PrefixSolarAngles + "_" + scanTime.UTC().Format(solarStampLayout),
		key:     area,
		policy:  area,
		names:   []string{arrayZenith, arrayAzimuth},
		lines:   lat.Lines,
		samples: lat.Samples,
	}
	entry, err := s.loadOrCompute(ctx, md, art, compute)
	if err != nil {
		return nil, err
	}
	return anglesFromEntry(entry)
}
