package geoloc

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/geoloc/core"
	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/model"
)

// Array names inside cache artifacts.
const (
	arrayLats    = "lats"
	arrayLons    = "lons"
	arrayZenith  = "zen"
	arrayAzimuth = "azm"
	arrayLines   = "lines"
	arraySamples = "samples"
)

// FullDisk is the full-disk latitude and longitude grid of a scene. Grids
// loaded from a flat cache are read-only views into a memory mapping and
// become invalid after Close.
type FullDisk struct {
	Latitude  *model.Grid
	Longitude *model.Grid
	Path      string

	entry *cache.Entry
}

// Close releases the backing cache entry.
func (f *FullDisk) Close() error {
	if f == nil {
		return nil
	}
	return f.entry.Close()
}

// LatLon returns the full-disk latitude and longitude of md, computing and
// caching them under GEOLL on first use. area only matters for the
// auto-generation policy: the artifact itself is shared by every area.
func (s *Service) LatLon(ctx context.Context, md *model.Metadata, bad model.BadValues, area model.Area) (*FullDisk, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}
	art := artifact{
		prefix:  cache.PrefixLatLon,
		policy:  area,
		names:   []string{arrayLats, arrayLons},
		lines:   md.NumLines,
		samples: md.NumSamples,
	}
	entry, err := s.loadOrCompute(ctx, md, art, func(ctx context.Context) ([]cache.Array, error) {
		lat, lon := core.GeostationaryLatLon(md, bad)
		return []cache.Array{{Name: arrayLats, Grid: lat}, {Name: arrayLons, Grid: lon}}, nil
	})
	if err != nil {
		return nil, err
	}
	fd := &FullDisk{
		Latitude:  entry.Grid(arrayLats),
		Longitude: entry.Grid(arrayLons),
		Path:      entry.Path,
		entry:     entry,
	}
	if fd.Latitude == nil || fd.Longitude == nil {
		entry.Close()
		return nil, fmt.Errorf("%w: %s lacks lat/lon arrays", cache.ErrCacheNotFound, entry.Path)
	}
	return fd, nil
}

func checkFullDisk(md *model.Metadata, fd *FullDisk) error {
	if fd == nil || fd.Latitude == nil || fd.Longitude == nil {
		return fmt.Errorf("full-disk lat/lon required")
	}
	if fd.Latitude.Lines != md.NumLines || fd.Latitude.Samples != md.NumSamples || !fd.Latitude.SameShape(fd.Longitude) {
		return fmt.Errorf("full-disk grid %dx%d does not match metadata %dx%d",
			fd.Latitude.Lines, fd.Latitude.Samples, md.NumLines, md.NumSamples)
	}
	return nil
}
