package geoloc

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/model"
)

// CalibratedKind names a derived calibrated quantity.
type CalibratedKind string

const (
	Radiance              CalibratedKind = "RAD"
	Reflectance           CalibratedKind = "REF"
	BrightnessTemperature CalibratedKind = "BT"
)

const calibratedArrayName = "data"

// ParseCalibratedKind accepts the short or long spelling of a kind.
func ParseCalibratedKind(s string) (CalibratedKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rad", "radiance", "radiances":
		return Radiance, nil
	case "ref", "reflectance", "reflectances":
		return Reflectance, nil
	case "bt", "brightness_temperature", "brightness_temperatures":
		return BrightnessTemperature, nil
	default:
		return "", fmt.Errorf("unknown calibrated kind %q", s)
	}
}

// CalibratedCache caches derived radiance, reflectance and brightness
// temperature arrays per scan, reusing the geolocation cache protocol.
type CalibratedCache struct {
	svc *Service
}

// Calibrated returns the calibrated-data cache sharing s's configuration.
func (s *Service) Calibrated() *CalibratedCache {
	return &CalibratedCache{svc: s}
}

// CalibratedArray is one cached channel array, valid until Close.
type CalibratedArray struct {
	*model.Grid
	Path string

	entry *cache.Entry
}

// Close releases the backing cache entry.
func (a *CalibratedArray) Close() error {
	if a == nil {
		return nil
	}
	return a.entry.Close()
}

// Prefix returns the cache prefix of a channel at scanTime.
func (c *CalibratedCache) Prefix(kind CalibratedKind, channel string, scanTime time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, channelToken(channel), scanTime.UTC().Format(solarStampLayout))
}

// Get returns the cached array of channel, calling compute to produce it
// when absent. The array must have the area's shape, or the full-disk
// shape of md when area is nil.
func (c *CalibratedCache) Get(ctx context.Context, md *model.Metadata, area model.Area, scanTime time.Time, kind CalibratedKind, channel string,
	compute func(ctx context.Context) (*model.Grid, error)) (*CalibratedArray, error) {
	if _, err := ParseCalibratedKind(string(kind)); err != nil {
		return nil, err
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	lines, samples := md.NumLines, md.NumSamples
	if area != nil {
		lines, samples = area.Shape()
	}
	art := artifact{
		prefix:  c.Prefix(kind, channel, scanTime),
		key:     area,
		policy:  area,
		names:   []string{calibratedArrayName},
		lines:   lines,
		samples: samples,
	}
	entry, err := c.svc.loadOrCompute(ctx, md, art, func(ctx context.Context) ([]cache.Array, error) {
		g, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if g == nil || g.Lines != lines || g.Samples != samples || len(g.Data) != lines*samples {
			return nil, fmt.Errorf("calibrated %s %s: computed array does not have shape %dx%d", kind, channel, lines, samples)
		}
		return []cache.Array{{Name: calibratedArrayName, Grid: g}}, nil
	})
	if err != nil {
		return nil, err
	}
	g := entry.Grid(calibratedArrayName)
	if g == nil {
		entry.Close()
		return nil, fmt.Errorf("%w: %s lacks calibrated data", cache.ErrCacheNotFound, entry.Path)
	}
	return &CalibratedArray{Grid: g, Path: entry.Path, entry: entry}, nil
}

func channelToken(channel string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return '-'
	}, channel)
}
