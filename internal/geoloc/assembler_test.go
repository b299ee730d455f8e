package geoloc

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/signalsfoundry/geoloc/core"
	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/internal/config"
	"github.com/signalsfoundry/geoloc/internal/observability"
	"github.com/signalsfoundry/geoloc/model"
)

func TestLocateFullDisk(t *testing.T) {
	env := newTestEnv(t, nil)
	md := testMetadata(10, 0.03)
	bad := model.DefaultBadValues()
	geo, err := env.svc.Locate(context.Background(), scanTime, md, bad, nil)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	defer geo.Close()

	fields := geo.Fields()
	if len(fields) != 6 {
		t.Fatalf("full-disk fields = %d, want 6", len(fields))
	}
	if _, ok := fields[FieldLines]; ok {
		t.Fatalf("full-disk geolocation must not carry index fields")
	}
	if math.Abs(geo.SatelliteZenith.At(5, 5)) > 1e-6 {
		t.Fatalf("nadir zenith = %v, want 0", geo.SatelliteZenith.At(5, 5))
	}
	corner := 0
	if !geo.SatelliteZenith.Masked(corner) || !geo.SatelliteAzimuth.Masked(corner) {
		t.Fatalf("off-disk satellite angles not masked")
	}
	if !geo.SolarZenith.Masked(corner) || !geo.SolarAzimuth.Masked(corner) {
		t.Fatalf("off-disk solar angles not masked")
	}
	if geo.Latitude.Masked(corner) {
		t.Fatalf("full-disk latitude keeps its sentinel instead of a mask")
	}
	if geo.Latitude.Data[corner] != bad.OffOfDisk {
		t.Fatalf("corner latitude = %v, want %v", geo.Latitude.Data[corner], bad.OffOfDisk)
	}
	if geo.SolarZenith.Masked(55) || geo.SatelliteZenith.Masked(55) {
		t.Fatalf("nadir pixel masked")
	}
}

func TestLocateArea(t *testing.T) {
	for _, backend := range []string{"memmap", "zarr"} {
		t.Run(backend, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.Cache.Backend = backend })
			ctx := context.Background()
			md := fineMetadata()
			area := testArea("equator", 0, 140, 150000, false)

			geo, err := env.svc.Locate(ctx, scanTime, md, model.DefaultBadValues(), area)
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			fields := geo.Fields()
			for _, name := range []string{FieldLatitude, FieldLongitude, FieldSatelliteZenith, FieldSatelliteAzimuth,
				FieldSolarZenith, FieldSolarAzimuth, FieldLines, FieldSamples} {
				if fields[name] == nil {
					t.Fatalf("field %q missing", name)
				}
			}
			if geo.Latitude.Lines != 3 || geo.Latitude.Samples != 3 {
				t.Fatalf("latitude shape %dx%d, want 3x3", geo.Latitude.Lines, geo.Latitude.Samples)
			}
			if geo.Lines.At(1, 1) != 10 || geo.Samples.At(1, 1) != 10 {
				t.Fatalf("centre index (%d, %d), want (10, 10)", geo.Lines.At(1, 1), geo.Samples.At(1, 1))
			}
			if math.Abs(geo.SatelliteZenith.At(1, 1)) > 1e-6 {
				t.Fatalf("centre satellite zenith = %v, want 0", geo.SatelliteZenith.At(1, 1))
			}
			if math.Abs(geo.Latitude.At(1, 1)) > 1e-9 || math.Abs(geo.Longitude.At(1, 1)-140) > 1e-9 {
				t.Fatalf("centre coordinates (%v, %v), want the area centre", geo.Latitude.At(1, 1), geo.Longitude.At(1, 1))
			}
			if geo.SatelliteZenith.MaskedCount() != 0 || geo.Latitude.MaskedCount() != 0 {
				t.Fatalf("fully covered area has masked pixels")
			}
			for _, v := range geo.SolarZenith.Data {
				if v < 0 || v > 180 {
					t.Fatalf("solar zenith %v outside [0, 180]", v)
				}
			}
			geo.Close()

			again, err := env.svc.Locate(ctx, scanTime, md, model.DefaultBadValues(), area)
			if err != nil {
				t.Fatalf("second Locate: %v", err)
			}
			defer again.Close()
			for _, prefix := range []string{cache.PrefixLatLon, cache.PrefixSatelliteAngles, cache.PrefixIndices} {
				if got := env.lookups(prefix, observability.OutcomeComputed); got != 1 {
					t.Fatalf("%s computed %v times, want 1", prefix, got)
				}
				if got := env.lookups(prefix, observability.OutcomeHit); got != 1 {
					t.Fatalf("%s hit %v times, want 1", prefix, got)
				}
			}
		})
	}
}

func TestLocateAreaMasksUnmatchedPixels(t *testing.T) {
	env := newTestEnv(t, nil)
	md := fineMetadata()
	md.ResKm = 0.4
	geo, err := env.svc.Locate(context.Background(), scanTime, md, model.DefaultBadValues(),
		testArea("tiny", 0, 140, 50000, false))
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	defer geo.Close()

	for i := range geo.SatelliteZenith.Data {
		centre := i == 4
		for name, g := range map[string]*model.Grid{
			"satellite zenith": geo.SatelliteZenith,
			"solar zenith":     geo.SolarZenith,
			"latitude":         geo.Latitude,
			"longitude":        geo.Longitude,
		} {
			if g.Masked(i) == centre {
				t.Fatalf("%s pixel %d masked=%v", name, i, g.Masked(i))
			}
		}
	}
	if geo.SatelliteZenith.Data[0] != model.FillValue {
		t.Fatalf("unmatched zenith = %v, want fill value", geo.SatelliteZenith.Data[0])
	}
}

func TestLocateCachesSolarAngles(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Cache.CacheSolarAngles = true })
	ctx := context.Background()
	md := fineMetadata()
	area := testArea("equator", 0, 140, 150000, false)
	geo, err := env.svc.Locate(ctx, scanTime, md, model.DefaultBadValues(), area)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	geo.Close()

	prefix := cache.PrefixSolarAngles + "_20240101T030000"
	path, _ := env.svc.Path(prefix, md, area)
	if got := env.svc.Lifecycle().State(path); got != cache.StateComplete {
		t.Fatalf("solar cache state = %v, want complete", got)
	}
	if got := env.lookups(prefix, observability.OutcomeComputed); got != 1 {
		t.Fatalf("solar computed %v times, want 1", got)
	}
}

func TestSolarAnglesUncached(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	md := fineMetadata()
	area := testArea("equator", 0, 140, 150000, false)
	lons, lats, err := area.LonLats()
	if err != nil {
		t.Fatalf("LonLats: %v", err)
	}
	bad := model.DefaultBadValues()

	got, err := env.svc.SolarAngles(ctx, md, lats, lons, bad, scanTime, area, false)
	if err != nil {
		t.Fatalf("SolarAngles: %v", err)
	}
	wantZen, wantAzm := core.SolarAngles(lats, lons, scanTime, bad)
	for i := range wantZen.Data {
		if got.Zenith.Data[i] != wantZen.Data[i] || got.Azimuth.Data[i] != wantAzm.Data[i] {
			t.Fatalf("pixel %d = (%v, %v), want (%v, %v)", i,
				got.Zenith.Data[i], got.Azimuth.Data[i], wantZen.Data[i], wantAzm.Data[i])
		}
	}

	path, _ := env.svc.Path(cache.PrefixSolarAngles+"_20240101T030000", md, area)
	if st := env.svc.Lifecycle().State(path); st != cache.StateAbsent {
		t.Fatalf("uncached solar angles left state %v on disk", st)
	}
	if _, err := env.svc.SolarAngles(ctx, md, lats, model.NewGrid(1, 1), bad, scanTime, area, false); err == nil {
		t.Fatalf("expected an error for mismatched grids")
	}
}

func TestLocatePropagatesCoverageErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	geo, err := env.svc.Locate(context.Background(), scanTime, fineMetadata(), model.DefaultBadValues(),
		testArea("atlantic", 0, -40, 150000, false))
	if geo != nil || !errors.Is(err, ErrCoverage) {
		t.Fatalf("Locate = %v, %v; want ErrCoverage", geo, err)
	}
}

func TestReconcileIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	flat := func(lines, samples int) *SectorIndex {
		return &SectorIndex{
			Lines:   model.NewIndexGrid(lines, samples),
			Samples: model.NewIndexGrid(lines, samples),
			Path:    "GEOINDS_test.dat",
		}
	}

	for _, shape := range [][2]int{{3, 3}, {1, 9}, {9, 1}} {
		idx := flat(shape[0], shape[1])
		if err := env.svc.reconcileIndex(ctx, idx, 3, 3); err != nil {
			t.Fatalf("reconcileIndex(%v): %v", shape, err)
		}
		if idx.Lines.Lines != 3 || idx.Samples.Samples != 3 {
			t.Fatalf("reconcileIndex(%v) left shape %dx%d", shape, idx.Lines.Lines, idx.Lines.Samples)
		}
	}

	err := env.svc.reconcileIndex(ctx, flat(2, 4), 3, 3)
	var ie *IndexError
	if !errors.As(err, &ie) || !errors.Is(err, ErrCachedGeolocationIndex) {
		t.Fatalf("reconcileIndex error = %v, want *IndexError", err)
	}
	if ie.Path != "GEOINDS_test.dat" {
		t.Fatalf("IndexError path = %q", ie.Path)
	}
}

func TestGather(t *testing.T) {
	src, _ := model.WrapGrid(2, 2, []float64{1, 2, 3, 4})
	idx := &SectorIndex{
		Lines:   &model.IndexGrid{Lines: 1, Samples: 3, Data: []int{1, model.NoIndex, 0}},
		Samples: &model.IndexGrid{Lines: 1, Samples: 3, Data: []int{0, model.NoIndex, 1}},
	}
	got, err := gather(src, idx)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := []float64{3, model.FillValue, 2}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("gather[%d] = %v, want %v", i, got.Data[i], want[i])
		}
	}

	idx.Lines.Data[0] = 2
	if _, err := gather(src, idx); !errors.Is(err, ErrCachedGeolocationIndex) {
		t.Fatalf("gather error = %v, want ErrCachedGeolocationIndex", err)
	}
}

func TestApplyMasks(t *testing.T) {
	bad := model.DefaultBadValues()
	grid := func(v ...float64) *model.Grid {
		g, _ := model.WrapGrid(1, len(v), v)
		return g
	}
	geo := &Geolocation{
		Latitude:         grid(1, 2, 3, 4),
		Longitude:        grid(1, 2, 3, 4),
		SatelliteZenith:  grid(bad.OffOfDisk, model.FillValue, 10, 20),
		SatelliteAzimuth: grid(5, 5, model.FillValue-1, 30),
		SolarZenith:      grid(50, 50, 50, 50),
		SolarAzimuth:     grid(90, 90, 90, 90),
	}
	applyMasks(geo, true)

	wantZen := []bool{true, true, false, false}
	wantAzm := []bool{true, true, true, false}
	for i := range wantZen {
		if geo.SatelliteZenith.Masked(i) != wantZen[i] {
			t.Fatalf("zenith mask %d = %v", i, geo.SatelliteZenith.Masked(i))
		}
		if geo.SatelliteAzimuth.Masked(i) != wantAzm[i] {
			t.Fatalf("azimuth mask %d = %v", i, geo.SatelliteAzimuth.Masked(i))
		}
		for name, g := range map[string]*model.Grid{
			"solar zenith": geo.SolarZenith, "solar azimuth": geo.SolarAzimuth,
			"latitude": geo.Latitude, "longitude": geo.Longitude,
		} {
			if g.Masked(i) != wantZen[i] {
				t.Fatalf("%s mask %d = %v, want %v", name, i, g.Masked(i), wantZen[i])
			}
		}
	}
}

func TestGeolocationCloseIsSafe(t *testing.T) {
	var nilGeo *Geolocation
	if err := nilGeo.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	geo := &Geolocation{closers: []io.Closer{&Angles{}, (*FullDisk)(nil)}}
	if err := geo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := geo.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
