package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/internal/config"
	"github.com/signalsfoundry/geoloc/internal/geoloc"
	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/internal/observability"
	"github.com/signalsfoundry/geoloc/kb"
	"github.com/signalsfoundry/geoloc/model"
)

const jobsYAML = `
jobs:
  - id: h09-fldk
    platform: H09
    scene: FLDK
    scan_time: 2024-01-01T03:00:00Z
    lines: 21
    samples: 21
    res_km: 179
    scan: {x_scale: 0.005, x_offset: -0.05, y_scale: -0.005, y_offset: 0.05}
    full_disk: true
    areas:
      - {id: japan, lines: 3, samples: 3, center_lat: 0, center_lon: 140.7, pixel_x: 150000, pixel_y: 150000}
      - {id: tc01, lines: 3, samples: 3, center_lat: 0, center_lon: 140.7, pixel_x: 150000, pixel_y: 150000, dynamic: true}
  - platform: Custom-1
    scene: R1
    scan_time: 2024-01-01T03:10:00Z
    lines: 10
    samples: 10
    sub_lon: 10
    cgms: {cfac: 40932549, lfac: 40932549, coff: 5.5, loff: 5.5}
`

func TestLoadJobs(t *testing.T) {
	_, err := LoadJobs(kb.DefaultRegistry(), strings.NewReader(jobsYAML))
	if err == nil {
		t.Fatalf("expected an error for an unknown platform without constants")
	}

	reg := kb.DefaultRegistry()
	if err := reg.Register(&model.Platform{
		Name: "Custom-1", SatelliteDistance: model.GeostationaryDistance,
		EquatorRadius: model.WGS84EquatorRadius, PolarRadius: model.WGS84PolarRadius,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	jobs, err := LoadJobs(reg, strings.NewReader(jobsYAML))
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("loaded %d jobs, want 4", len(jobs))
	}

	wantIDs := []string{"h09-fldk", "h09-fldk/japan", "h09-fldk/tc01", "Custom-1-R1-20240101T031000"}
	for i, want := range wantIDs {
		if jobs[i].ID != want {
			t.Fatalf("job %d id = %q, want %q", i, jobs[i].ID, want)
		}
	}
	if jobs[0].Area != nil {
		t.Fatalf("first job should cover the full disk")
	}
	md := jobs[1].Metadata
	if md.Platform != "Himawari-9" || md.SubLon != 140.7 || md.EquatorRadius != model.WGS84EquatorRadius {
		t.Fatalf("registry constants not applied: %+v", md)
	}
	if !jobs[2].Area.Dynamic() || jobs[1].Area.Dynamic() {
		t.Fatalf("dynamic flags not carried over")
	}
	if want := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC); !jobs[0].ScanTime.Equal(want) {
		t.Fatalf("scan time = %v, want %v", jobs[0].ScanTime, want)
	}
	custom := jobs[3].Metadata
	if custom.SubLon != 10 || custom.Scan.XScale == 0 {
		t.Fatalf("custom scene not decoded: %+v", custom)
	}
}

func TestLoadJobsCanonicalNavigation(t *testing.T) {
	const doc = `
jobs:
  - {platform: H09, scene: FLDK, scan_time: 2024-01-01T03:00:00Z, lines: 4, samples: 4, scan: {x_scale: 0.01, y_scale: -0.01}}
  - {platform: himawari-9, scene: FLDK, scan_time: 2024-01-01T03:10:00Z, lines: 4, samples: 4, scan: {x_scale: 0.01, y_scale: -0.01}}
  - {platform: Meteosat-10, scene: FES, scan_time: 2024-01-01T03:00:00Z, lines: 4, samples: 4, sub_lon: 0, scan: {x_scale: 0.01, y_scale: -0.01}}
`
	jobs, err := LoadJobs(kb.DefaultRegistry(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("loaded %d jobs, want 3", len(jobs))
	}
	a, b := jobs[0].Metadata, jobs[1].Metadata
	if a.Platform != "Himawari-9" || b.Platform != "Himawari-9" {
		t.Fatalf("platforms = %q, %q; want the canonical name", a.Platform, b.Platform)
	}
	if cache.MetadataDigest(a) != cache.MetadataDigest(b) {
		t.Fatalf("aliases of one platform produce different cache keys")
	}
	if got := jobs[2].Metadata.SubLon; got != 0 {
		t.Fatalf("explicit sub_lon 0 replaced by %v", got)
	}
}

func TestLoadJobsRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "jobs:\n  - platform: H09\n    colour: blue\n",
		"bad time":      "jobs:\n  - {platform: H09, scene: FLDK, scan_time: yesterday, lines: 2, samples: 2, scan: {x_scale: 1}}\n",
		"no scan":       "jobs:\n  - {platform: H09, scene: FLDK, scan_time: 2024-01-01T00:00:00Z, lines: 2, samples: 2}\n",
		"both scans":    "jobs:\n  - {platform: H09, scene: FLDK, scan_time: 2024-01-01T00:00:00Z, lines: 2, samples: 2, scan: {x_scale: 1}, cgms: {cfac: 1}}\n",
		"no shape":      "jobs:\n  - {platform: H09, scene: FLDK, scan_time: 2024-01-01T00:00:00Z, scan: {x_scale: 1}}\n",
		"area no id":    "jobs:\n  - {platform: H09, scene: FLDK, scan_time: 2024-01-01T00:00:00Z, lines: 2, samples: 2, scan: {x_scale: 1}, areas: [{lines: 1}]}\n",
		"not yaml list": "jobs: 3\n",
	}
	for name, doc := range cases {
		if _, err := LoadJobs(kb.DefaultRegistry(), strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

type fakeLocator struct {
	errs  map[string]error
	nils  map[string]bool
	calls []string
}

func (f *fakeLocator) Locate(ctx context.Context, _ time.Time, _ *model.Metadata, _ model.BadValues, area model.Area) (*geoloc.Geolocation, error) {
	id := "full_disk"
	if area != nil {
		id = area.AreaID()
	}
	f.calls = append(f.calls, logging.JobIDFromContext(ctx))
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	if f.nils[id] {
		return nil, nil
	}
	return &geoloc.Geolocation{}, nil
}

func fakeJobs(ids ...string) []Job {
	md := &model.Metadata{Platform: "Himawari-9", SceneID: "FLDK"}
	var jobs []Job
	for _, id := range ids {
		jobs = append(jobs, Job{ID: "job-" + id, Metadata: md, Area: &model.LatLonArea{ID: id}})
	}
	return jobs
}

func TestRunnerContinuesPastFailures(t *testing.T) {
	loc := &fakeLocator{
		errs: map[string]error{
			"ocean":   fmt.Errorf("indices: %w", geoloc.ErrNoCoverage),
			"broken":  &geoloc.IndexError{Path: "GEOINDS_x.dat", Reason: "bad shape"},
			"stale":   errors.Join(geoloc.ErrCacheTimeout, geoloc.ErrCacheNotFound),
			"refused": fmt.Errorf("x: %w", geoloc.ErrAutoGenerationDisabled),
		},
		nils: map[string]bool{"policy": true},
	}
	metrics, err := observability.NewCacheCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCacheCollector: %v", err)
	}
	r := NewRunner(loc, logging.Noop(), WithRunnerMetrics(metrics))

	sum, err := r.Run(context.Background(), fakeJobs("a", "ocean", "broken", "policy", "stale", "refused", "b"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.OK != 2 || sum.Skipped != 3 || sum.Failed != 2 {
		t.Fatalf("summary = %+v, want 2 ok, 3 skipped, 2 failed", sum)
	}
	if len(sum.FailedIDs) != 2 || sum.FailedIDs[0] != "job-broken" || sum.FailedIDs[1] != "job-stale" {
		t.Fatalf("failed ids = %v", sum.FailedIDs)
	}
	if sum.Err() == nil {
		t.Fatalf("Summary.Err() = nil with failures")
	}
	if len(loc.calls) != 7 || loc.calls[0] != "job-a" {
		t.Fatalf("job ids seen by the locator = %v", loc.calls)
	}
	for outcome, want := range map[string]float64{OutcomeOK: 2, OutcomeSkipped: 3, OutcomeFailed: 2} {
		if got := testutil.ToFloat64(metrics.BatchJobs.WithLabelValues(outcome)); got != want {
			t.Fatalf("batch jobs %s = %v, want %v", outcome, got, want)
		}
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	loc := &fakeLocator{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := NewRunner(loc, nil).Run(ctx, fakeJobs("a", "b"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if len(loc.calls) != 0 || sum.OK != 0 {
		t.Fatalf("cancelled run still processed jobs: %v", loc.calls)
	}
	if (Summary{}).Err() != nil {
		t.Fatalf("empty summary reports an error")
	}
}

func TestRunnerWithService(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Root = t.TempDir()
	cfg.AutoGen.DisableDynamic = true
	svc, err := geoloc.NewService(cfg, logging.Noop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	jobs, err := LoadJobs(kb.DefaultRegistry(), strings.NewReader(jobsYAML[:strings.Index(jobsYAML, "  - platform: Custom-1")]))
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}

	sum, err := NewRunner(svc, logging.Noop()).Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The dynamic area is refused by policy; the rest is generated.
	if sum.OK != 2 || sum.Skipped != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v, want 2 ok and 1 skipped", sum)
	}
}
