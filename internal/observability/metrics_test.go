package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveLookupAndCompute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCacheCollector(reg)
	if err != nil {
		t.Fatalf("NewCacheCollector: %v", err)
	}

	collector.ObserveLookup("GEOLL", OutcomeComputed)
	collector.ObserveLookup("GEOLL", OutcomeHit)
	collector.ObserveLookup("GEOLL", OutcomeHit)
	collector.ObserveCompute("GEOLL", 250*time.Millisecond)

	if got := testutil.ToFloat64(collector.Lookups.WithLabelValues("GEOLL", OutcomeHit)); got != 2 {
		t.Fatalf("geoloc_cache_lookups_total hit = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "geoloc_cache_compute_duration_seconds", map[string]string{
		"prefix": "GEOLL",
	}); count != 1 {
		t.Fatalf("geoloc_cache_compute_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestObserveWaitCountsTimeouts(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCacheCollector(reg)
	if err != nil {
		t.Fatalf("NewCacheCollector: %v", err)
	}

	collector.ObserveWait(2*time.Second, "complete")
	collector.ObserveWait(30*time.Second, "timeout")

	if got := testutil.ToFloat64(collector.Timeouts); got != 1 {
		t.Fatalf("geoloc_cache_timeouts_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "geoloc_cache_wait_duration_seconds", nil); count != 2 {
		t.Fatalf("geoloc_cache_wait_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCacheCollector(reg)
	if err != nil {
		t.Fatalf("first NewCacheCollector: %v", err)
	}
	second, err := NewCacheCollector(reg)
	if err != nil {
		t.Fatalf("second NewCacheCollector: %v", err)
	}
	first.ObserveNoCoverage()
	second.ObserveNoCoverage()
	if got := testutil.ToFloat64(first.NoCoverage); got != 2 {
		t.Fatalf("geoloc_no_coverage_total = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *CacheCollector
	c.ObserveLookup("GEOLL", OutcomeHit)
	c.ObserveCompute("GEOLL", time.Second)
	c.ObserveWait(time.Second, "timeout")
	c.ObserveNoCoverage()
	c.ObserveBatchJob("ok")
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func TestMetricsHandlerExposesCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCacheCollector(reg)
	if err != nil {
		t.Fatalf("NewCacheCollector: %v", err)
	}
	collector.ObserveLookup("GEOINDS", OutcomeNoCoverage)
	collector.ObserveBatchJob("skipped")
	collector.ObserveNoCoverage()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"geoloc_cache_lookups_total",
		"geoloc_batch_jobs_total",
		"geoloc_no_coverage_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, `outcome="skipped"`) {
		t.Fatalf("/metrics output missing batch outcome label: %s", body)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
