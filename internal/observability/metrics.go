package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes recorded by ObserveLookup.
const (
	OutcomeHit        = "hit"
	OutcomeComputed   = "computed"
	OutcomeWaited     = "waited"
	OutcomeNoCoverage = "no_coverage"
	OutcomeDisabled   = "disabled"
	OutcomeError      = "error"
)

// CacheCollector bundles Prometheus metrics for the geolocation cache and
// the batch runner. Every method is safe on a nil receiver so callers can
// run without metrics.
type CacheCollector struct {
	gatherer prometheus.Gatherer

	Lookups          *prometheus.CounterVec
	ComputeDurations *prometheus.HistogramVec
	WaitDuration     prometheus.Histogram
	Timeouts         prometheus.Counter
	NoCoverage       prometheus.Counter
	BatchJobs        *prometheus.CounterVec
}

// NewCacheCollector registers cache metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCacheCollector(reg prometheus.Registerer) (*CacheCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoloc_cache_lookups_total",
		Help: "Cache lookups, labeled by artifact prefix and outcome.",
	}, []string{"prefix", "outcome"})
	lookups, err := registerCounterVec(reg, lookups, "geoloc_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	compute := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoloc_cache_compute_duration_seconds",
		Help:    "Time spent computing and writing a cache artifact.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"prefix"})
	compute, err = registerHistogramVec(reg, compute, "geoloc_cache_compute_duration_seconds")
	if err != nil {
		return nil, err
	}

	wait, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoloc_cache_wait_duration_seconds",
		Help:    "Time spent waiting for another writer's partial entry.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}), "geoloc_cache_wait_duration_seconds")
	if err != nil {
		return nil, err
	}

	timeouts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoloc_cache_timeouts_total",
		Help: "Waits that gave up on a stale partial entry.",
	}), "geoloc_cache_timeouts_total")
	if err != nil {
		return nil, err
	}

	noCoverage, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoloc_no_coverage_total",
		Help: "No-coverage markers written.",
	}), "geoloc_no_coverage_total")
	if err != nil {
		return nil, err
	}

	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoloc_batch_jobs_total",
		Help: "Batch jobs processed, labeled by outcome (ok, skipped, failed).",
	}, []string{"outcome"})
	jobs, err = registerCounterVec(reg, jobs, "geoloc_batch_jobs_total")
	if err != nil {
		return nil, err
	}

	return &CacheCollector{
		gatherer:         gatherer,
		Lookups:          lookups,
		ComputeDurations: compute,
		WaitDuration:     wait,
		Timeouts:         timeouts,
		NoCoverage:       noCoverage,
		BatchJobs:        jobs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *CacheCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CacheCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveLookup counts one cache lookup.
func (c *CacheCollector) ObserveLookup(prefix, outcome string) {
	if c == nil || c.Lookups == nil {
		return
	}
	c.Lookups.WithLabelValues(prefix, outcome).Inc()
}

// ObserveCompute records the duration of one artifact computation.
func (c *CacheCollector) ObserveCompute(prefix string, d time.Duration) {
	if c == nil || c.ComputeDurations == nil {
		return
	}
	c.ComputeDurations.WithLabelValues(prefix).Observe(d.Seconds())
}

// ObserveWait records a wait on a partial entry.
func (c *CacheCollector) ObserveWait(d time.Duration, outcome string) {
	if c == nil {
		return
	}
	if c.WaitDuration != nil {
		c.WaitDuration.Observe(d.Seconds())
	}
	if outcome == "timeout" && c.Timeouts != nil {
		c.Timeouts.Inc()
	}
}

// ObserveNoCoverage counts a no-coverage marker.
func (c *CacheCollector) ObserveNoCoverage() {
	if c == nil || c.NoCoverage == nil {
		return
	}
	c.NoCoverage.Inc()
}

// ObserveBatchJob counts one finished batch job.
func (c *CacheCollector) ObserveBatchJob(outcome string) {
	if c == nil || c.BatchJobs == nil {
		return
	}
	c.BatchJobs.WithLabelValues(outcome).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
