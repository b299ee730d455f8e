// Package geoloc computes and caches geostationary geolocation: full-disk
// latitude and longitude, viewing angles, and area-to-full-disk index maps,
// and assembles them into per-area geolocation fields.
package geoloc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/internal/config"
	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/internal/observability"
	"github.com/signalsfoundry/geoloc/model"
	"github.com/signalsfoundry/geoloc/timectrl"
)

// maxLookupAttempts bounds how often a lookup re-inspects an entry that
// changed state under it.
const maxLookupAttempts = 3

// Service owns the cache configuration. It holds no per-scene state and
// may be shared by sequential callers; processes coordinate through the
// cache directory only.
type Service struct {
	keys      *cache.KeyBuilder
	backend   cache.Backend
	chunkSize int
	life      *cache.Lifecycle

	disableDynamic bool
	exceptions     map[string]bool
	cacheSolar     bool

	log     logging.Logger
	metrics *observability.CacheCollector
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock replaces the clock driving partial-entry waits.
func WithClock(c timectrl.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.life.Clock = c
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.CacheCollector) ServiceOption {
	return func(s *Service) {
		s.metrics = m
		if m != nil {
			s.life.Observer = m
		}
	}
}

// NewService builds a Service from cfg.
func NewService(cfg config.Config, log logging.Logger, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	backend, err := cache.NewBackend(cfg.BackendKind(), cfg.Cache.ChunkSize)
	if err != nil {
		return nil, err
	}
	life := cache.NewLifecycle(backend, log)
	if cfg.Cache.Timeout > 0 {
		life.Timeout = cfg.Cache.Timeout
	}
	if cfg.Cache.PollInterval > 0 {
		life.PollInterval = cfg.Cache.PollInterval
	}

	s := &Service{
		keys:           cache.NewKeyBuilder(cfg.Cache.Root, cfg.Cache.DynamicRoot),
		backend:        backend,
		chunkSize:      cfg.Cache.ChunkSize,
		life:           life,
		disableDynamic: cfg.AutoGen.DisableDynamic,
		exceptions:     make(map[string]bool, len(cfg.AutoGen.Exceptions)),
		cacheSolar:     cfg.Cache.CacheSolarAngles,
		log:            log,
	}
	for _, id := range cfg.AutoGen.Exceptions {
		s.exceptions[id] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lifecycle exposes the cache state machine, e.g. for maintenance tools.
func (s *Service) Lifecycle() *cache.Lifecycle { return s.life }

// Path returns the cache path of an artifact.
func (s *Service) Path(prefix string, md *model.Metadata, area model.Area) (string, error) {
	return s.keys.Build(prefix, md, area, s.backend.Kind(), s.chunkSize)
}

// autoGenDisabled reports whether policy forbids computing artifacts
// requested on behalf of area.
func (s *Service) autoGenDisabled(area model.Area) bool {
	return s.disableDynamic && area != nil && area.Dynamic() && !s.exceptions[area.AreaID()]
}

// artifact describes one cached product.
type artifact struct {
	prefix string
	// key is the area that is part of the cache key, nil for full-disk
	// products.
	key model.Area
	// policy is the area the product is requested for; it decides whether
	// a missing entry may be computed.
	policy         model.Area
	names          []string
	lines, samples int
}

type computeFunc func(ctx context.Context) ([]cache.Array, error)

// loadOrCompute returns the cached arrays of art, computing and storing
// them first when no entry exists. A compute error matching ErrCoverage
// leaves a no-coverage marker; any other error removes the partial entry.
func (s *Service) loadOrCompute(ctx context.Context, md *model.Metadata, art artifact, compute computeFunc) (entry *cache.Entry, err error) {
	path, err := s.Path(art.prefix, md, art.key)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "geoloc.cache/"+art.prefix, md, art.policy, attribute.String("path", path))
	defer func() { endSpan(span, err) }()

	log := s.log.With(
		logging.String("prefix", art.prefix),
		logging.String("scene", md.SceneID),
		logging.String("path", path),
	)

	for attempt := 0; attempt < maxLookupAttempts; attempt++ {
		switch s.life.State(path) {
		case cache.StateNoCoverage:
			s.metrics.ObserveLookup(art.prefix, observability.OutcomeNoCoverage)
			log.Info(ctx, "no-coverage marker found")
			return nil, fmt.Errorf("%s: %w", path, cache.ErrNoCoverage)

		case cache.StateComplete:
			entry, err := s.backend.Open(path, art.names, art.lines, art.samples)
			if err != nil {
				s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
				return nil, err
			}
			s.metrics.ObserveLookup(art.prefix, observability.OutcomeHit)
			return entry, nil

		case cache.StatePartial:
			log.Info(ctx, "waiting for another writer")
			if err := s.life.AwaitOrRecheck(ctx, path); err != nil {
				outcome := observability.OutcomeError
				if errors.Is(err, cache.ErrNoCoverage) {
					outcome = observability.OutcomeNoCoverage
				}
				s.metrics.ObserveLookup(art.prefix, outcome)
				if errors.Is(err, cache.ErrCacheTimeout) {
					log.Error(ctx, "cache wait timed out", logging.Err(err))
				}
				return nil, err
			}
			entry, err := s.backend.Open(path, art.names, art.lines, art.samples)
			if err != nil {
				s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
				return nil, err
			}
			s.metrics.ObserveLookup(art.prefix, observability.OutcomeWaited)
			return entry, nil

		case cache.StateAbsent:
			if s.autoGenDisabled(art.policy) {
				s.metrics.ObserveLookup(art.prefix, observability.OutcomeDisabled)
				return nil, fmt.Errorf("%w: %s missing for area %q", ErrAutoGenerationDisabled, path, art.policy.AreaID())
			}
			started, err := s.life.BeginWrite(ctx, path)
			if err != nil {
				s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
				return nil, err
			}
			if !started {
				// Another writer got there first; inspect again.
				continue
			}
			return s.computeAndStore(ctx, log, path, art, compute)
		}
	}
	s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
	return nil, fmt.Errorf("%w: %s kept changing state", cache.ErrCacheNotFound, path)
}

func (s *Service) computeAndStore(ctx context.Context, log logging.Logger, path string, art artifact, compute computeFunc) (*cache.Entry, error) {
	start := time.Now()
	arrays, err := compute(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrCoverage) {
			s.metrics.ObserveLookup(art.prefix, observability.OutcomeNoCoverage)
			if markErr := s.life.MarkNoCoverage(ctx, path); markErr != nil {
				log.Warn(ctx, "failed to record no-coverage marker", logging.Err(markErr))
			}
			return nil, err
		}
		s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
		s.life.Abort(ctx, path)
		return nil, err
	}

	if err := s.life.Write(path, arrays); err != nil {
		s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
		s.life.Abort(ctx, path)
		return nil, err
	}
	if err := s.life.CommitWrite(ctx, path); err != nil {
		s.metrics.ObserveLookup(art.prefix, observability.OutcomeError)
		s.life.Abort(ctx, path)
		return nil, err
	}
	elapsed := time.Since(start)
	s.metrics.ObserveCompute(art.prefix, elapsed)
	s.metrics.ObserveLookup(art.prefix, observability.OutcomeComputed)
	log.Debug(ctx, "artifact computed", logging.Duration("elapsed", elapsed))
	return cache.NewEntry(path, arrays), nil
}
