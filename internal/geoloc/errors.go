package geoloc

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/geoloc/internal/cache"
)

var (
	// ErrAutoGenerationDisabled is returned when operator policy forbids
	// computing a missing artifact for a dynamic area.
	ErrAutoGenerationDisabled = errors.New("automatic cache generation disabled for dynamic areas")
	// ErrCachedGeolocationIndex is returned when cached index arrays do not
	// fit the area or the full-disk grid they index.
	ErrCachedGeolocationIndex = errors.New("cached geolocation index mismatch")

	// Re-exported so callers only import this package.
	ErrCoverage      = cache.ErrCoverage
	ErrNoCoverage    = cache.ErrNoCoverage
	ErrCacheTimeout  = cache.ErrCacheTimeout
	ErrCacheNotFound = cache.ErrCacheNotFound
)

// IndexError describes an unusable cached index array. The offending cache
// entry usually needs to be removed by hand.
type IndexError struct {
	Path   string
	Reason string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrCachedGeolocationIndex, e.Path, e.Reason)
}

func (e *IndexError) Unwrap() error { return ErrCachedGeolocationIndex }

// IsSkippable reports whether a batch caller should log err, skip the
// scene and continue. Timeouts and index mismatches are not skippable:
// they point at a stale writer or a corrupted cache.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrAutoGenerationDisabled) || errors.Is(err, ErrCoverage)
}
