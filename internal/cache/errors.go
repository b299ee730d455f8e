package cache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration is returned for an unsupported cache backend.
	ErrConfiguration = errors.New("unsupported cache configuration")
	// ErrCacheNotFound is returned when a complete cache entry is expected
	// but absent after all checks.
	ErrCacheNotFound = errors.New("cache entry not found")
	// ErrCacheTimeout is returned when a partial entry does not complete in
	// time. Use errors.As with *TimeoutError to recover the partial path.
	ErrCacheTimeout = errors.New("timed out waiting for partial cache entry")
	// ErrCoverage is returned when an entry has no valid pixels.
	ErrCoverage = errors.New("no data coverage")
	// ErrNoCoverage is returned when a no-coverage marker from an earlier
	// run is found. It matches ErrCoverage as well.
	ErrNoCoverage error = noCoverageError{}
)

type noCoverageError struct{}

func (noCoverageError) Error() string { return "cached no-coverage marker" }

// Is makes ErrNoCoverage a kind of ErrCoverage.
func (noCoverageError) Is(target error) bool { return target == ErrCoverage }

// TimeoutError names the stale partial entry so operators can inspect it.
type TimeoutError struct {
	Partial string
	Waited  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: %s still partial after %s; inspect or remove it manually", ErrCacheTimeout, e.Partial, e.Waited)
}

func (e *TimeoutError) Unwrap() error { return ErrCacheTimeout }
