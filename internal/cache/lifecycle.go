package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/timectrl"
)

const (
	// DefaultTimeout bounds the wait for another process's partial entry.
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval is the delay between two checks of a partial entry.
	DefaultPollInterval = time.Second

	partialSuffix  = ".partial"
	partialWord    = "partial"
	noCoverageWord = "no_coverage"
)

// State is the observable state of a cache entry on disk.
type State int

const (
	StateAbsent State = iota
	StatePartial
	StateComplete
	StateNoCoverage
)

func (s State) String() string {
	switch s {
	case StatePartial:
		return "partial"
	case StateComplete:
		return "complete"
	case StateNoCoverage:
		return "no_coverage"
	default:
		return "absent"
	}
}

// Observer receives lifecycle events; the observability collector
// implements it. All methods must tolerate a nil receiver.
type Observer interface {
	ObserveWait(d time.Duration, outcome string)
	ObserveNoCoverage()
}

// Lifecycle implements the absent -> partial -> complete state machine with
// an extra terminal no-coverage marker. Exclusion between processes is
// best-effort: two writers racing on BeginWrite may both proceed and the
// last rename wins, which only costs duplicate computation.
type Lifecycle struct {
	Backend      Backend
	Timeout      time.Duration
	PollInterval time.Duration
	Clock        timectrl.Clock
	Log          logging.Logger
	Observer     Observer

	// stat defaults to os.Stat.
	stat func(string) (os.FileInfo, error)
}

// NewLifecycle returns a lifecycle with default timing on the wall clock.
func NewLifecycle(backend Backend, log logging.Logger) *Lifecycle {
	if log == nil {
		log = logging.Noop()
	}
	return &Lifecycle{
		Backend:      backend,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		Clock:        timectrl.WallClock{},
		Log:          log,
	}
}

// Exists reports whether path exists.
func (l *Lifecycle) Exists(path string) bool {
	stat := l.stat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(path)
	return err == nil
}

// PartialPath returns the in-progress name of path.
func (l *Lifecycle) PartialPath(path string) string {
	return path + partialSuffix
}

// NoCoveragePath returns the partial path with its trailing "partial"
// replaced by "no_coverage".
func (l *Lifecycle) NoCoveragePath(path string) string {
	return strings.TrimSuffix(l.PartialPath(path), partialWord) + noCoverageWord
}

// State inspects the markers of path. The partial marker is checked first:
// commit and no-coverage renames make the final name appear as the partial
// disappears, so a missing partial followed by a missing final name is
// really absent. A no-coverage marker wins over a complete entry.
func (l *Lifecycle) State(path string) State {
	partial := l.Exists(l.PartialPath(path))
	switch {
	case l.Exists(l.NoCoveragePath(path)):
		return StateNoCoverage
	case l.Exists(path):
		return StateComplete
	case partial:
		return StatePartial
	}
	return StateAbsent
}

// BeginWrite creates the partial marker when neither a complete entry nor a
// partial marker exists. It returns false, doing nothing, otherwise.
func (l *Lifecycle) BeginWrite(ctx context.Context, path string) (bool, error) {
	if l.Exists(path) || l.Exists(l.PartialPath(path)) {
		return false, nil
	}
	if err := l.Backend.CreateMarker(l.PartialPath(path)); err != nil {
		return false, err
	}
	l.Log.Debug(ctx, "cache write started", logging.String("path", l.PartialPath(path)))
	return true, nil
}

// Write stores arrays into the partial entry of path.
func (l *Lifecycle) Write(path string, arrays []Array) error {
	return l.Backend.Write(l.PartialPath(path), arrays)
}

// CommitWrite atomically renames the partial entry to its complete name.
func (l *Lifecycle) CommitWrite(ctx context.Context, path string) error {
	partial := l.PartialPath(path)
	if err := os.Rename(partial, path); err != nil {
		// A concurrent writer finished first; its entry is as good as ours.
		if l.Exists(path) {
			l.Log.Info(ctx, "cache entry completed by another writer", logging.String("path", path))
			return l.Backend.Remove(partial)
		}
		return fmt.Errorf("commit %s: %w", path, err)
	}
	l.Log.Info(ctx, "cache entry written", logging.String("path", path))
	return nil
}

// MarkNoCoverage records that path was computed and holds no valid data.
func (l *Lifecycle) MarkNoCoverage(ctx context.Context, path string) error {
	partial := l.PartialPath(path)
	marker := l.NoCoveragePath(path)
	if !l.Exists(partial) {
		if err := l.Backend.CreateMarker(partial); err != nil {
			return err
		}
	}
	if err := os.Rename(partial, marker); err != nil {
		if l.Exists(marker) {
			return l.Backend.Remove(partial)
		}
		return fmt.Errorf("mark no coverage %s: %w", path, err)
	}
	if l.Observer != nil {
		l.Observer.ObserveNoCoverage()
	}
	l.Log.Warn(ctx, "cache entry has no coverage", logging.String("path", marker))
	return nil
}

// Abort removes the partial entry of a write that failed for a reason other
// than coverage, so waiting readers fail fast instead of timing out.
func (l *Lifecycle) Abort(ctx context.Context, path string) {
	if err := l.Backend.Remove(l.PartialPath(path)); err != nil {
		l.Log.Warn(ctx, "failed to remove partial cache entry",
			logging.String("path", l.PartialPath(path)), logging.Err(err))
	}
}

// AwaitCompletion polls until path is complete. It returns ErrNoCoverage if
// a no-coverage marker appears, ErrCacheNotFound if the partial marker
// disappears without a complete entry, and a *TimeoutError once Timeout
// has elapsed. The stale partial entry is never removed here: its writer
// may still be running.
func (l *Lifecycle) AwaitCompletion(ctx context.Context, path string) error {
	start := l.Clock.Now()
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := l.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		switch l.State(path) {
		case StateComplete:
			l.observeWait(start, "complete")
			return nil
		case StateNoCoverage:
			l.observeWait(start, "no_coverage")
			return ErrNoCoverage
		case StateAbsent:
			l.observeWait(start, "vanished")
			return fmt.Errorf("%w: partial %s disappeared", ErrCacheNotFound, l.PartialPath(path))
		}

		waited := l.Clock.Now().Sub(start)
		if waited >= timeout {
			l.observeWait(start, "timeout")
			return &TimeoutError{Partial: l.PartialPath(path), Waited: waited}
		}
		l.Log.Debug(ctx, "waiting for partial cache entry",
			logging.String("path", l.PartialPath(path)), logging.Duration("waited", waited))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.Clock.After(interval):
		}
	}
}

// AwaitOrRecheck waits for path and, on timeout, logs the stale partial and
// checks once more for a complete entry before giving up with an error that
// matches both ErrCacheTimeout and ErrCacheNotFound.
func (l *Lifecycle) AwaitOrRecheck(ctx context.Context, path string) error {
	err := l.AwaitCompletion(ctx, path)
	var te *TimeoutError
	if !errors.As(err, &te) {
		return err
	}
	l.Log.Warn(ctx, "partial cache entry did not complete; leaving it for inspection",
		logging.String("partial", te.Partial), logging.Duration("waited", te.Waited))
	if l.Exists(path) {
		return nil
	}
	return errors.Join(te, fmt.Errorf("%w: %s", ErrCacheNotFound, path))
}

func (l *Lifecycle) observeWait(start time.Time, outcome string) {
	if l.Observer != nil {
		l.Observer.ObserveWait(l.Clock.Now().Sub(start), outcome)
	}
}
