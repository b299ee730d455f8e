package cache

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/geoloc/model"
)

// BackendKind names a storage layout for cache artifacts.
type BackendKind string

const (
	// KindFlat stores arrays back to back in one memory-mapped file.
	KindFlat BackendKind = "memmap"
	// KindChunked stores arrays as chunk files inside a directory.
	KindChunked BackendKind = "zarr"
)

// ParseBackendKind accepts the configuration spellings of a backend.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memmap", "flat", "":
		return KindFlat, nil
	case "zarr", "chunked":
		return KindChunked, nil
	default:
		return "", fmt.Errorf("%w: backend %q", ErrConfiguration, s)
	}
}

// Extension returns the file name extension of the backend.
func (k BackendKind) Extension() (string, error) {
	switch k {
	case KindFlat:
		return ".dat", nil
	case KindChunked:
		return ".zarr", nil
	default:
		return "", fmt.Errorf("%w: backend %q", ErrConfiguration, string(k))
	}
}

// Array is one named 2-D array of an artifact.
type Array struct {
	Name string
	Grid *model.Grid
}

// Backend reads and writes the arrays of one cache artifact.
type Backend interface {
	Kind() BackendKind
	// CreateMarker creates an empty partial marker at path.
	CreateMarker(path string) error
	// Write stores arrays at path. All arrays share one shape.
	Write(path string, arrays []Array) error
	// Open opens the named arrays of a complete artifact.
	Open(path string, names []string, lines, samples int) (*Entry, error)
	// Remove deletes an artifact or marker.
	Remove(path string) error
}

// NewBackend returns the backend for kind.
func NewBackend(kind BackendKind, chunkSize int) (Backend, error) {
	switch kind {
	case KindFlat:
		return &FlatBackend{}, nil
	case KindChunked:
		return &ChunkedBackend{ChunkLines: chunkSize}, nil
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrConfiguration, string(kind))
	}
}

// Entry is an opened artifact. Grids may reference a memory mapping, so
// they must not be used after Close.
type Entry struct {
	Path  string
	grids map[string]*model.Grid
	close func() error
}

// NewEntry wraps freshly computed arrays that the caller owns.
func NewEntry(path string, arrays []Array) *Entry {
	grids := make(map[string]*model.Grid, len(arrays))
	for _, a := range arrays {
		grids[a.Name] = a.Grid
	}
	return &Entry{Path: path, grids: grids}
}

// Grid returns the named array or nil.
func (e *Entry) Grid(name string) *model.Grid {
	if e == nil {
		return nil
	}
	return e.grids[name]
}

// Close releases the resources behind the entry. It is safe to call twice.
func (e *Entry) Close() error {
	if e == nil || e.close == nil {
		return nil
	}
	fn := e.close
	e.close = nil
	return fn()
}

func checkArrays(arrays []Array) (int, int, error) {
	if len(arrays) == 0 {
		return 0, 0, fmt.Errorf("no arrays to write")
	}
	for _, a := range arrays {
		if a.Grid == nil {
			return 0, 0, fmt.Errorf("array %q has no data", a.Name)
		}
	}
	lines, samples := arrays[0].Grid.Lines, arrays[0].Grid.Samples
	for _, a := range arrays {
		if a.Grid.Lines != lines || a.Grid.Samples != samples || len(a.Grid.Data) != lines*samples {
			return 0, 0, fmt.Errorf("array %q does not match shape %dx%d", a.Name, lines, samples)
		}
	}
	return lines, samples, nil
}
