package cache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/signalsfoundry/geoloc/model"
)

// FlatBackend stores float64 arrays back to back in native little-endian
// order: array k starts at byte offset 8*k*lines*samples. Reads memory-map
// the file so no pixel is read from disk until it is indexed.
type FlatBackend struct{}

// Kind implements Backend.
func (b *FlatBackend) Kind() BackendKind { return KindFlat }

// CreateMarker implements Backend by touching an empty file.
func (b *FlatBackend) CreateMarker(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create partial marker: %w", err)
	}
	return f.Close()
}

// Write implements Backend.
func (b *FlatBackend) Write(path string, arrays []Array) error {
	if _, _, err := checkArrays(arrays); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	var buf [8]byte
	for _, a := range arrays {
		for _, v := range a.Grid.Data {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}

// Open implements Backend.
func (b *FlatBackend) Open(path string, names []string, lines, samples int) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n := lines * samples
	want := int64(len(names)) * int64(n) * 8
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() != want {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d for %d arrays of %dx%d",
			ErrCacheNotFound, path, info.Size(), want, len(names), lines, samples)
	}
	if want == 0 {
		return nil, fmt.Errorf("%w: %s describes an empty grid", ErrCacheNotFound, path)
	}

	data, unmap, err := mapFile(f, int(want))
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}

	grids := make(map[string]*model.Grid, len(names))
	for k, name := range names {
		raw := data[k*n*8 : (k+1)*n*8]
		grids[name] = &model.Grid{Lines: lines, Samples: samples, Data: floatView(raw)}
	}
	return &Entry{Path: path, grids: grids, close: unmap}, nil
}

// Remove implements Backend.
func (b *FlatBackend) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var littleEndianHost = func() bool {
	var x uint16 = 1
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// floatView reinterprets little-endian bytes as float64 without copying.
// Big-endian hosts get a decoded copy instead.
func floatView(raw []byte) []float64 {
	n := len(raw) / 8
	if littleEndianHost {
		return unsafe.Slice((*float64)(unsafe.Pointer(&raw[0])), n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}
