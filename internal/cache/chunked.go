package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"gopkg.in/yaml.v2"

	"github.com/signalsfoundry/geoloc/model"
)

const manifestName = "manifest.yaml"

// manifest describes the arrays stored in a chunked artifact directory.
type manifest struct {
	Format     int      `yaml:"format"`
	Lines      int      `yaml:"lines"`
	Samples    int      `yaml:"samples"`
	ChunkLines int      `yaml:"chunk_lines"`
	Arrays     []string `yaml:"arrays"`
}

// ChunkedBackend stores each named array as a sub-directory of netCDF
// files holding ChunkLines lines each (the whole array when zero). The
// manifest is written last, so a directory without one is incomplete.
type ChunkedBackend struct {
	ChunkLines int
}

// Kind implements Backend.
func (b *ChunkedBackend) Kind() BackendKind { return KindChunked }

// CreateMarker implements Backend by creating the partial directory.
func (b *ChunkedBackend) CreateMarker(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create partial marker: %w", err)
	}
	return nil
}

// Write implements Backend.
func (b *ChunkedBackend) Write(path string, arrays []Array) error {
	lines, samples, err := checkArrays(arrays)
	if err != nil {
		return err
	}
	chunk := b.ChunkLines
	if chunk <= 0 || chunk > lines {
		chunk = lines
	}

	m := manifest{Format: 1, Lines: lines, Samples: samples, ChunkLines: chunk}
	for _, a := range arrays {
		dir := filepath.Join(path, a.Name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create array directory: %w", err)
		}
		for start := 0; start < lines; start += chunk {
			end := start + chunk
			if end > lines {
				end = lines
			}
			if err := writeChunk(filepath.Join(dir, chunkName(start/chunk)), a.Name, a.Grid, start, end); err != nil {
				return err
			}
		}
		m.Arrays = append(m.Arrays, a.Name)
	}

	raw, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, manifestName), raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func writeChunk(file, name string, g *model.Grid, start, end int) error {
	rows := make([][]float64, 0, end-start)
	for i := start; i < end; i++ {
		rows = append(rows, g.Data[i*g.Samples:(i+1)*g.Samples])
	}
	attrs, err := util.NewOrderedMap(
		[]string{"first_line"},
		map[string]interface{}{"first_line": int32(start)},
	)
	if err != nil {
		return fmt.Errorf("chunk attributes: %w", err)
	}

	cw, err := cdf.OpenWriter(file)
	if err != nil {
		return fmt.Errorf("open chunk %s: %w", file, err)
	}
	if err := cw.AddVar(name, api.Variable{
		Values:     rows,
		Dimensions: []string{"line", "sample"},
		Attributes: attrs,
	}); err != nil {
		cw.Close()
		return fmt.Errorf("write chunk %s: %w", file, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close chunk %s: %w", file, err)
	}
	return nil
}

// Open implements Backend. Chunks are decoded eagerly.
func (b *ChunkedBackend) Open(path string, names []string, lines, samples int) (*Entry, error) {
	raw, err := os.ReadFile(filepath.Join(path, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no manifest", ErrCacheNotFound, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: bad manifest in %s: %v", ErrCacheNotFound, path, err)
	}
	if m.Lines*m.Samples != lines*samples || m.ChunkLines <= 0 {
		return nil, fmt.Errorf("%w: %s holds %dx%d, want %dx%d", ErrCacheNotFound, path, m.Lines, m.Samples, lines, samples)
	}

	grids := make(map[string]*model.Grid, len(names))
	for _, name := range names {
		g := model.NewGrid(m.Lines, m.Samples)
		for k, start := 0, 0; start < m.Lines; k, start = k+1, start+m.ChunkLines {
			if err := readChunk(filepath.Join(path, name, chunkName(k)), name, g, start); err != nil {
				return nil, err
			}
		}
		grids[name] = g
	}
	return &Entry{Path: path, grids: grids}, nil
}

func readChunk(file, name string, g *model.Grid, start int) error {
	nc, err := netcdf.Open(file)
	if err != nil {
		return fmt.Errorf("%w: open chunk %s: %v", ErrCacheNotFound, file, err)
	}
	defer nc.Close()

	vr, err := nc.GetVariable(name)
	if err != nil {
		return fmt.Errorf("%w: chunk %s lacks %q: %v", ErrCacheNotFound, file, name, err)
	}
	offset := start * g.Samples
	switch v := vr.Values.(type) {
	case [][]float64:
		for _, row := range v {
			if offset+len(row) > len(g.Data) {
				return fmt.Errorf("%w: chunk %s overruns grid", ErrCacheNotFound, file)
			}
			copy(g.Data[offset:], row)
			offset += len(row)
		}
	case []float64:
		if offset+len(v) > len(g.Data) {
			return fmt.Errorf("%w: chunk %s overruns grid", ErrCacheNotFound, file)
		}
		copy(g.Data[offset:], v)
	default:
		return fmt.Errorf("%w: chunk %s has unexpected type %T", ErrCacheNotFound, file, vr.Values)
	}
	return nil
}

// Remove implements Backend.
func (b *ChunkedBackend) Remove(path string) error {
	return os.RemoveAll(path)
}

func chunkName(k int) string {
	return strconv.Itoa(k) + ".nc"
}
