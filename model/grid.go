package model

import "fmt"

// Grid is a row-major 2-D float64 array. Grids opened from a flat cache
// file are read-only views into a memory mapping; writing to Data panics.
type Grid struct {
	Lines   int
	Samples int
	Data    []float64
	// Mask, when non-nil, flags invalid pixels with true.
	Mask []bool
}

// NewGrid allocates a zero-filled grid.
func NewGrid(lines, samples int) *Grid {
	return &Grid{Lines: lines, Samples: samples, Data: make([]float64, lines*samples)}
}

// NewFilledGrid allocates a grid with every value set to v.
func NewFilledGrid(lines, samples int, v float64) *Grid {
	g := NewGrid(lines, samples)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// WrapGrid wraps an existing slice without copying.
func WrapGrid(lines, samples int, data []float64) (*Grid, error) {
	if len(data) != lines*samples {
		return nil, fmt.Errorf("grid %dx%d needs %d values, got %d", lines, samples, lines*samples, len(data))
	}
	return &Grid{Lines: lines, Samples: samples, Data: data}, nil
}

// Len returns the number of pixels.
func (g *Grid) Len() int { return g.Lines * g.Samples }

// At returns the value at (line, sample).
func (g *Grid) At(line, sample int) float64 { return g.Data[line*g.Samples+sample] }

// Set stores v at (line, sample).
func (g *Grid) Set(line, sample int, v float64) { g.Data[line*g.Samples+sample] = v }

// SameShape reports whether two grids have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return o != nil && g.Lines == o.Lines && g.Samples == o.Samples
}

// Masked reports whether pixel i is masked.
func (g *Grid) Masked(i int) bool {
	return g.Mask != nil && g.Mask[i]
}

// MaskWhere masks every pixel for which pred returns true. Existing masked
// pixels stay masked.
func (g *Grid) MaskWhere(pred func(i int) bool) {
	if g.Mask == nil {
		g.Mask = make([]bool, g.Len())
	}
	for i := range g.Mask {
		if pred(i) {
			g.Mask[i] = true
		}
	}
}

// MaskedCount returns the number of masked pixels.
func (g *Grid) MaskedCount() int {
	n := 0
	for i := 0; i < g.Len(); i++ {
		if g.Masked(i) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy that owns its storage.
func (g *Grid) Clone() *Grid {
	c := &Grid{Lines: g.Lines, Samples: g.Samples, Data: make([]float64, len(g.Data))}
	copy(c.Data, g.Data)
	if g.Mask != nil {
		c.Mask = make([]bool, len(g.Mask))
		copy(c.Mask, g.Mask)
	}
	return c
}

// IndexGrid is a row-major 2-D array of indices into a full-disk grid.
type IndexGrid struct {
	Lines   int
	Samples int
	Data    []int
}

// NewIndexGrid allocates a grid with every entry set to NoIndex.
func NewIndexGrid(lines, samples int) *IndexGrid {
	g := &IndexGrid{Lines: lines, Samples: samples, Data: make([]int, lines*samples)}
	for i := range g.Data {
		g.Data[i] = NoIndex
	}
	return g
}

// Len returns the number of entries.
func (g *IndexGrid) Len() int { return len(g.Data) }

// At returns the entry at (line, sample).
func (g *IndexGrid) At(line, sample int) int { return g.Data[line*g.Samples+sample] }

// Valid returns the number of entries that hold a real index.
func (g *IndexGrid) Valid() int {
	n := 0
	for _, v := range g.Data {
		if v != NoIndex {
			n++
		}
	}
	return n
}

// ToGrid converts indices to float64 for storage in float caches.
func (g *IndexGrid) ToGrid() *Grid {
	out := NewGrid(g.Lines, g.Samples)
	for i, v := range g.Data {
		out.Data[i] = float64(v)
	}
	return out
}

// IndexGridFromGrid converts a stored float grid back into indices.
func IndexGridFromGrid(g *Grid) *IndexGrid {
	out := &IndexGrid{Lines: g.Lines, Samples: g.Samples, Data: make([]int, g.Len())}
	for i, v := range g.Data {
		out.Data[i] = int(v)
	}
	return out
}
