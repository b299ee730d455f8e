package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Sentinels shared by every geolocation array.
const (
	// DefaultOffOfDisk marks pixels that do not intersect the Earth.
	DefaultOffOfDisk = -999.9
	// FillValue marks area pixels with no full-disk match.
	FillValue = -999.1
	// NoIndex marks area pixels with no full-disk index.
	NoIndex = -999
)

// BadValues carries the sentinel values supplied by a sensor reader.
type BadValues struct {
	OffOfDisk float64
}

// DefaultBadValues returns the conventional sentinel set.
func DefaultBadValues() BadValues {
	return BadValues{OffOfDisk: DefaultOffOfDisk}
}

// ScanGeometry maps a (line, sample) pair onto fixed-grid scan angles in
// radians: x = XOffset + XScale*sample, y = YOffset + YScale*line.
type ScanGeometry struct {
	XScale  float64
	XOffset float64
	YScale  float64
	YOffset float64
}

// X returns the east-west scan angle of a sample, in radians.
func (s ScanGeometry) X(sample int) float64 { return s.XOffset + s.XScale*float64(sample) }

// Y returns the north-south scan angle of a line, in radians.
func (s ScanGeometry) Y(line int) float64 { return s.YOffset + s.YScale*float64(line) }

// ScanFromCGMS converts CGMS column/line factors and offsets (LRIT/HRIT
// convention, 1-based image coordinates) into a ScanGeometry.
func ScanFromCGMS(cfac, lfac, coff, loff float64) ScanGeometry {
	const twoTo16 = 65536.0
	deg := math.Pi / 180
	xScale := twoTo16 / cfac * deg
	yScale := twoTo16 / lfac * deg
	return ScanGeometry{
		XScale:  xScale,
		XOffset: (1 - coff) * xScale,
		// CGMS lines run north to south while y grows northwards.
		YScale:  -yScale,
		YOffset: -(1 - loff) * yScale,
	}
}

// Metadata describes one sensor scene as seen by the geolocation core.
// It is built by a sensor-specific reader and treated as immutable.
type Metadata struct {
	Platform string
	SceneID  string

	NumLines   int
	NumSamples int

	// Sub-satellite point, degrees.
	SubLon float64
	SubLat float64

	// SatelliteDistance is the distance from the Earth centre in metres.
	SatelliteDistance float64
	EquatorRadius     float64
	PolarRadius       float64

	Scan ScanGeometry

	// ROIFactor multiplies ResKm to obtain the nearest-neighbour radius.
	ROIFactor float64
	// ResKm is the nominal ground resolution; zero means unknown.
	ResKm float64

	StartTime time.Time
	EndTime   time.Time

	// Extra holds reader-specific values that must take part in the cache key.
	Extra map[string]string
}

// Altitude returns the satellite height above the equator in metres.
func (m *Metadata) Altitude() float64 {
	return m.SatelliteDistance - m.EquatorRadius
}

// Size returns the number of full-disk pixels.
func (m *Metadata) Size() int {
	return m.NumLines * m.NumSamples
}

// Validate checks the fields every geolocation step depends on.
func (m *Metadata) Validate() error {
	if m == nil {
		return fmt.Errorf("metadata is nil")
	}
	if m.Platform == "" || m.SceneID == "" {
		return fmt.Errorf("metadata requires platform and scene id (got %q, %q)", m.Platform, m.SceneID)
	}
	if m.NumLines <= 0 || m.NumSamples <= 0 {
		return fmt.Errorf("invalid grid shape %dx%d", m.NumLines, m.NumSamples)
	}
	if m.EquatorRadius <= 0 || m.PolarRadius <= 0 {
		return fmt.Errorf("invalid earth radii %g/%g", m.EquatorRadius, m.PolarRadius)
	}
	if m.SatelliteDistance <= m.EquatorRadius {
		return fmt.Errorf("satellite distance %g must exceed equatorial radius %g", m.SatelliteDistance, m.EquatorRadius)
	}
	return nil
}

// Fields returns the canonical string form of every value that identifies
// the scene geometry. Start and end times are excluded, including any
// carried in Extra.
func (m *Metadata) Fields() map[string]string {
	f := map[string]string{
		"platform":     m.Platform,
		"scene_id":     m.SceneID,
		"num_lines":    strconv.Itoa(m.NumLines),
		"num_samples":  strconv.Itoa(m.NumSamples),
		"sub_lon":      formatFloat(m.SubLon),
		"sub_lat":      formatFloat(m.SubLat),
		"sat_distance": formatFloat(m.SatelliteDistance),
		"req":          formatFloat(m.EquatorRadius),
		"rpol":         formatFloat(m.PolarRadius),
		"x_scale":      formatFloat(m.Scan.XScale),
		"x_offset":     formatFloat(m.Scan.XOffset),
		"y_scale":      formatFloat(m.Scan.YScale),
		"y_offset":     formatFloat(m.Scan.YOffset),
		"roi_factor":   formatFloat(m.ROIFactor),
	}
	if m.ResKm > 0 {
		f["res_km"] = formatFloat(m.ResKm)
	}
	for k, v := range m.Extra {
		if k == "start_time" || k == "end_time" {
			continue
		}
		f["extra."+k] = v
	}
	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
