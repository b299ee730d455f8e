package model

// Platform holds the nominal navigation constants of a geostationary
// satellite. Readers use it to fill metadata their files do not carry.
type Platform struct {
	Name string
	// Aliases are alternative names used by file formats, e.g. "H09".
	Aliases []string

	SubLon            float64
	SatelliteDistance float64
	EquatorRadius     float64
	PolarRadius       float64
}

// Earth constants shared by the supported platforms (metres).
const (
	WGS84EquatorRadius = 6378137.0
	WGS84PolarRadius   = 6356752.31414
	// GeostationaryDistance is the nominal orbit radius from the Earth centre.
	GeostationaryDistance = 42164160.0
)

// Apply renames md to the canonical platform name, so aliases share cache
// entries, and copies the platform constants wherever md leaves them at
// zero. Readers that set a zero sub-satellite longitude on purpose must
// restore it afterwards.
func (p *Platform) Apply(md *Metadata) {
	if p == nil || md == nil {
		return
	}
	md.Platform = p.Name
	if md.SubLon == 0 {
		md.SubLon = p.SubLon
	}
	if md.SatelliteDistance == 0 {
		md.SatelliteDistance = p.SatelliteDistance
	}
	if md.EquatorRadius == 0 {
		md.EquatorRadius = p.EquatorRadius
	}
	if md.PolarRadius == 0 {
		md.PolarRadius = p.PolarRadius
	}
}
