package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/signalsfoundry/geoloc/model"
)

// Artifact prefixes.
const (
	PrefixLatLon          = "GEOLL"
	PrefixSatelliteAngles = "GEOSAT"
	PrefixIndices         = "GEOINDS"
	PrefixSolarAngles     = "GEOSOL"
)

// digestBytes is how much of the SHA-256 sum ends up in file names.
const digestBytes = 16

// KeyBuilder derives cache paths. Static areas and full-disk artifacts live
// under Root, dynamic areas under DynamicRoot, both split by platform.
type KeyBuilder struct {
	Root        string
	DynamicRoot string
}

// NewKeyBuilder returns a builder; an empty dynamicRoot falls back to root.
func NewKeyBuilder(root, dynamicRoot string) *KeyBuilder {
	if dynamicRoot == "" {
		dynamicRoot = root
	}
	return &KeyBuilder{Root: root, DynamicRoot: dynamicRoot}
}

// Build returns the complete-entry path for an artifact. area may be nil for
// full-disk artifacts. chunkSize only applies to the chunked backend.
func (k *KeyBuilder) Build(prefix string, md *model.Metadata, area model.Area, kind BackendKind, chunkSize int) (string, error) {
	ext, err := kind.Extension()
	if err != nil {
		return "", err
	}
	name := Stem(prefix, md, area)
	if kind == KindChunked && chunkSize > 0 {
		name += "_chunk" + strconv.Itoa(chunkSize)
	}
	root := k.Root
	if area != nil && area.Dynamic() {
		root = k.DynamicRoot
	}
	return filepath.Join(root, sanitize(md.Platform), name+ext), nil
}

// Stem returns the backend-independent part of a cache file name.
func Stem(prefix string, md *model.Metadata, area model.Area) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s_%s_%dx%d", prefix, sanitize(md.SceneID), md.NumLines, md.NumSamples)
	if area != nil {
		h, w := area.Shape()
		lat, lon := area.Center()
		fmt.Fprintf(&b, "_%s_%dx%d_%sx%s", sanitize(area.AreaID()), h, w, formatCoord(lat), formatCoord(lon))
	}
	b.WriteString("_")
	b.WriteString(MetadataDigest(md))
	if area != nil {
		b.WriteString("_")
		b.WriteString(AreaDigest(area))
	}
	return b.String()
}

// MetadataDigest hashes the canonical form of md, excluding timestamps.
func MetadataDigest(md *model.Metadata) string {
	return digest(md.Fields())
}

// AreaDigest hashes the projection parameters of an area.
func AreaDigest(area model.Area) string {
	return digest(area.ProjParams())
}

func digest(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		// Length-prefix both parts so no two maps share an encoding.
		fmt.Fprintf(h, "%d:%s=%d:%s;", len(k), k, len(fields[k]), fields[k])
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:digestBytes])
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// sanitize keeps names usable as path elements.
func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '-'
		}
		return r
	}, s)
}
