// Package batch pre-generates geolocation caches for a list of scenes and
// areas, skipping the ones that cannot be produced instead of aborting.
package batch

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/signalsfoundry/geoloc/kb"
	"github.com/signalsfoundry/geoloc/model"
)

// Job is one scene to geolocate over one area. A nil Area means the full
// disk.
type Job struct {
	ID       string
	ScanTime time.Time
	Metadata *model.Metadata
	Area     model.Area
}

// yaml shapes; unexported so the file format can evolve independently.
type jobFile struct {
	Jobs []sceneYAML `yaml:"jobs"`
}

type sceneYAML struct {
	ID        string            `yaml:"id"`
	Platform  string            `yaml:"platform"`
	Scene     string            `yaml:"scene"`
	ScanTime  string            `yaml:"scan_time"`
	Lines     int               `yaml:"lines"`
	Samples   int               `yaml:"samples"`
	SubLon    *float64          `yaml:"sub_lon"`
	ResKm     float64           `yaml:"res_km"`
	ROIFactor float64           `yaml:"roi_factor"`
	Scan      *scanYAML         `yaml:"scan"`
	CGMS      *cgmsYAML         `yaml:"cgms"`
	Extra     map[string]string `yaml:"extra"`
	// FullDisk also geolocates the full disk when areas are listed.
	FullDisk bool       `yaml:"full_disk"`
	Areas    []areaYAML `yaml:"areas"`
}

type scanYAML struct {
	XScale  float64 `yaml:"x_scale"`
	XOffset float64 `yaml:"x_offset"`
	YScale  float64 `yaml:"y_scale"`
	YOffset float64 `yaml:"y_offset"`
}

type cgmsYAML struct {
	CFAC float64 `yaml:"cfac"`
	LFAC float64 `yaml:"lfac"`
	COFF float64 `yaml:"coff"`
	LOFF float64 `yaml:"loff"`
}

type areaYAML struct {
	ID        string  `yaml:"id"`
	Lines     int     `yaml:"lines"`
	Samples   int     `yaml:"samples"`
	CenterLat float64 `yaml:"center_lat"`
	CenterLon float64 `yaml:"center_lon"`
	PixelX    float64 `yaml:"pixel_x"`
	PixelY    float64 `yaml:"pixel_y"`
	Dynamic   bool    `yaml:"dynamic"`
}

// LoadJobsFile reads a YAML job list from path.
func LoadJobsFile(reg *kb.Registry, path string) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}
	defer f.Close()
	return LoadJobs(reg, f)
}

// LoadJobs decodes a YAML job list. Navigation constants missing from a
// scene are taken from reg; a scene naming an unknown platform must then
// carry all of them itself. Every listed area becomes its own Job.
func LoadJobs(reg *kb.Registry, r io.Reader) ([]Job, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadJobs: read failed: %w", err)
	}
	var payload jobFile
	if err := yaml.UnmarshalStrict(raw, &payload); err != nil {
		return nil, fmt.Errorf("LoadJobs: decode failed: %w", err)
	}

	var jobs []Job
	for i, sc := range payload.Jobs {
		md, scanTime, err := sc.metadata(reg)
		if err != nil {
			return nil, fmt.Errorf("LoadJobs: job %d (%s): %w", i, sc.ID, err)
		}
		id := sc.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s-%s", md.Platform, md.SceneID, scanTime.Format("20060102T150405"))
		}
		if len(sc.Areas) == 0 || sc.FullDisk {
			jobs = append(jobs, Job{ID: id, ScanTime: scanTime, Metadata: md})
		}
		for _, a := range sc.Areas {
			if strings.TrimSpace(a.ID) == "" {
				return nil, fmt.Errorf("LoadJobs: job %d (%s): area without id", i, id)
			}
			jobs = append(jobs, Job{
				ID:       id + "/" + a.ID,
				ScanTime: scanTime,
				Metadata: md,
				Area: &model.LatLonArea{
					ID:        a.ID,
					Lines:     a.Lines,
					Samples:   a.Samples,
					CenterLat: a.CenterLat,
					CenterLon: a.CenterLon,
					PixelX:    a.PixelX,
					PixelY:    a.PixelY,
					IsDynamic: a.Dynamic,
				},
			})
		}
	}
	return jobs, nil
}

func (sc sceneYAML) metadata(reg *kb.Registry) (*model.Metadata, time.Time, error) {
	scanTime, err := time.Parse(time.RFC3339, sc.ScanTime)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("scan_time: %w", err)
	}
	md := &model.Metadata{
		Platform:   sc.Platform,
		SceneID:    sc.Scene,
		NumLines:   sc.Lines,
		NumSamples: sc.Samples,
		ResKm:      sc.ResKm,
		ROIFactor:  sc.ROIFactor,
		StartTime:  scanTime,
		EndTime:    scanTime,
		Extra:      sc.Extra,
	}
	switch {
	case sc.Scan != nil && sc.CGMS != nil:
		return nil, time.Time{}, fmt.Errorf("give either scan or cgms, not both")
	case sc.Scan != nil:
		md.Scan = model.ScanGeometry{XScale: sc.Scan.XScale, XOffset: sc.Scan.XOffset, YScale: sc.Scan.YScale, YOffset: sc.Scan.YOffset}
	case sc.CGMS != nil:
		md.Scan = model.ScanFromCGMS(sc.CGMS.CFAC, sc.CGMS.LFAC, sc.CGMS.COFF, sc.CGMS.LOFF)
	default:
		return nil, time.Time{}, fmt.Errorf("scan geometry missing")
	}

	if reg != nil {
		if err := reg.Apply(md); err != nil && md.Validate() != nil {
			return nil, time.Time{}, err
		}
	}
	// An explicit sub_lon, zero included, beats the registry value.
	if sc.SubLon != nil {
		md.SubLon = *sc.SubLon
	}
	if err := md.Validate(); err != nil {
		return nil, time.Time{}, err
	}
	return md, scanTime, nil
}
