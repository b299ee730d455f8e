package kb

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/geoloc/model"
)

// Registry is an in-memory, thread-safe store of platform navigation
// constants, looked up by name or alias without regard to case.
type Registry struct {
	mu sync.RWMutex

	platforms map[string]*model.Platform
	index     map[string]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		platforms: make(map[string]*model.Platform),
		index:     make(map[string]string),
	}
}

// DefaultRegistry returns a registry preloaded with the operational
// geostationary imagers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range defaultPlatforms() {
		// defaults never collide
		_ = r.Register(p)
	}
	return r
}

func defaultPlatforms() []*model.Platform {
	goes := func(name string, subLon float64, aliases ...string) *model.Platform {
		return &model.Platform{
			Name:              name,
			Aliases:           aliases,
			SubLon:            subLon,
			SatelliteDistance: model.GeostationaryDistance,
			EquatorRadius:     model.WGS84EquatorRadius,
			PolarRadius:       model.WGS84PolarRadius,
		}
	}
	msg := func(name string, subLon float64, aliases ...string) *model.Platform {
		return &model.Platform{
			Name:              name,
			Aliases:           aliases,
			SubLon:            subLon,
			SatelliteDistance: 42164000.0,
			EquatorRadius:     6378169.0,
			PolarRadius:       6356583.8,
		}
	}
	return []*model.Platform{
		goes("Himawari-8", 140.7, "H08", "HIMAWARI8"),
		goes("Himawari-9", 140.7, "H09", "HIMAWARI9"),
		goes("GOES-16", -75.2, "G16", "GOES16"),
		goes("GOES-18", -137.2, "G18", "GOES18"),
		goes("GK-2A", 128.2, "GK2A", "GEO-KOMPSAT-2A"),
		msg("Meteosat-10", 9.5, "MSG3", "MET10"),
		msg("Meteosat-11", 0.0, "MSG4", "MET11"),
	}
}

func key(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Register adds a platform. It returns an error if its name or one of its
// aliases is already taken.
func (r *Registry) Register(p *model.Platform) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("platform must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{p.Name}, p.Aliases...)
	for _, n := range names {
		if owner, exists := r.index[key(n)]; exists {
			return fmt.Errorf("platform name %q already registered by %q", n, owner)
		}
	}
	r.platforms[p.Name] = p
	for _, n := range names {
		r.index[key(n)] = p.Name
	}
	return nil
}

// Get returns the platform registered under name or alias, or nil.
func (r *Registry) Get(name string) *model.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.index[key(name)]
	if !ok {
		return nil
	}
	return r.platforms[canonical]
}

// Apply fills unset navigation fields of md from the platform it names.
// Metadata for an unknown platform is left untouched and reported.
func (r *Registry) Apply(md *model.Metadata) error {
	if md == nil {
		return fmt.Errorf("nil metadata")
	}
	p := r.Get(md.Platform)
	if p == nil {
		return fmt.Errorf("platform %q not registered", md.Platform)
	}
	p.Apply(md)
	return nil
}

// Names returns the canonical platform names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]string, 0, len(r.platforms))
	for n := range r.platforms {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}
