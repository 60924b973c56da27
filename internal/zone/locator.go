package zone

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Locator finds the zone containing a point. It holds a snapshot of the
// zones taken when it was built.
type Locator struct {
	zones    []*Zone
	bounds   []orb.Bound
	sentinel *Zone
}

// NewLocator builds a locator over zones. Zones without geometry are
// ignored. When several polygons overlap, the first in the list wins.
func NewLocator(zones []*Zone, sentinel *Zone) *Locator {
	l := &Locator{sentinel: sentinel}
	for _, z := range zones {
		if z.Geometry == nil {
			continue
		}
		l.zones = append(l.zones, z)
		l.bounds = append(l.bounds, z.Geometry.Bound())
	}
	return l
}

// LoadLocator builds a locator from every stored zone, creating the sentinel if needed.
func LoadLocator(ctx context.Context, repo *Repository) (*Locator, error) {
	sentinel, err := repo.Sentinel(ctx)
	if err != nil {
		return nil, err
	}
	zones, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading zones: %w", err)
	}
	return NewLocator(zones, sentinel), nil
}

// Contains reports whether the zone's geometry contains p.
func Contains(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	}
	return false
}

// Find returns the zone containing the point, or nil.
func (l *Locator) Find(lat, lng float64) *Zone {
	p := orb.Point{lng, lat}
	for i, z := range l.zones {
		if !l.bounds[i].Contains(p) {
			continue
		}
		if Contains(z.Geometry, p) {
			return z
		}
	}
	return nil
}

// Locate returns the zone containing the point, falling back to the sentinel.
func (l *Locator) Locate(lat, lng float64) *Zone {
	if z := l.Find(lat, lng); z != nil {
		return z
	}
	return l.sentinel
}

// Len returns the number of zones with geometry.
func (l *Locator) Len() int {
	return len(l.zones)
}
