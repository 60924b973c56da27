// Package zone provides geographic zones, point-in-polygon lookup and
// GeoJSON import/export.
package zone

import (
	"time"

	"github.com/paulmach/orb"
)

// SentinelName is the zone assigned to points outside every polygon.
const SentinelName = "Not in District"

// Zone is a named area, usually a trustee district.
type Zone struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	TrusteeName  string       `json:"trustee_name"`
	TrusteeEmail string       `json:"trustee_email"`
	Geometry     orb.Geometry `json:"-"` // Polygon or MultiPolygon; nil for the sentinel
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsSentinel returns true for the "Not in District" zone.
func (z *Zone) IsSentinel() bool {
	return z.Name == SentinelName
}
