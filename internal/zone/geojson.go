package zone

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ImportResult summarises a GeoJSON import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Import reads a GeoJSON FeatureCollection and upserts one zone per feature,
// keyed by the "name" property. Optional properties "trustee_name" and
// "trustee_email" are copied. Only Polygon and MultiPolygon features are accepted.
func Import(ctx context.Context, repo *Repository, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	zones := make([]*Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		name := f.Properties.MustString("name", "")
		if name == "" {
			return nil, fmt.Errorf("feature %d: missing name property", i)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("feature %d (%s): geometry must be Polygon or MultiPolygon", i, name)
		}
		zones = append(zones, &Zone{
			Name:         name,
			TrusteeName:  f.Properties.MustString("trustee_name", ""),
			TrusteeEmail: f.Properties.MustString("trustee_email", ""),
			Geometry:     f.Geometry,
		})
	}

	result := &ImportResult{}
	for _, z := range zones {
		_, created, err := repo.Upsert(ctx, z)
		if err != nil {
			return result, fmt.Errorf("saving zone %q: %w", z.Name, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	return result, nil
}

// Export writes every zone with geometry as a GeoJSON FeatureCollection.
func Export(ctx context.Context, repo *Repository, w io.Writer) error {
	zones, err := repo.List(ctx)
	if err != nil {
		return err
	}

	fc := geojson.NewFeatureCollection()
	for _, z := range zones {
		if z.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(z.Geometry)
		f.ID = z.ID
		f.Properties["name"] = z.Name
		f.Properties["trustee_name"] = z.TrusteeName
		f.Properties["trustee_email"] = z.TrusteeEmail
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing geojson: %w", err)
	}
	return nil
}
