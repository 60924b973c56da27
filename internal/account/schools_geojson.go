package account

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SchoolImportResult summarises a school GeoJSON import.
type SchoolImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ImportSchools reads a GeoJSON FeatureCollection and upserts one school per
// feature, keyed by the "name" property. A feature's geometry becomes the
// school's boundary; it must be a Polygon, a MultiPolygon or null.
func ImportSchools(ctx context.Context, repo *Repository, r io.Reader) (*SchoolImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	schools := make([]*School, 0, len(fc.Features))
	for i, f := range fc.Features {
		name := f.Properties.MustString("name", "")
		if name == "" {
			return nil, fmt.Errorf("feature %d: missing name property", i)
		}
		switch f.Geometry.(type) {
		case nil, orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("feature %d (%s): geometry must be Polygon or MultiPolygon", i, name)
		}
		schools = append(schools, &School{Name: name, Boundary: f.Geometry})
	}

	result := &SchoolImportResult{}
	for _, s := range schools {
		_, created, err := repo.UpsertSchool(ctx, s)
		if err != nil {
			return result, fmt.Errorf("saving school %q: %w", s.Name, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

// ExportSchools writes every school with a boundary as a FeatureCollection.
func ExportSchools(ctx context.Context, repo *Repository, w io.Writer) error {
	schools, err := repo.ListSchools(ctx)
	if err != nil {
		return err
	}

	fc := geojson.NewFeatureCollection()
	for _, s := range schools {
		if s.Boundary == nil {
			continue
		}
		f := geojson.NewFeature(s.Boundary)
		f.ID = s.ID
		f.Properties["name"] = s.Name
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
