package zone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/evcraddock/advocate/internal/db"
)

// ErrNotFound is returned when a zone does not exist.
var ErrNotFound = errors.New("zone not found")

// Repository provides data access for zones.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a zone repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, name, trustee_name, trustee_email, polygon, created_at, updated_at`

func scanZone(row interface{ Scan(...interface{}) error }) (*Zone, error) {
	var z Zone
	var polygon sql.NullString
	if err := row.Scan(&z.ID, &z.Name, &z.TrusteeName, &z.TrusteeEmail, &polygon, &z.CreatedAt, &z.UpdatedAt); err != nil {
		return nil, err
	}
	if polygon.Valid && polygon.String != "" {
		g, err := geojson.UnmarshalGeometry([]byte(polygon.String))
		if err != nil {
			return nil, fmt.Errorf("decoding polygon for zone %q: %w", z.Name, err)
		}
		z.Geometry = g.Geometry()
	}
	return &z, nil
}

func encodeGeometry(g orb.Geometry) (sql.NullString, error) {
	if g == nil {
		return sql.NullString{}, nil
	}
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return sql.NullString{}, fmt.Errorf("unsupported zone geometry %s", g.GeoJSONType())
	}
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding polygon: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Upsert creates a zone or updates the one with the same name.
// It reports whether the zone was newly created.
func (r *Repository) Upsert(ctx context.Context, z *Zone) (*Zone, bool, error) {
	name := strings.TrimSpace(z.Name)
	if name == "" {
		return nil, false, fmt.Errorf("zone name is required")
	}
	polygon, err := encodeGeometry(z.Geometry)
	if err != nil {
		return nil, false, err
	}

	_, err = r.GetByName(ctx, name)
	created := errors.Is(err, ErrNotFound)
	if err != nil && !created {
		return nil, false, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO zones (name, trustee_name, trustee_email, polygon) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			trustee_name = excluded.trustee_name,
			trustee_email = excluded.trustee_email,
			polygon = excluded.polygon,
			updated_at = CURRENT_TIMESTAMP`,
		name, strings.TrimSpace(z.TrusteeName), strings.TrimSpace(z.TrusteeEmail), polygon,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upserting zone: %w", err)
	}

	saved, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return saved, created, nil
}

// Get returns a zone by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Zone, error) {
	z, err := scanZone(r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM zones WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("zone %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying zone %d: %w", id, err)
	}
	return z, nil
}

// GetByName returns a zone by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (*Zone, error) {
	z, err := scanZone(r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM zones WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("zone %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying zone %q: %w", name, err)
	}
	return z, nil
}

// List returns all zones ordered by ID.
func (r *Repository) List(ctx context.Context) ([]*Zone, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM zones ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var zones []*Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning zone: %w", err)
		}
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zones: %w", err)
	}

	return zones, nil
}

// Sentinel returns the "Not in District" zone, creating it if needed.
func (r *Repository) Sentinel(ctx context.Context) (*Zone, error) {
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO zones (name) VALUES (?) ON CONFLICT(name) DO NOTHING", SentinelName,
	); err != nil && !db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("creating sentinel zone: %w", err)
	}
	return r.GetByName(ctx, SentinelName)
}

// Delete removes a zone. Accounts in it lose their zone until reconciled.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM zones WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting zone: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("zone %d: %w", id, ErrNotFound)
	}

	return nil
}
