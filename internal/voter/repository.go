package voter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a voter does not exist.
var ErrNotFound = errors.New("voter not found")

// Repository provides data access for voters.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a voter repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `SELECT id, voter_id, prefix, last_name, first_name, middle_name, suffix,
	age, gender, phone, street, city, st, zipcode,
	registration, party, precinct, zone, created_at, updated_at FROM voters`

// Upsert inserts a voter or replaces the row with the same voter_id.
// Returns true when a new row was created.
func (r *Repository) Upsert(ctx context.Context, v *Voter) (bool, error) {
	var existing int64
	err := r.db.QueryRowContext(ctx, "SELECT id FROM voters WHERE voter_id = ?", v.VoterID).Scan(&existing)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("checking voter %d: %w", v.VoterID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO voters (voter_id, prefix, last_name, first_name, middle_name, suffix,
			age, gender, phone, street, city, st, zipcode, registration, party, precinct, zone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(voter_id) DO UPDATE SET
			prefix = excluded.prefix,
			last_name = excluded.last_name,
			first_name = excluded.first_name,
			middle_name = excluded.middle_name,
			suffix = excluded.suffix,
			age = excluded.age,
			gender = excluded.gender,
			phone = excluded.phone,
			street = excluded.street,
			city = excluded.city,
			st = excluded.st,
			zipcode = excluded.zipcode,
			registration = excluded.registration,
			party = excluded.party,
			precinct = excluded.precinct,
			zone = excluded.zone,
			updated_at = CURRENT_TIMESTAMP`,
		v.VoterID, v.Prefix, v.LastName, v.FirstName, v.MiddleName, v.Suffix,
		v.Age, nullInt(v.Gender), v.Phone, v.Street, v.City, v.St, v.Zipcode,
		nullString(v.Registration), nullInt(v.Party), nullInt(v.Precinct), nullInt(v.Zone),
	)
	if err != nil {
		return false, fmt.Errorf("upserting voter %d: %w", v.VoterID, err)
	}
	return created, nil
}

// GetByVoterID returns a voter by its roll ID.
func (r *Repository) GetByVoterID(ctx context.Context, voterID int64) (*Voter, error) {
	v, err := scanVoter(r.db.QueryRowContext(ctx, selectColumns+" WHERE voter_id = ?", voterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voter %d: %w", voterID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying voter %d: %w", voterID, err)
	}
	return v, nil
}

// Count returns the number of stored voters, optionally within a zone (zone 0 = all).
func (r *Repository) Count(ctx context.Context, zone int) (int, error) {
	query := "SELECT COUNT(*) FROM voters"
	var args []interface{}
	if zone != 0 {
		query += " WHERE zone = ?"
		args = append(args, zone)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting voters: %w", err)
	}
	return n, nil
}
