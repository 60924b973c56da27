package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evcraddock/advocate/internal/db"
)

var (
	// ErrNotFound is returned when a user or account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidProfile is returned for a profile update that fails validation.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrStale is returned when a derived-field write is skipped because the
	// account's address changed after it was read.
	ErrStale = errors.New("address changed since read")
)

// Repository provides data access for users and accounts.
type Repository struct {
	db *sql.DB
}

// NewRepository creates an account repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const userColumns = `id, username, name, email, is_verified, is_active, is_admin, last_login_at, created_at, updated_at`

const accountColumns = `a.id, a.user_id, a.name, a.is_public, a.is_spouse,
	a.street, a.city, a.state, a.zip, a.address_raw, a.latitude, a.longitude, a.zone_id, a.notes,
	a.created_at, a.updated_at,
	u.id, u.username, u.name, u.email, u.is_verified, u.is_active, u.is_admin, u.last_login_at, u.created_at, u.updated_at`

const accountFrom = `accounts a JOIN users u ON u.id = a.user_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.IsVerified, &u.IsActive, &u.IsAdmin,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

func scanAccount(row scanner) (*Account, error) {
	var a Account
	var u User
	var lat, lng sql.NullFloat64
	var zoneID sql.NullInt64
	var lastLogin sql.NullTime

	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.IsPublic, &a.IsSpouse,
		&a.Address.Street, &a.Address.City, &a.Address.State, &a.Address.Zip,
		&a.AddressRaw, &lat, &lng, &zoneID, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
		&u.ID, &u.Username, &u.Name, &u.Email, &u.IsVerified, &u.IsActive, &u.IsAdmin,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		a.Point = &Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if zoneID.Valid {
		a.ZoneID = &zoneID.Int64
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	a.User = &u

	return &a, nil
}

// UpsertUser creates or refreshes a user from identity claims.
func (r *Repository) UpsertUser(ctx context.Context, id Identity) (*User, error) {
	username := strings.TrimSpace(id.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = "(Unknown)"
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, name, email, is_verified, last_login_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			is_verified = excluded.is_verified,
			last_login_at = excluded.last_login_at,
			updated_at = CURRENT_TIMESTAMP`,
		username, name, strings.ToLower(strings.TrimSpace(id.Email)), id.Verified, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("reading back user: %w", err)
	}
	return u, nil
}

// GetUser returns a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %d: %w", id, err)
	}
	return u, nil
}

// SetUserActive enables or disables a user. Inactive users' comments are hidden.
func (r *Repository) SetUserActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, "user", id,
		"UPDATE users SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", active, id)
}

// EnsureAccount returns the user's account, creating it on first login.
// The boolean result is true when the account was created.
func (r *Repository) EnsureAccount(ctx context.Context, u *User) (*Account, bool, error) {
	a, err := r.GetByUserID(ctx, u.ID)
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	_, err = r.db.ExecContext(ctx, "INSERT INTO accounts (user_id, name) VALUES (?, ?)", u.ID, u.Name)
	if err != nil && !db.IsUniqueViolation(err) {
		return nil, false, fmt.Errorf("creating account: %w", err)
	}
	created := err == nil

	a, err = r.GetByUserID(ctx, u.ID)
	if err != nil {
		return nil, false, err
	}
	return a, created, nil
}

// Get returns an account by ID, with its user.
func (r *Repository) Get(ctx context.Context, id int64) (*Account, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM "+accountFrom+" WHERE a.id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying account %d: %w", id, err)
	}
	return a, nil
}

// GetByUserID returns the account belonging to a user.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Account, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM "+accountFrom+" WHERE a.user_id = ?", userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying account for user %d: %w", userID, err)
	}
	return a, nil
}

// UpdateProfile saves member-editable fields. It reports whether the
// structured address changed, which makes the derived fields stale.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, p Profile) (*Account, bool, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, false, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	addr := Address{
		Street: strings.TrimSpace(p.Address.Street),
		City:   strings.TrimSpace(p.Address.City),
		State:  strings.ToUpper(strings.TrimSpace(p.Address.State)),
		Zip:    strings.TrimSpace(p.Address.Zip),
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, is_public = ?, is_spouse = ?,
			street = ?, city = ?, state = ?, zip = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		name, p.IsPublic, p.IsSpouse, addr.Street, addr.City, addr.State, addr.Zip, id,
	); err != nil {
		return nil, false, fmt.Errorf("updating account: %w", err)
	}

	updated, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return updated, current.Address != addr, nil
}

// ListIDs returns every account ID in ascending order.
func (r *Repository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return ids, nil
}

// SetDerived writes the reconciled address cache, point and zone, provided
// the account's address still equals from. If the address changed since it
// was read, nothing is written and ErrStale is returned.
func (r *Repository) SetDerived(ctx context.Context, id int64, from Address, d Derived) error {
	var lat, lng sql.NullFloat64
	if d.Point != nil {
		lat = sql.NullFloat64{Float64: d.Point.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: d.Point.Lng, Valid: true}
	}
	var zoneID sql.NullInt64
	if d.ZoneID != nil {
		zoneID = sql.NullInt64{Int64: *d.ZoneID, Valid: true}
	}

	err := r.execOne(ctx, "account", id,
		`UPDATE accounts SET address_raw = ?, latitude = ?, longitude = ?, zone_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND street = ? AND city = ? AND state = ? AND zip = ?`,
		d.AddressRaw, lat, lng, zoneID, id, from.Street, from.City, from.State, from.Zip)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	var exists bool
	if qerr := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)", id).Scan(&exists); qerr != nil {
		return fmt.Errorf("checking account %d: %w", id, qerr)
	}
	if exists {
		return fmt.Errorf("account %d: %w", id, ErrStale)
	}
	return err
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func (r *Repository) execOne(ctx context.Context, what string, id int64, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", what, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}

	return nil
}
