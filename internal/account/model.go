// Package account provides member users, their profiles and data access.
package account

import (
	"strings"
	"time"
)

// User is an authenticated identity, refreshed from provider claims on each login.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	IsVerified  bool       `json:"is_verified"`
	IsActive    bool       `json:"is_active"`
	IsAdmin     bool       `json:"is_admin"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Identity holds the claims delivered by the identity provider.
type Identity struct {
	Username string
	Name     string
	Email    string
	Verified bool
}

// Address is a structured postal address. The zero value means no address.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// IsZero returns true if no address component is set.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.State) == "" &&
		strings.TrimSpace(a.Zip) == ""
}

// String renders the one-line form used for display and geocoding,
// e.g. "123 Main St, Boise, ID 83702".
func (a Address) String() string {
	var parts []string
	if s := strings.TrimSpace(a.Street); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(a.City); c != "" {
		parts = append(parts, c)
	}
	stateZip := strings.TrimSpace(strings.TrimSpace(a.State) + " " + strings.TrimSpace(a.Zip))
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Account is a member profile, linked 1:1 to a User.
// AddressRaw, Point and ZoneID are derived from Address by reconciliation.
type Account struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Name       string    `json:"name"`
	IsPublic   bool      `json:"is_public"`
	IsSpouse   bool      `json:"is_spouse"`
	Address    Address   `json:"address"`
	AddressRaw string    `json:"address_raw"`
	Point      *Point    `json:"point,omitempty"`
	ZoneID     *int64    `json:"zone_id,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	User *User `json:"user,omitempty"`
}

// Profile is the member-editable part of an Account.
type Profile struct {
	Name     string  `json:"name"`
	IsPublic bool    `json:"is_public"`
	IsSpouse bool    `json:"is_spouse"`
	Address  Address `json:"address"`
}

// Derived holds the fields computed by reconciliation.
type Derived struct {
	AddressRaw string
	Point      *Point
	ZoneID     *int64
}

// Derived returns the account's current derived fields.
func (a *Account) Derived() Derived {
	return Derived{AddressRaw: a.AddressRaw, Point: a.Point, ZoneID: a.ZoneID}
}

// Equal reports whether two derived field sets are identical.
func (d Derived) Equal(o Derived) bool {
	if d.AddressRaw != o.AddressRaw {
		return false
	}
	if (d.Point == nil) != (o.Point == nil) {
		return false
	}
	if d.Point != nil && *d.Point != *o.Point {
		return false
	}
	if (d.ZoneID == nil) != (o.ZoneID == nil) {
		return false
	}
	return d.ZoneID == nil || *d.ZoneID == *o.ZoneID
}
