// Package voter provides imported voter-roll records and the CSV importer.
package voter

import (
	"database/sql"
	"strings"
	"time"
)

// Gender codes.
const (
	GenderMale    = 10
	GenderFemale  = 20
	GenderUnknown = 30
)

// Party codes.
const (
	PartyUnaffiliated = 10
	PartyRepublican   = 20
	PartyDemocratic   = 30
	PartyLibertarian  = 40
	PartyConstitution = 50
)

var genders = map[string]int{
	"M": GenderMale,
	"F": GenderFemale,
	"N": GenderUnknown,
}

var parties = map[string]int{
	"unaffiliated": PartyUnaffiliated,
	"republican":   PartyRepublican,
	"democratic":   PartyDemocratic,
	"libertarian":  PartyLibertarian,
	"constitution": PartyConstitution,
}

// Voter is one row of the county voter roll.
type Voter struct {
	ID           int64     `json:"id"`
	VoterID      int64     `json:"voter_id"`
	Prefix       string    `json:"prefix,omitempty"`
	LastName     string    `json:"last_name"`
	FirstName    string    `json:"first_name"`
	MiddleName   string    `json:"middle_name,omitempty"`
	Suffix       string    `json:"suffix,omitempty"`
	Age          int       `json:"age"`
	Gender       *int      `json:"gender,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Street       string    `json:"street"`
	City         string    `json:"city"`
	St           string    `json:"st"`
	Zipcode      string    `json:"zipcode"`
	Registration string    `json:"registration,omitempty"` // YYYY-MM-DD
	Party        *int      `json:"party,omitempty"`
	Precinct     *int      `json:"precinct,omitempty"`
	Zone         *int      `json:"zone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Name joins the non-empty first, middle and last names.
func (v *Voter) Name() string {
	var parts []string
	for _, p := range []string{v.FirstName, v.MiddleName, v.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func scanVoter(row interface{ Scan(...interface{}) error }) (*Voter, error) {
	var v Voter
	var gender, party, precinct, zone sql.NullInt64
	var registration sql.NullString

	err := row.Scan(
		&v.ID, &v.VoterID, &v.Prefix, &v.LastName, &v.FirstName, &v.MiddleName, &v.Suffix,
		&v.Age, &gender, &v.Phone, &v.Street, &v.City, &v.St, &v.Zipcode,
		&registration, &party, &precinct, &zone, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Gender = intPtr(gender)
	v.Party = intPtr(party)
	v.Precinct = intPtr(precinct)
	v.Zone = intPtr(zone)
	if registration.Valid {
		v.Registration = registration.String
	}
	return &v, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	i := int(n.Int64)
	return &i
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
