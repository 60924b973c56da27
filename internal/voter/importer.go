package voter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Column positions in the county voter export. Columns not listed
// (mailing address, school district, election history) are ignored.
const (
	colVoterID      = 0
	colPrefix       = 1
	colLastName     = 2
	colFirstName    = 3
	colMiddleName   = 4
	colSuffix       = 5
	colAge          = 6
	colGender       = 7
	colPhone        = 8
	colStreet       = 9
	colCity         = 11
	colSt           = 12
	colZipcode      = 13
	colRegistration = 21
	colParty        = 22
	colPrecinct     = 23
	colZone         = 25

	numColumns = 34
)

// registrationLayouts are the date formats seen in voter exports.
var registrationLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"2006/01/02",
	"Jan 2, 2006",
}

// RowError describes why one input row was rejected.
type RowError struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
}

// Result summarizes an import.
type Result struct {
	Imported int        `json:"imported"`
	Created  int        `json:"created"`
	Errors   []RowError `json:"errors,omitempty"`
}

// Import reads a voter export, skipping the header row, and upserts every
// valid row by voter_id. Invalid rows are reported in the result and never
// stop the import. An error is returned only for I/O or storage failures.
func Import(ctx context.Context, repo *Repository, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	res := &Result{}
	header := true

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			res.Errors = append(res.Errors, RowError{Line: parseErr.Line, Field: "row", Message: parseErr.Err.Error()})
			header = false
			continue
		}
		if err != nil {
			return res, fmt.Errorf("reading voter file: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if header {
			header = false
			continue
		}

		v, rowErr := parseRow(record)
		if rowErr != nil {
			rowErr.Line = line
			res.Errors = append(res.Errors, *rowErr)
			continue
		}

		created, err := repo.Upsert(ctx, v)
		if err != nil {
			return res, err
		}
		res.Imported++
		if created {
			res.Created++
		}
	}

	slog.Info("voter import finished", "imported", res.Imported, "created", res.Created, "errors", len(res.Errors))
	return res, nil
}

// parseRow validates one record. The returned error has no line set.
func parseRow(rec []string) (*Voter, *RowError) {
	if len(rec) < numColumns {
		return nil, &RowError{Field: "row", Message: fmt.Sprintf("expected %d columns, got %d", numColumns, len(rec))}
	}
	field := func(i int) string { return strings.TrimSpace(rec[i]) }

	v := &Voter{
		Prefix:     field(colPrefix),
		LastName:   field(colLastName),
		FirstName:  field(colFirstName),
		MiddleName: field(colMiddleName),
		Suffix:     field(colSuffix),
		Phone:      cleanPhone(rec[colPhone]),
		Street:     field(colStreet),
		City:       field(colCity),
		St:         field(colSt),
		Zipcode:    field(colZipcode),
	}

	id, err := strconv.ParseInt(field(colVoterID), 10, 64)
	if err != nil || id <= 0 {
		return nil, &RowError{Field: "voter_id", Message: "must be a positive integer"}
	}
	v.VoterID = id

	for _, req := range []struct{ name, value string }{
		{"last_name", v.LastName},
		{"first_name", v.FirstName},
		{"street", v.Street},
		{"city", v.City},
		{"st", v.St},
		{"zipcode", v.Zipcode},
	} {
		if req.value == "" {
			return nil, &RowError{Field: req.name, Message: "is required"}
		}
	}

	age, err := strconv.Atoi(field(colAge))
	if err != nil || age < 0 {
		return nil, &RowError{Field: "age", Message: "must be a non-negative integer"}
	}
	v.Age = age

	if g := field(colGender); g != "" {
		code, ok := genders[strings.ToUpper(g)]
		if !ok {
			return nil, &RowError{Field: "gender", Message: fmt.Sprintf("unknown gender %q", g)}
		}
		v.Gender = &code
	}

	if p := field(colParty); p != "" {
		code, ok := parties[strings.ToLower(p)]
		if !ok {
			return nil, &RowError{Field: "party", Message: fmt.Sprintf("unknown party %q", p)}
		}
		v.Party = &code
	}

	if reg := field(colRegistration); reg != "" {
		d, ok := parseRegistration(reg)
		if !ok {
			return nil, &RowError{Field: "registration", Message: fmt.Sprintf("unparseable date %q", reg)}
		}
		v.Registration = d
	}

	if p := field(colPrecinct); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &RowError{Field: "precinct", Message: "must be an integer"}
		}
		v.Precinct = &n
	}

	zone, err := parseZone(field(colZone))
	if err != nil {
		return nil, &RowError{Field: "zone", Message: err.Error()}
	}
	v.Zone = &zone

	return v, nil
}

// parseZone takes the trailing digit of labels like "Zone 3".
func parseZone(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("is required")
	}
	d := s[len(s)-1]
	if d < '1' || d > '5' {
		return 0, fmt.Errorf("%q does not end in a zone number 1-5", s)
	}
	return int(d - '0'), nil
}

func parseRegistration(s string) (string, bool) {
	for _, layout := range registrationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

func cleanPhone(s string) string {
	return strings.NewReplacer(" ", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}
