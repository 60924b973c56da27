package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/evcraddock/advocate/internal/db"
)

// ErrInvalidStudent is returned when a student fails validation.
var ErrInvalidStudent = errors.New("invalid student")

// Grade is a school grade from Pre-K (-1) through twelfth (12).
type Grade int

const (
	GradePreK         Grade = -1
	GradeKindergarten Grade = 0
	GradeTwelfth      Grade = 12
)

// Valid reports whether g is between Pre-K and twelfth grade.
func (g Grade) Valid() bool {
	return g >= GradePreK && g <= GradeTwelfth
}

// Short returns the compact label used in listings: PK, K, 1st ... 12th.
func (g Grade) Short() string {
	switch {
	case g == GradePreK:
		return "PK"
	case g == GradeKindergarten:
		return "K"
	case !g.Valid():
		return fmt.Sprintf("grade %d", int(g))
	}
	suffix := "th"
	switch g {
	case 1:
		suffix = "st"
	case 2:
		suffix = "nd"
	case 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", int(g), suffix)
}

// School is a school members' children attend. Boundary is an optional
// attendance-area Polygon or MultiPolygon.
type School struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Boundary  orb.Geometry `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Student is a member's child. Grade is nil when the member left it blank.
type Student struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	SchoolID   int64     `json:"school_id"`
	SchoolName string    `json:"school_name"`
	Name       string    `json:"name"`
	Grade      *Grade    `json:"grade"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStudent is the member-supplied part of a Student.
type NewStudent struct {
	SchoolID int64  `json:"school_id"`
	Name     string `json:"name"`
	Grade    *Grade `json:"grade"`
}

const schoolColumns = `id, name, boundary, created_at, updated_at`

func scanSchool(row scanner) (*School, error) {
	var s School
	var boundary sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &boundary, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if boundary.Valid && boundary.String != "" {
		g, err := geojson.UnmarshalGeometry([]byte(boundary.String))
		if err != nil {
			return nil, fmt.Errorf("decoding boundary for school %q: %w", s.Name, err)
		}
		s.Boundary = g.Geometry()
	}
	return &s, nil
}

func encodeBoundary(g orb.Geometry) (sql.NullString, error) {
	if g == nil {
		return sql.NullString{}, nil
	}
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return sql.NullString{}, fmt.Errorf("unsupported school boundary %s", g.GeoJSONType())
	}
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding boundary: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// UpsertSchool creates a school or updates the one with the same name.
// It reports whether the school was newly created.
func (r *Repository) UpsertSchool(ctx context.Context, s *School) (*School, bool, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return nil, false, fmt.Errorf("school name is required")
	}
	boundary, err := encodeBoundary(s.Boundary)
	if err != nil {
		return nil, false, err
	}

	_, err = r.GetSchoolByName(ctx, name)
	created := errors.Is(err, ErrNotFound)
	if err != nil && !created {
		return nil, false, err
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO schools (name, boundary) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET boundary = excluded.boundary, updated_at = CURRENT_TIMESTAMP`,
		name, boundary,
	); err != nil {
		return nil, false, fmt.Errorf("upserting school: %w", err)
	}

	saved, err := r.GetSchoolByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return saved, created, nil
}

// GetSchool returns a school by ID.
func (r *Repository) GetSchool(ctx context.Context, id int64) (*School, error) {
	s, err := scanSchool(r.db.QueryRowContext(ctx, "SELECT "+schoolColumns+" FROM schools WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("school %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying school %d: %w", id, err)
	}
	return s, nil
}

// GetSchoolByName returns a school by its unique name.
func (r *Repository) GetSchoolByName(ctx context.Context, name string) (*School, error) {
	s, err := scanSchool(r.db.QueryRowContext(ctx, "SELECT "+schoolColumns+" FROM schools WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("school %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying school %q: %w", name, err)
	}
	return s, nil
}

// ListSchools returns all schools ordered by name.
func (r *Repository) ListSchools(ctx context.Context) (schools []*School, err error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+schoolColumns+" FROM schools ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing schools: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		s, err := scanSchool(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning school: %w", err)
		}
		schools = append(schools, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schools: %w", err)
	}
	return schools, nil
}

const studentSelect = `SELECT s.id, s.account_id, s.school_id, sc.name, s.name, s.grade, s.created_at, s.updated_at
	FROM students s JOIN schools sc ON sc.id = s.school_id`

func scanStudent(row scanner) (*Student, error) {
	var s Student
	var grade sql.NullInt64
	if err := row.Scan(&s.ID, &s.AccountID, &s.SchoolID, &s.SchoolName, &s.Name, &grade, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if grade.Valid {
		g := Grade(grade.Int64)
		s.Grade = &g
	}
	return &s, nil
}

// AddStudent records a child of the account at an existing school.
func (r *Repository) AddStudent(ctx context.Context, accountID int64, n NewStudent) (*Student, error) {
	if n.Grade != nil && !n.Grade.Valid() {
		return nil, fmt.Errorf("%w: grade must be between -1 (Pre-K) and 12", ErrInvalidStudent)
	}
	if _, err := r.GetSchool(ctx, n.SchoolID); err != nil {
		return nil, err
	}

	var grade sql.NullInt64
	if n.Grade != nil {
		grade = sql.NullInt64{Int64: int64(*n.Grade), Valid: true}
	}
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO students (account_id, school_id, name, grade) VALUES (?, ?, ?, ?)",
		accountID, n.SchoolID, strings.TrimSpace(n.Name), grade)
	if db.IsForeignKeyViolation(err) {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting student: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting student id: %w", err)
	}

	s, err := scanStudent(r.db.QueryRowContext(ctx, studentSelect+" WHERE s.id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("reading back student: %w", err)
	}
	return s, nil
}

// ListStudents returns an account's students by grade then name, ungraded last.
func (r *Repository) ListStudents(ctx context.Context, accountID int64) (students []*Student, err error) {
	rows, err := r.db.QueryContext(ctx,
		studentSelect+" WHERE s.account_id = ? ORDER BY s.grade IS NULL, s.grade, s.name, s.id", accountID)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}
	return students, nil
}

// DeleteStudent removes one of the account's students.
func (r *Repository) DeleteStudent(ctx context.Context, accountID, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = ? AND account_id = ?", id, accountID)
	if err != nil {
		return fmt.Errorf("deleting student: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	return nil
}

// StudentLines summarises each account's graded students as one line per
// school, e.g. "Pioneer Elementary K, 3rd". Schools are ordered by name and
// grades ascending. Ungraded students are left out.
func (r *Repository) StudentLines(ctx context.Context, accountIDs ...int64) (lines map[int64][]string, err error) {
	lines = make(map[int64][]string)
	if len(accountIDs) == 0 {
		return lines, nil
	}

	args := make([]interface{}, len(accountIDs))
	for i, id := range accountIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(accountIDs)), ",")

	rows, err := r.db.QueryContext(ctx,
		`SELECT s.account_id, sc.name, s.grade FROM students s JOIN schools sc ON sc.id = s.school_id
		WHERE s.grade IS NOT NULL AND s.account_id IN (`+placeholders+`)
		ORDER BY s.account_id, sc.name, s.grade`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing student schools: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	type key struct {
		account int64
		school  string
	}
	var order []key
	grades := make(map[key][]string)
	for rows.Next() {
		var k key
		var g Grade
		if err := rows.Scan(&k.account, &k.school, &g); err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		if _, seen := grades[k]; !seen {
			order = append(order, k)
		}
		grades[k] = append(grades[k], g.Short())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}

	for _, k := range order {
		lines[k.account] = append(lines[k.account], k.school+" "+strings.Join(grades[k], ", "))
	}
	return lines, nil
}
