package account

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func gradePtr(g Grade) *Grade { return &g }

func TestGradeShort(t *testing.T) {
	tests := []struct {
		grade Grade
		want  string
	}{
		{-1, "PK"},
		{0, "K"},
		{1, "1st"},
		{2, "2nd"},
		{3, "3rd"},
		{4, "4th"},
		{11, "11th"},
		{12, "12th"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.grade.Short(); got != tt.want {
				t.Errorf("Grade(%d).Short() = %q, want %q", tt.grade, got, tt.want)
			}
		})
	}
}

func TestUpsertSchool(t *testing.T) {
	repo := testSetup(t)
	ctx := context.Background()

	s, created, err := repo.UpsertSchool(ctx, &School{Name: " Pioneer Elementary "})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created || s.Name != "Pioneer Elementary" || s.Boundary != nil {
		t.Errorf("school = %+v, created = %v", s, created)
	}

	square := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	again, created, err := repo.UpsertSchool(ctx, &School{Name: "Pioneer Elementary", Boundary: square})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created || again.ID != s.ID {
		t.Errorf("expected update of school %d, got %+v created=%v", s.ID, again, created)
	}
	if _, ok := again.Boundary.(orb.Polygon); !ok {
		t.Errorf("boundary = %T, want orb.Polygon", again.Boundary)
	}

	if _, _, err := repo.UpsertSchool(ctx, &School{Name: "Bad", Boundary: orb.Point{1, 2}}); err == nil {
		t.Error("expected error for point boundary")
	}
	if _, _, err := repo.UpsertSchool(ctx, &School{Name: "  "}); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestStudents(t *testing.T) {
	repo := testSetup(t)
	ctx := context.Background()

	a := newAccount(t, repo, "parent")
	b := newAccount(t, repo, "neighbor")
	school, _, err := repo.UpsertSchool(ctx, &School{Name: "Pioneer Elementary"})
	if err != nil {
		t.Fatalf("upsert school: %v", err)
	}

	for _, n := range []NewStudent{
		{SchoolID: school.ID, Name: "Sam", Grade: gradePtr(3)},
		{SchoolID: school.ID, Name: "Lee"},
		{SchoolID: school.ID, Name: "Kim", Grade: gradePtr(GradeKindergarten)},
	} {
		if _, err := repo.AddStudent(ctx, a.ID, n); err != nil {
			t.Fatalf("add %s: %v", n.Name, err)
		}
	}

	students, err := repo.ListStudents(ctx, a.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, s := range students {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "Kim,Sam,Lee" {
		t.Errorf("order = %v, want Kim,Sam,Lee", names)
	}
	if students[0].SchoolName != "Pioneer Elementary" {
		t.Errorf("school name = %q", students[0].SchoolName)
	}

	if err := repo.DeleteStudent(ctx, b.ID, students[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting another account's student: err = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteStudent(ctx, a.ID, students[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if students, _ = repo.ListStudents(ctx, a.ID); len(students) != 2 {
		t.Errorf("got %d students after delete, want 2", len(students))
	}
}

func TestAddStudentValidation(t *testing.T) {
	repo := testSetup(t)
	ctx := context.Background()
	a := newAccount(t, repo, "parent")
	school, _, err := repo.UpsertSchool(ctx, &School{Name: "Centennial High"})
	if err != nil {
		t.Fatalf("upsert school: %v", err)
	}

	tests := []struct {
		name      string
		accountID int64
		student   NewStudent
		want      error
	}{
		{"grade too high", a.ID, NewStudent{SchoolID: school.ID, Grade: gradePtr(13)}, ErrInvalidStudent},
		{"grade too low", a.ID, NewStudent{SchoolID: school.ID, Grade: gradePtr(-2)}, ErrInvalidStudent},
		{"unknown school", a.ID, NewStudent{SchoolID: 999}, ErrNotFound},
		{"unknown account", 999, NewStudent{SchoolID: school.ID}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.AddStudent(ctx, tt.accountID, tt.student); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStudentLines(t *testing.T) {
	repo := testSetup(t)
	ctx := context.Background()

	a := newAccount(t, repo, "a")
	b := newAccount(t, repo, "b")
	c := newAccount(t, repo, "c")
	elem, _, _ := repo.UpsertSchool(ctx, &School{Name: "Pioneer Elementary"})
	high, _, _ := repo.UpsertSchool(ctx, &School{Name: "Centennial High"})

	add := func(accountID, schoolID int64, g *Grade) {
		t.Helper()
		if _, err := repo.AddStudent(ctx, accountID, NewStudent{SchoolID: schoolID, Grade: g}); err != nil {
			t.Fatalf("add student: %v", err)
		}
	}
	add(a.ID, elem.ID, gradePtr(5))
	add(a.ID, elem.ID, gradePtr(GradePreK))
	add(a.ID, high.ID, gradePtr(10))
	add(b.ID, elem.ID, nil)
	add(c.ID, high.ID, gradePtr(9))

	lines, err := repo.StudentLines(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("student lines: %v", err)
	}
	got := strings.Join(lines[a.ID], "; ")
	if got != "Centennial High 10th; Pioneer Elementary PK, 5th" {
		t.Errorf("lines[a] = %q", got)
	}
	if len(lines[b.ID]) != 0 {
		t.Errorf("ungraded students should be left out, got %q", lines[b.ID])
	}
	if _, ok := lines[c.ID]; ok {
		t.Error("accounts not asked for should not appear")
	}

	empty, err := repo.StudentLines(ctx)
	if err != nil || len(empty) != 0 {
		t.Errorf("no ids: lines = %v, err = %v", empty, err)
	}
}

const schoolsFile = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "Pioneer Elementary"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Virtual Academy"},
      "geometry": null
    }
  ]
}`

func TestImportExportSchools(t *testing.T) {
	repo := testSetup(t)
	ctx := context.Background()

	res, err := ImportSchools(ctx, repo, strings.NewReader(schoolsFile))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 2 || res.Updated != 0 {
		t.Errorf("result = %+v, want 2 created", res)
	}
	if res, err = ImportSchools(ctx, repo, strings.NewReader(schoolsFile)); err != nil || res.Updated != 2 {
		t.Errorf("reimport = %+v, %v; want 2 updated", res, err)
	}

	var buf bytes.Buffer
	if err := ExportSchools(ctx, repo, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want only the school with a boundary", len(fc.Features))
	}
	if name := fc.Features[0].Properties.MustString("name", ""); name != "Pioneer Elementary" {
		t.Errorf("name = %q", name)
	}
}

func TestImportSchoolsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "nope"},
		{"missing name", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":null}]}`},
		{"point geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"X"},"geometry":{"type":"Point","coordinates":[1,2]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testSetup(t)
			if _, err := ImportSchools(context.Background(), repo, strings.NewReader(tt.input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
