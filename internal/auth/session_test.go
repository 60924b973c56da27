package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return d
}

// testMember creates a user with an account and returns both.
func testMember(t *testing.T, d *sql.DB, username string) (*account.User, *account.Account) {
	t.Helper()
	repo := account.NewRepository(d)
	u, err := repo.UpsertUser(context.Background(), account.Identity{Username: username, Name: "Member " + username})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	a, _, err := repo.EnsureAccount(context.Background(), u)
	if err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	return u, a
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("expected cookie named %q", cookieName)
	return nil
}

func TestSessionCreateAndValidate(t *testing.T) {
	d := testDB(t)
	store := NewSessionStore(d, true)
	u, _ := testMember(t, d, "auth0|1")

	w := httptest.NewRecorder()
	if err := store.Create(context.Background(), w, u.ID); err != nil {
		t.Fatalf("create: %v", err)
	}

	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly || !cookie.Secure {
		t.Errorf("cookie flags: httpOnly=%v secure=%v", cookie.HttpOnly, cookie.Secure)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)

	userID, err := store.Validate(r)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != u.ID {
		t.Errorf("user id = %d, want %d", userID, u.ID)
	}
}

func TestSessionValidateNoCookie(t *testing.T) {
	store := NewSessionStore(testDB(t), false)

	r := httptest.NewRequest("GET", "/", nil)
	if _, err := store.Validate(r); err != ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestSessionValidateInvalidCookie(t *testing.T) {
	store := NewSessionStore(testDB(t), false)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: cookieName, Value: "bogus"})
	if _, err := store.Validate(r); err != ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestSessionExpired(t *testing.T) {
	d := testDB(t)
	store := NewSessionStore(d, false)
	u, _ := testMember(t, d, "auth0|1")

	if _, err := d.Exec("INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		"old", u.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: cookieName, Value: "old"})
	if _, err := store.Validate(r); err == nil {
		t.Fatal("expected error for expired session")
	}

	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = 'old'").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Error("expected expired session to be deleted")
	}
}

func TestSessionDestroy(t *testing.T) {
	d := testDB(t)
	store := NewSessionStore(d, false)
	u, _ := testMember(t, d, "auth0|1")

	w := httptest.NewRecorder()
	if err := store.Create(context.Background(), w, u.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	cookie := sessionCookie(t, w)

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.AddCookie(cookie)
	w2 := httptest.NewRecorder()
	if err := store.Destroy(w2, r); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(cookie)
	if _, err := store.Validate(r2); err == nil {
		t.Fatal("expected session to be invalid after destroy")
	}
}

func TestSessionCleanup(t *testing.T) {
	d := testDB(t)
	store := NewSessionStore(d, false)
	u, _ := testMember(t, d, "auth0|1")

	if _, err := d.Exec("INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?), (?, ?, ?)",
		"old", u.ID, time.Now().Add(-time.Hour),
		"new", u.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := store.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d sessions, want 1", n)
	}
}
