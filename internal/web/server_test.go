package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evcraddock/advocate/internal/auth"
	"github.com/evcraddock/advocate/internal/db"
	"github.com/evcraddock/advocate/internal/jobs"
)

type testEnv struct {
	srv      *Server
	db       *sql.DB
	queue    *jobs.MemoryQueue
	verifier *auth.Verifier
	adminKey string
}

func testServer(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if cerr := d.Close(); cerr != nil {
			t.Errorf("close db: %v", cerr)
		}
	})

	verifier, err := auth.NewVerifier("test-secret", "https://id.example.com/", "advocate")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	queue := jobs.NewMemoryQueue(100, 3)

	srv, err := NewServer(Config{DB: d, Queue: queue, Verifier: verifier})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	rawKey, _, err := srv.apiKeys.Create(context.Background(), "test")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}

	return &testEnv{srv: srv, db: d, queue: queue, verifier: verifier, adminKey: rawKey}
}

// request performs a request with an optional JSON body, bearer key and cookie.
func (e *testEnv) request(t *testing.T, method, path, key string, cookie *http.Cookie, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	reqBody := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	r := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		r.Header.Set("Authorization", "Bearer "+key)
	}
	if cookie != nil {
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	return w
}

func (e *testEnv) admin(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.request(t, method, path, e.adminKey, nil, body)
}

func (e *testEnv) token(t *testing.T, sub string, verified bool) string {
	t.Helper()
	raw, err := e.verifier.Sign(auth.Claims{
		Name:             "Member " + sub,
		Email:            sub + "@example.com",
		EmailVerified:    verified,
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

// login runs the callback and returns the session cookie.
func (e *testEnv) login(t *testing.T, sub string, verified bool) *http.Cookie {
	t.Helper()
	w := e.request(t, "POST", "/auth/callback", "", nil, map[string]string{"id_token": e.token(t, sub, verified)})
	if w.Code != http.StatusOK && w.Code != http.StatusCreated {
		t.Fatalf("login %s: status %d: %s", sub, w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "adv_session" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

// activeIssue creates and activates an issue through the admin API.
func (e *testEnv) activeIssue(t *testing.T, name string) int64 {
	t.Helper()
	w := e.admin(t, "POST", "/api/admin/issues", map[string]interface{}{
		"name":             name,
		"recipient_emails": []string{"board@example.org"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create issue: status %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)

	w = e.admin(t, "POST", "/api/admin/issues/"+itoa(created.ID)+"/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate issue: status %d: %s", w.Code, w.Body.String())
	}
	return created.ID
}

func (e *testEnv) queuedKinds() []string {
	var kinds []string
	for _, j := range e.queue.Pending() {
		kinds = append(kinds, j.Kind)
	}
	return kinds
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestHealth(t *testing.T) {
	e := testServer(t)
	w := e.request(t, "GET", "/health", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestNewServerRequiresDeps(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error without database")
	}
}
