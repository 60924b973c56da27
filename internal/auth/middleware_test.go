package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evcraddock/advocate/internal/account"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	d := testDB(t)
	handler := RequireSession(NewSessionStore(d, false), account.NewRepository(d), okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/me/account", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireSessionLoadsMember(t *testing.T) {
	d := testDB(t)
	sessions := NewSessionStore(d, false)
	accounts := account.NewRepository(d)
	u, a := testMember(t, d, "auth0|1")

	w := httptest.NewRecorder()
	if err := sessions.Create(context.Background(), w, u.ID); err != nil {
		t.Fatalf("create session: %v", err)
	}

	var gotUser *account.User
	var gotAccount *account.Account
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserFrom(r.Context())
		gotAccount = AccountFrom(r.Context())
	})

	r := httptest.NewRequest("GET", "/api/me/account", nil)
	r.AddCookie(sessionCookie(t, w))
	RequireSession(sessions, accounts, inner).ServeHTTP(httptest.NewRecorder(), r)

	if gotUser == nil || gotUser.ID != u.ID {
		t.Fatalf("user = %+v, want id %d", gotUser, u.ID)
	}
	if gotAccount == nil || gotAccount.ID != a.ID {
		t.Fatalf("account = %+v, want id %d", gotAccount, a.ID)
	}
}

func TestRequireSessionRejectsInactive(t *testing.T) {
	d := testDB(t)
	sessions := NewSessionStore(d, false)
	accounts := account.NewRepository(d)
	u, _ := testMember(t, d, "auth0|1")

	w := httptest.NewRecorder()
	if err := sessions.Create(context.Background(), w, u.ID); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := accounts.SetUserActive(context.Background(), u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	r := httptest.NewRequest("GET", "/api/me/account", nil)
	r.AddCookie(sessionCookie(t, w))
	w2 := httptest.NewRecorder()
	RequireSession(sessions, accounts, okHandler()).ServeHTTP(w2, r)

	if w2.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w2.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	store := NewAPIKeyStore(testDB(t))
	rawKey, _, err := store.Create(context.Background(), "admin")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	handler := NewAPIKeyAuth(store).Require(okHandler())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer adv_nope", http.StatusUnauthorized},
		{"valid", "Bearer " + rawKey, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/admin/comments", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyAuthRateLimitsFailuresOnly(t *testing.T) {
	store := NewAPIKeyStore(testDB(t))
	rawKey, _, err := store.Create(context.Background(), "admin")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	handler := NewAPIKeyAuth(store).Require(okHandler())

	do := func(key string) int {
		r := httptest.NewRequest("GET", "/api/admin/comments", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("Authorization", "Bearer "+key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	// Successful requests never count against the limit.
	for i := 0; i < rateLimitMaxFail*2; i++ {
		if code := do(rawKey); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, code)
		}
	}

	for i := 0; i < rateLimitMaxFail; i++ {
		if code := do("adv_wrong"); code != http.StatusUnauthorized {
			t.Fatalf("failure %d: status = %d", i, code)
		}
	}

	if code := do(rawKey); code != http.StatusTooManyRequests {
		t.Errorf("status after limit = %d, want %d", code, http.StatusTooManyRequests)
	}
}
