package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/evcraddock/advocate/internal/account"
)

type ctxKey int

const (
	userKey ctxKey = iota
	accountKey
)

// WithMember returns a context carrying the signed-in user and account.
func WithMember(ctx context.Context, u *account.User, a *account.Account) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, accountKey, a)
}

// UserFrom returns the signed-in user, or nil.
func UserFrom(ctx context.Context) *account.User {
	u, _ := ctx.Value(userKey).(*account.User)
	return u
}

// AccountFrom returns the signed-in member's account, or nil.
func AccountFrom(ctx context.Context) *account.Account {
	a, _ := ctx.Value(accountKey).(*account.Account)
	return a
}

// MemberStore loads the user and account behind a session.
type MemberStore interface {
	GetUser(ctx context.Context, id int64) (*account.User, error)
	GetByUserID(ctx context.Context, userID int64) (*account.Account, error)
}

// RequireSession is middleware that rejects requests without a valid member
// session and puts the member's user and account on the request context.
// Inactive users are treated as signed out.
func RequireSession(sessions *SessionStore, members MemberStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := sessions.Validate(r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				slog.Error("validating session", "err", err)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		u, err := members.GetUser(r.Context(), userID)
		if errors.Is(err, account.ErrNotFound) || (err == nil && !u.IsActive) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			slog.Error("loading session user", "err", err, "user_id", userID)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		a, err := members.GetByUserID(r.Context(), userID)
		if err != nil {
			slog.Error("loading session account", "err", err, "user_id", userID)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), u, a)))
	})
}

// rateLimiter tracks failed API key attempts per IP.
type rateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	window   time.Duration
	max      int
}

const (
	rateLimitWindow  = 1 * time.Minute
	rateLimitMaxFail = 10
)

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{attempts: make(map[string][]time.Time), window: window, max: max}
}

// prune drops attempts outside the window. Caller holds mu.
func (rl *rateLimiter) prune(ip string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	valid := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

// limited reports whether ip has used up its failures for the window.
func (rl *rateLimiter) limited(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(ip, time.Now())) >= rl.max
}

// recordFailure records a failed attempt.
func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	rl.attempts[ip] = append(rl.prune(ip, now), now)
}

// APIKeyAuth validates Bearer API keys for admin routes.
type APIKeyAuth struct {
	keys    *APIKeyStore
	limiter *rateLimiter
}

// NewAPIKeyAuth creates the admin key middleware with its own failure limiter.
func NewAPIKeyAuth(keys *APIKeyStore) *APIKeyAuth {
	return &APIKeyAuth{keys: keys, limiter: newRateLimiter(rateLimitWindow, rateLimitMaxFail)}
}

// Require is middleware that validates Bearer token auth.
// Returns 401 for missing/invalid keys, 429 for IPs with too many failures.
func (a *APIKeyAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if a.limiter.limited(ip) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.limiter.recordFailure(ip)
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		valid, err := a.keys.Validate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			slog.Error("validating api key", "err", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if !valid {
			a.limiter.recordFailure(ip)
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
