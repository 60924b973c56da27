// Package web provides the JSON HTTP API for members, the public listing and admins.
package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/auth"
	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
	"github.com/evcraddock/advocate/internal/logging"
	"github.com/evcraddock/advocate/internal/zone"
)

// Config holds the server's collaborators and settings.
type Config struct {
	DB            *sql.DB
	Queue         jobs.Enqueuer // nil disables background jobs
	Verifier      *auth.Verifier
	SecureCookies bool
}

// Server is the API HTTP server.
type Server struct {
	accounts *account.Repository
	issues   *issue.Repository
	zones    *zone.Repository
	comments *comment.Service
	sessions *auth.SessionStore
	apiKeys  *auth.APIKeyStore
	keyAuth  *auth.APIKeyAuth
	verifier *auth.Verifier
	queue    jobs.Enqueuer
	handler  http.Handler
}

// NewServer creates an API server backed by cfg.DB.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("identity verifier is required")
	}

	issues := issue.NewRepository(cfg.DB)
	apiKeys := auth.NewAPIKeyStore(cfg.DB)

	s := &Server{
		accounts: account.NewRepository(cfg.DB),
		issues:   issues,
		zones:    zone.NewRepository(cfg.DB),
		comments: comment.NewService(comment.NewRepository(cfg.DB), issues, cfg.Queue),
		sessions: auth.NewSessionStore(cfg.DB, cfg.SecureCookies),
		apiKeys:  apiKeys,
		keyAuth:  auth.NewAPIKeyAuth(apiKeys),
		verifier: cfg.Verifier,
		queue:    cfg.Queue,
	}
	s.handler = logging.RequestLogger(s.routes())
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/issues/active", s.handleActiveIssue)
	mux.HandleFunc("GET /api/comments", s.handleActiveComments)
	mux.HandleFunc("GET /api/issues/{id}/comments", s.handleIssueComments)
	mux.HandleFunc("GET /api/schools", s.handleListSchools)
	mux.HandleFunc("POST /auth/callback", s.handleCallback)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	// Member (session)
	mux.Handle("GET /api/me/account", s.member(s.handleGetAccount))
	mux.Handle("PUT /api/me/account", s.member(s.handleUpdateAccount))
	mux.Handle("GET /api/me/comment", s.member(s.handleGetComment))
	mux.Handle("POST /api/me/comment", s.member(s.handleSubmitComment))
	mux.Handle("DELETE /api/me/comments/{id}", s.member(s.handleDeleteOwnComment))
	mux.Handle("GET /api/me/students", s.member(s.handleListStudents))
	mux.Handle("POST /api/me/students", s.member(s.handleAddStudent))
	mux.Handle("DELETE /api/me/students/{id}", s.member(s.handleDeleteStudent))

	// Admin (API key)
	mux.Handle("GET /api/admin/comments", s.admin(s.handleListComments))
	mux.Handle("POST /api/admin/comments/{id}/{action}", s.admin(s.handleModerateComment))
	mux.Handle("DELETE /api/admin/comments/{id}", s.admin(s.handleDeleteComment))
	mux.Handle("GET /api/admin/issues", s.admin(s.handleListIssues))
	mux.Handle("POST /api/admin/issues", s.admin(s.handleCreateIssue))
	mux.Handle("POST /api/admin/issues/{id}/{action}", s.admin(s.handleIssueState))
	mux.Handle("GET /api/admin/zones", s.admin(s.handleListZones))
	mux.Handle("POST /api/admin/accounts/{id}/reconcile", s.admin(s.handleReconcileAccount))

	return mux
}

func (s *Server) member(h http.HandlerFunc) http.Handler {
	return auth.RequireSession(s.sessions, s.accounts, h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.keyAuth.Require(h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting api server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down api server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// enqueue sends a background job, logging failures.
func (s *Server) enqueue(ctx context.Context, kind string, payload interface{}) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, kind, payload); err != nil {
		slog.Error("enqueueing job", "kind", kind, "err", err)
	}
}
