package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/auth"
)

type callbackRequest struct {
	IDToken string `json:"id_token"`
}

type memberResponse struct {
	User    *account.User    `json:"user"`
	Account *account.Account `json:"account"`
}

// handleCallback exchanges an identity-provider token for a session.
// The user is refreshed from the claims and the account is created on first login.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		apiError(w, "id_token is required", http.StatusBadRequest)
		return
	}

	claims, err := s.verifier.Verify(req.IDToken)
	if err != nil {
		slog.Warn("identity token rejected", "err", err)
		apiError(w, "invalid identity token", http.StatusUnauthorized)
		return
	}

	u, err := s.accounts.UpsertUser(r.Context(), claims.Identity())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !u.IsActive {
		apiError(w, "account disabled", http.StatusForbidden)
		return
	}

	a, created, err := s.accounts.EnsureAccount(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created {
		slog.Info("account created", "account_id", a.ID, "user_id", u.ID)
	}

	if err := s.sessions.Create(r.Context(), w, u.ID); err != nil {
		writeError(w, r, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	apiJSON(w, memberResponse{User: u, Account: a}, code)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(w, r); err != nil && !errors.Is(err, auth.ErrNoSession) {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
