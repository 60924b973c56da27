package web

import (
	"errors"
	"net/http"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/auth"
	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
)

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	apiJSON(w, memberResponse{User: auth.UserFrom(r.Context()), Account: auth.AccountFrom(r.Context())}, http.StatusOK)
}

// handleUpdateAccount saves the member's profile. A changed address queues
// the account for geolocation reconciliation.
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var p account.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	a := auth.AccountFrom(r.Context())
	updated, addressChanged, err := s.accounts.UpdateProfile(r.Context(), a.ID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if addressChanged {
		s.enqueue(r.Context(), jobs.KindAccountReconcile, jobs.AccountPayload{AccountID: updated.ID})
	}

	apiJSON(w, memberResponse{User: updated.User, Account: updated}, http.StatusOK)
}

type commentResponse struct {
	Issue   *issue.Issue     `json:"issue"`
	Comment *comment.Comment `json:"comment"`
}

// handleGetComment returns the member's comment on the active issue, or a
// null comment when none has been written yet.
func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFrom(r.Context())
	c, active, err := s.comments.Current(r.Context(), a.ID)
	if err != nil && !errors.Is(err, comment.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	apiJSON(w, commentResponse{Issue: active, Comment: c}, http.StatusOK)
}

type submitRequest struct {
	Kind     comment.Kind `json:"kind"`
	Content  string       `json:"content"`
	MediaRef string       `json:"media_ref"`
}

func (s *Server) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, err := comment.NewBody(req.Kind, req.Content, req.MediaRef)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := s.comments.Submit(r.Context(), auth.AccountFrom(r.Context()), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, c, http.StatusOK)
}

func (s *Server) handleDeleteOwnComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.comments.DeleteOwned(r.Context(), id, auth.AccountFrom(r.Context()).ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
