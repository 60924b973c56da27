package web

import (
	"net/http"

	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
	"github.com/evcraddock/advocate/internal/zone"
)

// handleListComments lists comments for moderation, filtered by ?state= and ?issue_id=.
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	var f comment.Filter
	if name := r.URL.Query().Get("state"); name != "" {
		st, err := comment.ParseState(name)
		if err != nil {
			apiError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.State = &st
	}
	var err error
	if f.IssueID, err = queryInt(r, "issue_id"); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.Limit = int(limit)

	comments, err := s.comments.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, nonNil(comments), http.StatusOK)
}

// handleModerateComment applies approve, deny, pend, feature or unfeature.
func (s *Server) handleModerateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var c *comment.Comment
	switch action := r.PathValue("action"); action {
	case "feature", "unfeature":
		c, err = s.comments.SetFeatured(r.Context(), id, action == "feature")
	default:
		t, perr := comment.ParseTransition(action)
		if perr != nil {
			apiError(w, perr.Error(), http.StatusNotFound)
			return
		}
		c, err = s.comments.Transition(r.Context(), id, t)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, c, http.StatusOK)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.comments.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.issues.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if issues == nil {
		issues = []*issue.Issue{}
	}
	apiJSON(w, issues, http.StatusOK)
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var n issue.NewIssue
	if err := decodeJSON(w, r, &n); err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := s.issues.Create(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, created, http.StatusCreated)
}

// handleIssueState activates or archives an issue.
func (s *Server) handleIssueState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var updated *issue.Issue
	switch r.PathValue("action") {
	case "activate":
		updated, err = s.issues.Activate(r.Context(), id)
	case "archive":
		updated, err = s.issues.Archive(r.Context(), id)
	default:
		apiError(w, "unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, updated, http.StatusOK)
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.zones.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if zones == nil {
		zones = []*zone.Zone{}
	}
	apiJSON(w, zones, http.StatusOK)
}

// handleReconcileAccount queues one account for geolocation reconciliation.
func (s *Server) handleReconcileAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.accounts.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if s.queue == nil {
		apiError(w, "job queue not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.queue.Enqueue(r.Context(), jobs.KindAccountReconcile, jobs.AccountPayload{AccountID: id}); err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, map[string]interface{}{"queued": true, "account_id": id}, http.StatusAccepted)
}
