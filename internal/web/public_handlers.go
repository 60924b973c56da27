package web

import (
	"net/http"

	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
)

// publicListing is the response for public comment listings.
type publicListing struct {
	Issue    *issue.Issue       `json:"issue"`
	Comments []*comment.Comment `json:"comments"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Ping(r.Context()); err != nil {
		apiError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleActiveIssue(w http.ResponseWriter, r *http.Request) {
	active, err := s.issues.Active(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, active, http.StatusOK)
}

func listOptions(r *http.Request) (comment.ListOptions, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return comment.ListOptions{}, err
	}
	return comment.ListOptions{
		FeaturedFirst: r.URL.Query().Get("featured") == "true",
		Limit:         int(limit),
	}, nil
}

// handleActiveComments lists the public comments on the active issue.
func (s *Server) handleActiveComments(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	comments, active, err := s.comments.ListActive(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, publicListing{Issue: active, Comments: nonNil(comments)}, http.StatusOK)
}

func (s *Server) handleIssueComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}

	iss, err := s.issues.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	comments, err := s.comments.ListPublic(r.Context(), id, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	apiJSON(w, publicListing{Issue: iss, Comments: nonNil(comments)}, http.StatusOK)
}

func nonNil(c []*comment.Comment) []*comment.Comment {
	if c == nil {
		return []*comment.Comment{}
	}
	return c
}
