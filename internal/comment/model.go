// Package comment provides member comments on issues, their moderation
// lifecycle and data access.
package comment

import (
	"encoding/json"
	"time"

	"github.com/evcraddock/advocate/internal/jobs"
)

// Comment is a member's comment on an issue. A member has at most one
// comment per issue.
type Comment struct {
	ID         int64
	AccountID  int64
	IssueID    int64
	Body       Body
	State      State
	IsFeatured bool
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// AuthorName is filled in by listings.
	AuthorName     string
	// AuthorStudents is filled in by the public listing, one line per school.
	AuthorStudents []string

	events []string
}

// Apply performs a moderation transition. On success the resulting
// notification events are recorded for dispatch after the comment is saved.
// On failure the comment is unchanged.
func (c *Comment) Apply(t Transition) error {
	next, err := Next(c.State, t)
	if err != nil {
		return err
	}
	c.State = next
	switch t {
	case Approve:
		c.events = append(c.events, jobs.KindCommentApproved, jobs.KindCommentPublished)
	case Deny:
		c.events = append(c.events, jobs.KindCommentDenied)
	}
	return nil
}

// takeEvents returns and clears the pending events.
func (c *Comment) takeEvents() []string {
	events := c.events
	c.events = nil
	return events
}

type commentJSON struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	IssueID    int64     `json:"issue_id"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content,omitempty"`
	MediaRef   string    `json:"media_ref,omitempty"`
	State      State     `json:"state"`
	IsFeatured bool      `json:"is_featured"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	AuthorStudents []string `json:"author_students,omitempty"`
}

// MarshalJSON flattens the body into kind, content and media_ref fields.
func (c *Comment) MarshalJSON() ([]byte, error) {
	out := commentJSON{
		ID:         c.ID,
		AccountID:  c.AccountID,
		IssueID:    c.IssueID,
		State:      c.State,
		IsFeatured: c.IsFeatured,
		AuthorName: c.AuthorName,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,

		AuthorStudents: c.AuthorStudents,
	}
	if c.Body != nil {
		out.Kind = c.Body.Kind()
		out.Content, out.MediaRef = columns(c.Body)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var in commentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	body, err := NewBody(in.Kind, in.Content, in.MediaRef)
	if err != nil {
		return err
	}
	*c = Comment{
		ID:         in.ID,
		AccountID:  in.AccountID,
		IssueID:    in.IssueID,
		Body:       body,
		State:      in.State,
		IsFeatured: in.IsFeatured,
		AuthorName: in.AuthorName,
		CreatedAt:  in.CreatedAt,
		UpdatedAt:  in.UpdatedAt,

		AuthorStudents: in.AuthorStudents,
	}
	return nil
}
