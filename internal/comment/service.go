package comment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
)

// ActiveIssueFinder resolves the issue currently open for comments.
type ActiveIssueFinder interface {
	Active(ctx context.Context) (*issue.Issue, error)
}

// Service implements comment submission and moderation.
type Service struct {
	repo   *Repository
	issues ActiveIssueFinder
	queue  jobs.Enqueuer
}

// NewService creates a comment service. Notification jobs are sent to queue;
// a nil queue disables them.
func NewService(repo *Repository, issues ActiveIssueFinder, queue jobs.Enqueuer) *Service {
	return &Service{repo: repo, issues: issues, queue: queue}
}

// Current returns the account's comment on the active issue, along with the issue.
func (s *Service) Current(ctx context.Context, accountID int64) (*Comment, *issue.Issue, error) {
	active, err := s.issues.Active(ctx)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.repo.GetByAccountIssue(ctx, accountID, active.ID)
	if err != nil {
		return nil, active, err
	}
	return c, active, nil
}

// Submit creates or edits the member's comment on the active issue.
//
// New comments start Pending. Editing an Approved or Denied comment, or
// resubmitting a Denied one, returns it to Pending for review. Comments by
// verified users are then approved immediately where the state allows it.
func (s *Service) Submit(ctx context.Context, a *account.Account, body Body) (*Comment, error) {
	active, err := s.issues.Active(ctx)
	if err != nil {
		return nil, err
	}

	if err := Validate(body); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByAccountIssue(ctx, a.ID, active.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var c *Comment
	var prev State
	if existing == nil {
		c = &Comment{AccountID: a.ID, IssueID: active.ID, Body: body, State: StatePending}
	} else {
		c = existing
		prev = existing.State
		changed := !sameBody(c.Body, body)
		c.Body = body
		if (changed && c.State == StateApproved) || c.State == StateDenied {
			if err := c.Apply(Pend); err != nil {
				return nil, err
			}
		}
	}

	if a.User != nil && a.User.IsVerified {
		if err := c.Apply(Approve); err != nil {
			if !errors.Is(err, ErrTransitionNotAllowed) {
				return nil, err
			}
			autoApproveSkipped(c)
		}
	}

	if existing == nil {
		err = s.repo.Insert(ctx, c)
	} else {
		err = s.repo.Update(ctx, c, prev)
	}
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, c)
	return c, nil
}

// autoApproveSkipped covers a verified author's comment that Approve cannot
// be applied to, such as one that is already Approved. The state is kept.
func autoApproveSkipped(c *Comment) {
	slog.Debug("auto-approve skipped", "comment_id", c.ID, "state", c.State.String())
}

// Approve moves a comment to Approved and queues the approval and publication emails.
func (s *Service) Approve(ctx context.Context, id int64) (*Comment, error) {
	return s.Transition(ctx, id, Approve)
}

// Deny moves a comment to Denied and queues the denial email.
func (s *Service) Deny(ctx context.Context, id int64) (*Comment, error) {
	return s.Transition(ctx, id, Deny)
}

// Pend returns a comment to Pending.
func (s *Service) Pend(ctx context.Context, id int64) (*Comment, error) {
	return s.Transition(ctx, id, Pend)
}

// Transition applies t to the comment with the given ID and persists it.
// Events are dispatched only after the new state is stored.
func (s *Service) Transition(ctx context.Context, id int64, t Transition) (*Comment, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prev := c.State
	if err := c.Apply(t); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, c, prev); err != nil {
		return nil, err
	}

	slog.Info("comment moderated", "comment_id", c.ID, "transition", t.String(), "from", prev.String(), "to", c.State.String())
	s.dispatch(ctx, c)
	return c, nil
}

// SetFeatured marks or unmarks a comment as featured.
func (s *Service) SetFeatured(ctx context.Context, id int64, featured bool) (*Comment, error) {
	if err := s.repo.SetFeatured(ctx, id, featured); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes any comment.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// DeleteOwned removes a comment belonging to the given account.
func (s *Service) DeleteOwned(ctx context.Context, id, accountID int64) error {
	return s.repo.DeleteOwned(ctx, id, accountID)
}

// ListPublic returns the public listing for an issue.
func (s *Service) ListPublic(ctx context.Context, issueID int64, opts ListOptions) ([]*Comment, error) {
	return s.repo.ListPublic(ctx, issueID, opts)
}

// ListActive returns the public listing for the active issue.
func (s *Service) ListActive(ctx context.Context, opts ListOptions) ([]*Comment, *issue.Issue, error) {
	active, err := s.issues.Active(ctx)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.repo.ListPublic(ctx, active.ID, opts)
	if err != nil {
		return nil, nil, err
	}
	return comments, active, nil
}

// List returns comments for moderation.
func (s *Service) List(ctx context.Context, f Filter) ([]*Comment, error) {
	return s.repo.List(ctx, f)
}

// dispatch enqueues the comment's pending events. Failures are logged; the
// state change has already been stored and is not undone.
func (s *Service) dispatch(ctx context.Context, c *Comment) {
	events := c.takeEvents()
	if s.queue == nil {
		return
	}
	for _, kind := range events {
		if err := s.queue.Enqueue(ctx, kind, jobs.CommentPayload{CommentID: c.ID}); err != nil {
			slog.Error("enqueueing comment event", "comment_id", c.ID, "kind", kind, "err", err)
		}
	}
}
