// Package notify sends the emails that follow comment moderation.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"text/template"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/email"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
)

// Notifier turns comment jobs into emails.
type Notifier struct {
	comments *comment.Repository
	accounts *account.Repository
	issues   *issue.Repository
	sender   email.Sender
	from     string
	fromAddr string
	baseURL  string
}

// New creates a notifier. from is the sender mailbox; published comments
// are sent from it under the member's display name.
func New(comments *comment.Repository, accounts *account.Repository, issues *issue.Repository,
	sender email.Sender, from, baseURL string) *Notifier {
	return &Notifier{
		comments: comments,
		accounts: accounts,
		issues:   issues,
		sender:   sender,
		from:     from,
		fromAddr: mailbox(from),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Register adds the notification handlers to mux.
func (n *Notifier) Register(mux *jobs.Mux) {
	mux.HandleFunc(jobs.KindCommentApproved, n.handle(comment.StateApproved, n.approved))
	mux.HandleFunc(jobs.KindCommentDenied, n.handle(comment.StateDenied, n.denied))
	mux.HandleFunc(jobs.KindCommentPublished, n.handle(comment.StateApproved, n.published))
}

type loaded struct {
	comment  *comment.Comment
	account  *account.Account
	issue    *issue.Issue
	students []string
}

type buildFunc func(l *loaded) (*email.Message, error)

// handle loads the comment and its context, skips the job when the comment
// is gone or has moved out of want, and sends the built message.
func (n *Notifier) handle(want comment.State, build buildFunc) func(context.Context, *jobs.Job) error {
	return func(ctx context.Context, job *jobs.Job) error {
		var p jobs.CommentPayload
		if err := job.Decode(&p); err != nil {
			return err
		}

		c, err := n.comments.Get(ctx, p.CommentID)
		if errors.Is(err, comment.ErrNotFound) {
			slog.Info("skipping notification for deleted comment", "kind", job.Kind, "comment_id", p.CommentID)
			return nil
		}
		if err != nil {
			return err
		}
		if c.State != want {
			slog.Info("skipping notification, comment state changed",
				"kind", job.Kind, "comment_id", c.ID, "state", c.State.String())
			return nil
		}

		a, err := n.accounts.Get(ctx, c.AccountID)
		if err != nil {
			return err
		}
		i, err := n.issues.Get(ctx, c.IssueID)
		if err != nil {
			return err
		}

		students, err := n.accounts.StudentLines(ctx, a.ID)
		if err != nil {
			return err
		}

		msg, err := build(&loaded{comment: c, account: a, issue: i, students: students[a.ID]})
		if err != nil {
			return jobs.Permanent(err)
		}
		if msg == nil {
			return nil
		}

		if err := n.sender.Send(ctx, *msg); err != nil {
			return fmt.Errorf("sending %s email: %w", job.Kind, err)
		}
		slog.Info("notification sent", "kind", job.Kind, "comment_id", c.ID, "to", strings.Join(msg.Recipients(), ", "))
		return nil
	}
}

func (n *Notifier) memberEmail(l *loaded) string {
	if l.account.User == nil {
		return ""
	}
	return l.account.User.Email
}

func (n *Notifier) approved(l *loaded) (*email.Message, error) {
	to := n.memberEmail(l)
	if to == "" {
		slog.Warn("member has no email", "account_id", l.account.ID)
		return nil, nil
	}
	body, err := render(approvedTmpl, memberData{
		Name:      l.account.Name,
		Issue:     l.issue.Name,
		Recipient: l.issue.RecipientLabel(),
		Public:    l.account.IsPublic,
		URL:       n.baseURL + "/api/issues/" + fmt.Sprint(l.issue.ID) + "/comments",
	})
	if err != nil {
		return nil, err
	}
	return &email.Message{From: n.from, To: []string{to}, Subject: "Comment Approved!", Body: body}, nil
}

func (n *Notifier) denied(l *loaded) (*email.Message, error) {
	to := n.memberEmail(l)
	if to == "" {
		slog.Warn("member has no email", "account_id", l.account.ID)
		return nil, nil
	}
	body, err := render(deniedTmpl, memberData{
		Name:  l.account.Name,
		Issue: l.issue.Name,
		URL:   n.baseURL + "/api/me/comment",
	})
	if err != nil {
		return nil, err
	}
	return &email.Message{From: n.from, To: []string{to}, Subject: "Comment Denied", Body: body}, nil
}

func (n *Notifier) published(l *loaded) (*email.Message, error) {
	if len(l.issue.RecipientEmails) == 0 {
		slog.Warn("issue has no recipients", "issue_id", l.issue.ID)
		return nil, nil
	}

	content := comment.Text(l.comment.Body)
	if content == "" {
		content = fmt.Sprintf("(%s comment)", l.comment.Body.Kind())
	}

	body, err := render(publishedTmpl, publishedData{
		Recipient: l.issue.RecipientLabel(),
		Content:   content,
		Name:      l.account.Name,
		Location:  l.account.AddressRaw,
		Students:  l.students,
	})
	if err != nil {
		return nil, err
	}

	msg := &email.Message{
		From:    email.FromName(l.account.Name+" (via Advocate)", n.fromAddr),
		To:      l.issue.RecipientEmails,
		Subject: l.issue.Name,
		Body:    body,
	}
	if cc := n.memberEmail(l); cc != "" {
		msg.Cc = []string{cc}
	}
	return msg, nil
}

// mailbox strips any display name from addr.
func mailbox(addr string) string {
	if a, err := mail.ParseAddress(addr); err == nil {
		return a.Address
	}
	return addr
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
