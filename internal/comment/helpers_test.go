package comment

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/db"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/jobs"
)

type fixture struct {
	db       *sql.DB
	repo     *Repository
	accounts *account.Repository
	issues   *issue.Repository
	queue    *jobs.MemoryQueue
	svc      *Service
}

func testSetup(t *testing.T) *fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	f := &fixture{
		db:       d,
		repo:     NewRepository(d),
		accounts: account.NewRepository(d),
		issues:   issue.NewRepository(d),
		queue:    jobs.NewMemoryQueue(100, 3),
	}
	f.svc = NewService(f.repo, f.issues, f.queue)
	return f
}

// member creates a user and account. Public members appear in listings.
func (f *fixture) member(t *testing.T, username string, verified, public bool) *account.Account {
	t.Helper()
	ctx := context.Background()
	u, err := f.accounts.UpsertUser(ctx, account.Identity{Username: username, Name: username, Email: username + "@example.com", Verified: verified})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	a, _, err := f.accounts.EnsureAccount(ctx, u)
	if err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if public {
		a, _, err = f.accounts.UpdateProfile(ctx, a.ID, account.Profile{Name: username, IsPublic: true})
		if err != nil {
			t.Fatalf("update profile: %v", err)
		}
	}
	return a
}

func (f *fixture) activeIssue(t *testing.T, name string) *issue.Issue {
	t.Helper()
	ctx := context.Background()
	i, err := f.issues.Create(ctx, issue.NewIssue{Name: name, RecipientEmails: []string{"board@example.org"}})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	i, err = f.issues.Activate(ctx, i.ID)
	if err != nil {
		t.Fatalf("activate issue: %v", err)
	}
	return i
}

func (f *fixture) insert(t *testing.T, accountID, issueID int64, text string, state State) *Comment {
	t.Helper()
	c := &Comment{AccountID: accountID, IssueID: issueID, Body: Written{Content: text}, State: state}
	if err := f.repo.Insert(context.Background(), c); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	return c
}

// queuedKinds drains the queue and returns the job kinds in order.
func (f *fixture) queuedKinds() []string {
	var kinds []string
	for _, job := range f.queue.Pending() {
		kinds = append(kinds, job.Kind)
	}
	return kinds
}

func equalKinds(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
