package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
)

type requestLog struct {
	mu   sync.Mutex
	seen []string
}

func (l *requestLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, s)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seen...)
}

// fakeAPI serves a minimal admin API and records the requests it saw.
func fakeAPI(t *testing.T) *requestLog {
	t.Helper()
	log := &requestLog{}

	c := &comment.Comment{ID: 5, IssueID: 1, State: comment.StateApproved, Body: comment.Written{Content: "Fund it"}, CreatedAt: time.Now()}
	is := &issue.Issue{ID: 1, Name: "Library funding", State: issue.StateActive}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer adv_testkey1234567890" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		log.add(r.Method + " " + r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/comments":
			_ = json.NewEncoder(w).Encode([]*comment.Comment{c})
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/admin/comments/5/"):
			_ = json.NewEncoder(w).Encode(c)
		case r.Method == http.MethodPost && r.URL.Path == "/api/admin/comments/9/approve":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "transition not allowed"})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/admin/comments/5":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/issues":
			_ = json.NewEncoder(w).Encode([]*issue.Issue{is})
		case r.Method == http.MethodPost && r.URL.Path == "/api/admin/issues":
			var n issue.NewIssue
			if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(&issue.Issue{ID: 2, Name: n.Name, RecipientEmails: n.RecipientEmails, Date: n.Date, State: issue.StatePending})
		case r.Method == http.MethodPost && r.URL.Path == "/api/admin/issues/1/activate":
			_ = json.NewEncoder(w).Encode(is)
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		}
	}))
	t.Cleanup(srv.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADV_SERVER_URL", srv.URL)
	t.Setenv("ADV_API_KEY", "adv_testkey1234567890")

	return log
}

func TestCommentsList(t *testing.T) {
	reqs := fakeAPI(t)

	out, err := executeCommand("comments", "list", "--state", "approved", "--issue", "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Fund it") || !strings.Contains(out, "Total: 1 comments") {
		t.Errorf("output = %q", out)
	}
	if got := reqs.all(); len(got) != 1 || got[0] != "GET /api/admin/comments?issue_id=1&state=approved" {
		t.Errorf("requests = %v", got)
	}
}

func TestCommentsModerate(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"comments", "approve", "5"}, "POST /api/admin/comments/5/approve"},
		{[]string{"comments", "deny", "5"}, "POST /api/admin/comments/5/deny"},
		{[]string{"comments", "pend", "5"}, "POST /api/admin/comments/5/pend"},
		{[]string{"comments", "feature", "5"}, "POST /api/admin/comments/5/feature"},
		{[]string{"comments", "feature", "5", "--off"}, "POST /api/admin/comments/5/unfeature"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			reqs := fakeAPI(t)
			out, err := executeCommand(tt.args...)
			if err != nil {
				t.Fatalf("moderate: %v", err)
			}
			if !strings.Contains(out, "Comment #5: approved") {
				t.Errorf("output = %q", out)
			}
			if got := reqs.all(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("requests = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestCommentsModerateConflict(t *testing.T) {
	fakeAPI(t)

	_, err := executeCommand("comments", "approve", "9")
	if err == nil || !strings.Contains(err.Error(), "transition not allowed") {
		t.Fatalf("err = %v, want server message", err)
	}
}

func TestCommentsRemove(t *testing.T) {
	reqs := fakeAPI(t)

	out, err := executeCommand("comments", "rm", "5")
	if err != nil {
		t.Fatalf("rm: %v", err)
	}
	if !strings.Contains(out, "Removed comment #5") {
		t.Errorf("output = %q", out)
	}
	if got := reqs.all(); len(got) != 1 || got[0] != "DELETE /api/admin/comments/5" {
		t.Errorf("requests = %v", got)
	}
}

func TestIssuesListJSON(t *testing.T) {
	fakeAPI(t)

	out, err := executeCommand("issues", "list", "--format", "json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var issues []issue.Issue
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	if len(issues) != 1 || issues[0].State != issue.StateActive {
		t.Errorf("issues = %+v", issues)
	}
}

func TestIssuesCreateAndActivate(t *testing.T) {
	fakeAPI(t)

	out, err := executeCommand("issues", "create", "Bus routes",
		"--email", "board@example.org", "--email", "clerk@example.org", "--date", "2024-07-01")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, want := range []string{"Issue #2", "Bus routes", "pending", "Your Trustee", "board@example.org, clerk@example.org"} {
		if !strings.Contains(out, want) {
			t.Errorf("create output missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("issues", "activate", "1")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !strings.Contains(out, "Issue #1 is now active") {
		t.Errorf("activate output = %q", out)
	}

	if _, err := executeCommand("issues", "archive", "3"); err == nil {
		t.Error("expected error for unknown issue")
	}
}

func TestRemoteCommandsRequireValidKey(t *testing.T) {
	fakeAPI(t)
	t.Setenv("ADV_API_KEY", "adv_wrong")

	if _, err := executeCommand("issues", "list"); err == nil {
		t.Fatal("expected unauthorized error")
	}
}
