package web

import (
	"net/http"
	"testing"

	"github.com/evcraddock/advocate/internal/jobs"
)

func TestAdminRoutesRequireKey(t *testing.T) {
	e := testServer(t)

	paths := []string{"/api/admin/comments", "/api/admin/issues", "/api/admin/zones"}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			if w := e.request(t, "GET", p, "", nil, nil); w.Code != http.StatusUnauthorized {
				t.Errorf("no key status = %d, want 401", w.Code)
			}
			if w := e.request(t, "GET", p, "adv_invalid", nil, nil); w.Code != http.StatusUnauthorized {
				t.Errorf("bad key status = %d, want 401", w.Code)
			}
			if w := e.admin(t, "GET", p, nil); w.Code != http.StatusOK {
				t.Errorf("valid key status = %d, want 200", w.Code)
			}
		})
	}
}

func TestIssueLifecycle(t *testing.T) {
	e := testServer(t)

	w := e.admin(t, "POST", "/api/admin/issues", map[string]interface{}{"name": "", "recipient_emails": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank name status = %d, want 400", w.Code)
	}

	if w := e.request(t, "GET", "/api/issues/active", "", nil, nil); w.Code != http.StatusConflict {
		t.Fatalf("no active issue status = %d, want 409", w.Code)
	}

	first := e.activeIssue(t, "First")
	second := e.activeIssue(t, "Second")

	w = e.request(t, "GET", "/api/issues/active", "", nil, nil)
	var active struct {
		ID    int64  `json:"id"`
		State string `json:"state"`
	}
	decode(t, w, &active)
	if active.ID != second || active.State != "active" {
		t.Errorf("active = %+v, want id %d active", active, second)
	}

	w = e.admin(t, "GET", "/api/admin/issues", nil)
	var issues []struct {
		ID    int64  `json:"id"`
		State string `json:"state"`
	}
	decode(t, w, &issues)
	states := map[int64]string{}
	for _, i := range issues {
		states[i.ID] = i.State
	}
	if states[first] != "archived" || states[second] != "active" {
		t.Errorf("states = %v", states)
	}

	if w := e.admin(t, "POST", "/api/admin/issues/"+itoa(first)+"/activate", nil); w.Code != http.StatusConflict {
		t.Errorf("activate archived status = %d, want 409", w.Code)
	}
	if w := e.admin(t, "POST", "/api/admin/issues/999/archive", nil); w.Code != http.StatusNotFound {
		t.Errorf("archive missing status = %d, want 404", w.Code)
	}
	if w := e.admin(t, "POST", "/api/admin/issues/"+itoa(second)+"/explode", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", w.Code)
	}
}

func TestModeration(t *testing.T) {
	e := testServer(t)
	issueID := e.activeIssue(t, "Budget")
	cookie := e.login(t, "auth0|1", false)

	// Public profile so the approved comment is listed.
	if w := e.request(t, "PUT", "/api/me/account", "", cookie, map[string]interface{}{"name": "Ada", "is_public": true}); w.Code != http.StatusOK {
		t.Fatalf("update profile status = %d", w.Code)
	}

	w := e.request(t, "POST", "/api/me/comment", "", cookie, map[string]string{"content": "Fund music."})
	var c commentJSON
	decode(t, w, &c)
	e.queue.Pending()

	w = e.admin(t, "GET", "/api/admin/comments?state=pending&issue_id="+itoa(issueID), nil)
	var pending []commentJSON
	decode(t, w, &pending)
	if len(pending) != 1 || pending[0].ID != c.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if w := e.admin(t, "GET", "/api/admin/comments?state=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad state filter status = %d, want 400", w.Code)
	}

	base := "/api/admin/comments/" + itoa(c.ID)

	// Pending cannot be pended.
	if w := e.admin(t, "POST", base+"/pend", nil); w.Code != http.StatusConflict {
		t.Errorf("pend pending status = %d, want 409", w.Code)
	}

	w = e.admin(t, "POST", base+"/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &c)
	if c.State != "approved" {
		t.Errorf("state = %q, want approved", c.State)
	}
	kinds := e.queuedKinds()
	if len(kinds) != 2 || kinds[0] != jobs.KindCommentApproved || kinds[1] != jobs.KindCommentPublished {
		t.Errorf("queued = %v", kinds)
	}

	if w := e.admin(t, "POST", base+"/approve", nil); w.Code != http.StatusConflict {
		t.Errorf("double approve status = %d, want 409", w.Code)
	}

	if w := e.admin(t, "POST", base+"/feature", nil); w.Code != http.StatusOK {
		t.Errorf("feature status = %d", w.Code)
	}

	w = e.request(t, "GET", "/api/comments?featured=true", "", nil, nil)
	var listing struct {
		Comments []commentJSON `json:"comments"`
	}
	decode(t, w, &listing)
	if len(listing.Comments) != 1 || !listing.Comments[0].IsFeatured {
		t.Errorf("public listing = %+v", listing.Comments)
	}

	w = e.admin(t, "POST", base+"/deny", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deny status = %d", w.Code)
	}
	if kinds := e.queuedKinds(); len(kinds) != 1 || kinds[0] != jobs.KindCommentDenied {
		t.Errorf("queued = %v", kinds)
	}

	w = e.request(t, "GET", "/api/issues/"+itoa(issueID)+"/comments", "", nil, nil)
	decode(t, w, &listing)
	if len(listing.Comments) != 0 {
		t.Errorf("denied comment still listed: %+v", listing.Comments)
	}

	if w := e.admin(t, "POST", base+"/smite", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", w.Code)
	}
	if w := e.admin(t, "DELETE", base, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := e.admin(t, "POST", base+"/approve", nil); w.Code != http.StatusNotFound {
		t.Errorf("approve deleted status = %d, want 404", w.Code)
	}
}

func TestReconcileAccountEndpoint(t *testing.T) {
	e := testServer(t)
	cookie := e.login(t, "auth0|1", false)

	w := e.request(t, "GET", "/api/me/account", "", cookie, nil)
	var me memberResponse
	decode(t, w, &me)

	if w := e.admin(t, "POST", "/api/admin/accounts/"+itoa(me.Account.ID)+"/reconcile", nil); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if kinds := e.queuedKinds(); len(kinds) != 1 || kinds[0] != jobs.KindAccountReconcile {
		t.Errorf("queued = %v", kinds)
	}
	if w := e.admin(t, "POST", "/api/admin/accounts/999/reconcile", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing account status = %d, want 404", w.Code)
	}
}
