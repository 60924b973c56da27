// Package client provides an HTTP client for the advocate admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/zone"
)

// Client is an HTTP client for the advocate API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// CommentFilter selects comments for moderation listings.
type CommentFilter struct {
	State   string // pending, approved, denied, archived (empty = all)
	IssueID int64
	Limit   int
}

// ListComments returns comments matching the filter, newest first.
func (c *Client) ListComments(ctx context.Context, f CommentFilter) ([]*comment.Comment, error) {
	params := url.Values{}
	if f.State != "" {
		params.Set("state", f.State)
	}
	if f.IssueID > 0 {
		params.Set("issue_id", strconv.FormatInt(f.IssueID, 10))
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/api/admin/comments"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var comments []*comment.Comment
	if err := c.get(ctx, path, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// ModerateComment applies approve, deny, pend, feature or unfeature to a comment.
func (c *Client) ModerateComment(ctx context.Context, id int64, action string) (*comment.Comment, error) {
	var out comment.Comment
	if err := c.post(ctx, fmt.Sprintf("/api/admin/comments/%d/%s", id, url.PathEscape(action)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, id int64) error {
	return c.doDelete(ctx, fmt.Sprintf("/api/admin/comments/%d", id))
}

// ListIssues returns all issues, newest first.
func (c *Client) ListIssues(ctx context.Context) ([]*issue.Issue, error) {
	var issues []*issue.Issue
	if err := c.get(ctx, "/api/admin/issues", &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// CreateIssue adds a Pending issue.
func (c *Client) CreateIssue(ctx context.Context, n issue.NewIssue) (*issue.Issue, error) {
	var out issue.Issue
	if err := c.post(ctx, "/api/admin/issues", n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateIssue makes an issue the Active one.
func (c *Client) ActivateIssue(ctx context.Context, id int64) (*issue.Issue, error) {
	return c.issueAction(ctx, id, "activate")
}

// ArchiveIssue archives an issue.
func (c *Client) ArchiveIssue(ctx context.Context, id int64) (*issue.Issue, error) {
	return c.issueAction(ctx, id, "archive")
}

func (c *Client) issueAction(ctx context.Context, id int64, action string) (*issue.Issue, error) {
	var out issue.Issue
	if err := c.post(ctx, fmt.Sprintf("/api/admin/issues/%d/%s", id, action), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListZones returns all zones (without polygons).
func (c *Client) ListZones(ctx context.Context) ([]*zone.Zone, error) {
	var zones []*zone.Zone
	if err := c.get(ctx, "/api/admin/zones", &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

// ReconcileAccount queues one account for geolocation reconciliation.
func (c *Client) ReconcileAccount(ctx context.Context, id int64) error {
	return c.post(ctx, fmt.Sprintf("/api/admin/accounts/%d/reconcile", id), nil, nil)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// get performs a GET request and decodes the response.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

// post performs a POST request with an optional JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

// doDelete performs a DELETE request.
func (c *Client) doDelete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, nil)
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request, result interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing response body", "err", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := "server error: " + http.StatusText(resp.StatusCode)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		} else if text := strings.TrimSpace(string(respBody)); text != "" && len(text) < 200 {
			msg = text
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
