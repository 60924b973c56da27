package comment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/db"
)

var (
	// ErrNotFound is returned when a comment does not exist.
	ErrNotFound = errors.New("comment not found")
	// ErrAlreadyExists is returned when the account already has a comment on the issue.
	ErrAlreadyExists = errors.New("comment already exists for this issue")
	// ErrConflict is returned when a comment changed between read and write.
	ErrConflict = errors.New("comment was modified concurrently")
)

// Repository provides data access for comments.
type Repository struct {
	db       *sql.DB
	accounts *account.Repository
}

// NewRepository creates a comment repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, accounts: account.NewRepository(db)}
}

const selectColumns = `c.id, c.account_id, c.issue_id, c.kind, c.content, c.media_ref, c.state, c.is_featured,
	c.created_at, c.updated_at, a.name`

const fromComments = `comments c JOIN accounts a ON a.id = c.account_id`

func scanComment(row interface{ Scan(...interface{}) error }) (*Comment, error) {
	var c Comment
	var kind Kind
	var content, mediaRef string
	if err := row.Scan(&c.ID, &c.AccountID, &c.IssueID, &kind, &content, &mediaRef, &c.State, &c.IsFeatured,
		&c.CreatedAt, &c.UpdatedAt, &c.AuthorName); err != nil {
		return nil, err
	}
	body, err := NewBody(kind, content, mediaRef)
	if err != nil {
		return nil, err
	}
	c.Body = body
	return &c, nil
}

// Insert stores a new comment and fills in its ID and timestamps. A second
// comment by the same account on the same issue fails with ErrAlreadyExists
// and leaves the existing row untouched.
func (r *Repository) Insert(ctx context.Context, c *Comment) error {
	if c.Body == nil {
		return fmt.Errorf("comment body is required")
	}
	content, mediaRef := columns(c.Body)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (account_id, issue_id, kind, content, media_ref, state, is_featured)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.AccountID, c.IssueID, c.Body.Kind(), content, mediaRef, c.State, c.IsFeatured,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting insert id: %w", err)
	}

	saved, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("reading back comment: %w", err)
	}
	events := c.events
	*c = *saved
	c.events = events
	return nil
}

// Update saves body, state and featured flag. prev is the state the caller
// read; if the stored state no longer matches, ErrConflict is returned.
func (r *Repository) Update(ctx context.Context, c *Comment, prev State) error {
	if c.Body == nil {
		return fmt.Errorf("comment body is required")
	}
	content, mediaRef := columns(c.Body)

	result, err := r.db.ExecContext(ctx,
		`UPDATE comments SET kind = ?, content = ?, media_ref = ?, state = ?, is_featured = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?`,
		c.Body.Kind(), content, mediaRef, c.State, c.IsFeatured, c.ID, prev,
	)
	if err != nil {
		return fmt.Errorf("updating comment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, c.ID); err != nil {
			return err
		}
		return ErrConflict
	}

	saved, err := r.Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("reading back comment: %w", err)
	}
	c.UpdatedAt = saved.UpdatedAt
	return nil
}

// Get returns a comment by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Comment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM "+fromComments+" WHERE c.id = ?", id)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying comment %d: %w", id, err)
	}
	return c, nil
}

// GetByAccountIssue returns the account's comment on an issue.
func (r *Repository) GetByAccountIssue(ctx context.Context, accountID, issueID int64) (*Comment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM "+fromComments+" WHERE c.account_id = ? AND c.issue_id = ?",
		accountID, issueID)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment by account %d on issue %d: %w", accountID, issueID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying comment: %w", err)
	}
	return c, nil
}

// ListOptions controls public listings.
type ListOptions struct {
	FeaturedFirst bool
	Limit         int
}

// ListPublic returns the approved comments on an issue whose authors are
// public and active, newest first, with each author's students attached.
func (r *Repository) ListPublic(ctx context.Context, issueID int64, opts ListOptions) ([]*Comment, error) {
	order := "c.created_at DESC, c.id DESC"
	if opts.FeaturedFirst {
		order = "c.is_featured DESC, " + order
	}

	query := "SELECT " + selectColumns + " FROM " + fromComments + ` JOIN users u ON u.id = a.user_id
		WHERE c.issue_id = ? AND c.state = ? AND a.is_public = 1 AND u.is_active = 1
		ORDER BY ` + order
	args := []interface{}{issueID, StateApproved}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	comments, err := r.query(ctx, query, args...)
	if err != nil || len(comments) == 0 {
		return comments, err
	}

	ids := make([]int64, len(comments))
	for i, c := range comments {
		ids[i] = c.AccountID
	}
	lines, err := r.accounts.StudentLines(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		c.AuthorStudents = lines[c.AccountID]
	}
	return comments, nil
}

// Filter selects comments for moderation listings. Zero values match everything.
type Filter struct {
	State   *State
	IssueID int64
	Limit   int
}

// List returns comments matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Comment, error) {
	var where []string
	var args []interface{}
	if f.State != nil {
		where = append(where, "c.state = ?")
		args = append(args, *f.State)
	}
	if f.IssueID != 0 {
		where = append(where, "c.issue_id = ?")
		args = append(args, f.IssueID)
	}

	query := "SELECT " + selectColumns + " FROM " + fromComments
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return r.query(ctx, query, args...)
}

// SetFeatured marks or unmarks a comment as featured.
func (r *Repository) SetFeatured(ctx context.Context, id int64, featured bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE comments SET is_featured = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", featured, id)
	if err != nil {
		return fmt.Errorf("updating comment: %w", err)
	}
	return expectOne(result, id)
}

// Delete removes a comment by ID.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return expectOne(result, id)
}

// DeleteOwned removes a comment only if it belongs to accountID. A comment
// owned by someone else is reported as not found.
func (r *Repository) DeleteOwned(ctx context.Context, id, accountID int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM comments WHERE id = ? AND account_id = ?", id, accountID)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return expectOne(result, id)
}

func expectOne(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]*Comment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var comments []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}

	return comments, nil
}
