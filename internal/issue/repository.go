package issue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/evcraddock/advocate/internal/db"
)

var (
	// ErrNotFound is returned when an issue does not exist.
	ErrNotFound = errors.New("issue not found")
	// ErrNoActiveIssue is returned when no issue is currently Active.
	ErrNoActiveIssue = errors.New("no active issue")
	// ErrMultipleActive means the single-Active invariant is broken in storage.
	ErrMultipleActive = errors.New("more than one active issue")
	// ErrInvalidState is returned for an issue state change that is not allowed.
	ErrInvalidState = errors.New("invalid issue state change")
	// ErrInvalid is returned for issue fields that fail validation.
	ErrInvalid = errors.New("invalid issue")
)

// Repository provides data access for issues.
type Repository struct {
	db *sql.DB
}

// NewRepository creates an issue repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `id, name, description, recipient_name, recipient_emails, date, state, created_at, updated_at`

func scanIssue(row interface{ Scan(...interface{}) error }) (*Issue, error) {
	var i Issue
	var emails string
	if err := row.Scan(&i.ID, &i.Name, &i.Description, &i.RecipientName, &emails, &i.Date, &i.State,
		&i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(emails), &i.RecipientEmails); err != nil {
		return nil, fmt.Errorf("decoding recipient emails: %w", err)
	}
	if i.RecipientEmails == nil {
		i.RecipientEmails = []string{}
	}
	return &i, nil
}

// NewIssue holds the fields needed to create an issue.
type NewIssue struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	RecipientName   string   `json:"recipient_name"`
	RecipientEmails []string `json:"recipient_emails"`
	Date            string   `json:"date"`
}

// Create adds a Pending issue.
func (r *Repository) Create(ctx context.Context, n NewIssue) (*Issue, error) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if n.Date != "" {
		if _, err := time.Parse("2006-01-02", n.Date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
		}
	}

	emails := make([]string, 0, len(n.RecipientEmails))
	for _, e := range n.RecipientEmails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, err := mail.ParseAddress(e); err != nil {
			return nil, fmt.Errorf("%w: recipient email %q: %v", ErrInvalid, e, err)
		}
		emails = append(emails, e)
	}
	encoded, err := json.Marshal(emails)
	if err != nil {
		return nil, fmt.Errorf("encoding recipient emails: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO issues (name, description, recipient_name, recipient_emails, date, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		name, n.Description, strings.TrimSpace(n.RecipientName), string(encoded), n.Date, StatePending,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting issue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}

	return r.Get(ctx, id)
}

// Get returns an issue by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Issue, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM issues WHERE id = ?", id)
	i, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying issue %d: %w", id, err)
	}
	return i, nil
}

// List returns all issues, newest first.
func (r *Repository) List(ctx context.Context) ([]*Issue, error) {
	return r.query(ctx, "SELECT "+selectColumns+" FROM issues ORDER BY created_at DESC, id DESC")
}

// Active returns the single Active issue. It checks the invariant explicitly
// rather than trusting storage to hold exactly one row.
func (r *Repository) Active(ctx context.Context) (*Issue, error) {
	issues, err := r.query(ctx, "SELECT "+selectColumns+" FROM issues WHERE state = ? LIMIT 2", StateActive)
	if err != nil {
		return nil, err
	}
	switch len(issues) {
	case 0:
		return nil, ErrNoActiveIssue
	case 1:
		return issues[0], nil
	default:
		return nil, ErrMultipleActive
	}
}

// Activate makes an issue the Active one. Any previously Active issue is archived
// in the same transaction. Archived issues cannot be reactivated.
func (r *Repository) Activate(ctx context.Context, id int64) (*Issue, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var state State
	err = tx.QueryRowContext(ctx, "SELECT state FROM issues WHERE id = ?", id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying issue %d: %w", id, err)
	}
	if state == StateArchived {
		return nil, fmt.Errorf("issue %d is archived: %w", id, ErrInvalidState)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE issues SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE state = ? AND id != ?",
		StateArchived, StateActive, id,
	); err != nil {
		return nil, fmt.Errorf("archiving previous active issue: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE issues SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StateActive, id,
	); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrMultipleActive
		}
		return nil, fmt.Errorf("activating issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	return r.Get(ctx, id)
}

// Archive moves an issue to Archived.
func (r *Repository) Archive(ctx context.Context, id int64) (*Issue, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE issues SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		StateArchived, id,
	)
	if err != nil {
		return nil, fmt.Errorf("archiving issue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotFound)
	}

	return r.Get(ctx, id)
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]*Issue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing issues: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var issues []*Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		issues = append(issues, i)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issues: %w", err)
	}

	return issues, nil
}
