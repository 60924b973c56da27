// Package issue provides the Issue model, its lifecycle and data access.
// Exactly one issue may be Active at a time; comment submission targets it.
package issue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// State is the persisted issue state. The integer codes are stored as-is.
type State int

const (
	StateArchived State = -5
	StatePending  State = 0
	StateActive   State = 10
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateArchived:
		return "archived"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Valid returns true if s is a known state code.
func (s State) Valid() bool {
	switch s {
	case StateArchived, StatePending, StateActive:
		return true
	}
	return false
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a state name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts a state name to a State.
func ParseState(name string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "archived":
		return StateArchived, nil
	case "pending":
		return StatePending, nil
	case "active":
		return StateActive, nil
	}
	return 0, fmt.Errorf("unknown issue state %q", name)
}

// Issue is a topic for which comments are collected.
type Issue struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	RecipientName   string    `json:"recipient_name"`
	RecipientEmails []string  `json:"recipient_emails"`
	Date            string    `json:"date"` // YYYY-MM-DD
	State           State     `json:"state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RecipientLabel returns the name shown to members when a comment is sent.
func (i *Issue) RecipientLabel() string {
	if strings.TrimSpace(i.RecipientName) != "" {
		return i.RecipientName
	}
	return "Your Trustee"
}
