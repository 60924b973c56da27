package comment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrTransitionNotAllowed is returned when a transition is not permitted from
// the comment's current state. The comment is left unchanged.
var ErrTransitionNotAllowed = errors.New("transition not allowed")

// State is the moderation state of a comment. The integer codes are persisted.
type State int

const (
	StateDenied   State = -10
	StateArchived State = -5
	StatePending  State = 0
	StateApproved State = 10
)

var stateNames = map[State]string{
	StateDenied:   "denied",
	StateArchived: "archived",
	StatePending:  "pending",
	StateApproved: "approved",
}

// String returns the lowercase state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid returns true if s is a known state code.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
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
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown comment state %q", name)
}

// Transition names a moderation action.
type Transition int

const (
	Approve Transition = iota + 1
	Deny
	Pend
)

func (t Transition) String() string {
	switch t {
	case Approve:
		return "approve"
	case Deny:
		return "deny"
	case Pend:
		return "pend"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

// ParseTransition converts an action name to a Transition.
func ParseTransition(name string) (Transition, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "approve":
		return Approve, nil
	case "deny":
		return Deny, nil
	case "pend":
		return Pend, nil
	}
	return 0, fmt.Errorf("unknown transition %q", name)
}

type rule struct {
	from []State
	to   State
}

// rules is the complete transition table. Archived has no way in or out.
var rules = map[Transition]rule{
	Approve: {from: []State{StatePending, StateDenied}, to: StateApproved},
	Deny:    {from: []State{StatePending, StateApproved}, to: StateDenied},
	Pend:    {from: []State{StateDenied, StateApproved}, to: StatePending},
}

func init() {
	if err := validateRules(rules); err != nil {
		panic(err)
	}
}

func validateRules(table map[Transition]rule) error {
	for t, r := range table {
		if !r.to.Valid() {
			return fmt.Errorf("transition %s: unknown target state %d", t, int(r.to))
		}
		if len(r.from) == 0 {
			return fmt.Errorf("transition %s: no source states", t)
		}
		for _, s := range r.from {
			if !s.Valid() {
				return fmt.Errorf("transition %s: unknown source state %d", t, int(s))
			}
			if s == r.to {
				return fmt.Errorf("transition %s: source equals target %s", t, s)
			}
		}
	}
	return nil
}

// Next returns the state reached by applying t from s.
func Next(s State, t Transition) (State, error) {
	r, ok := rules[t]
	if !ok {
		return s, fmt.Errorf("%s: %w", t, ErrTransitionNotAllowed)
	}
	for _, from := range r.from {
		if from == s {
			return r.to, nil
		}
	}
	return s, fmt.Errorf("%s from %s: %w", t, s, ErrTransitionNotAllowed)
}

// Allowed reports whether t may be applied from s.
func Allowed(s State, t Transition) bool {
	_, err := Next(s, t)
	return err == nil
}
