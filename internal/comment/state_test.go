package comment

import (
	"errors"
	"testing"

	"github.com/evcraddock/advocate/internal/jobs"
)

func TestStateCodes(t *testing.T) {
	tests := []struct {
		state State
		code  int
		name  string
	}{
		{StateDenied, -10, "denied"},
		{StateArchived, -5, "archived"},
		{StatePending, 0, "pending"},
		{StateApproved, 10, "approved"},
	}

	for _, tt := range tests {
		if int(tt.state) != tt.code {
			t.Errorf("%s code = %d, want %d", tt.name, int(tt.state), tt.code)
		}
		if tt.state.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.state.String(), tt.name)
		}
		parsed, err := ParseState(tt.name)
		if err != nil {
			t.Errorf("ParseState(%q): %v", tt.name, err)
		}
		if parsed != tt.state {
			t.Errorf("ParseState(%q) = %v", tt.name, parsed)
		}
	}
}

func TestNext(t *testing.T) {
	all := []State{StateDenied, StateArchived, StatePending, StateApproved}
	allowed := map[Transition]map[State]State{
		Approve: {StatePending: StateApproved, StateDenied: StateApproved},
		Deny:    {StatePending: StateDenied, StateApproved: StateDenied},
		Pend:    {StateDenied: StatePending, StateApproved: StatePending},
	}

	for tr, sources := range allowed {
		for _, from := range all {
			t.Run(tr.String()+"/"+from.String(), func(t *testing.T) {
				got, err := Next(from, tr)
				want, ok := sources[from]
				if ok {
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					if got != want {
						t.Errorf("Next = %v, want %v", got, want)
					}
					return
				}
				if !errors.Is(err, ErrTransitionNotAllowed) {
					t.Errorf("err = %v, want ErrTransitionNotAllowed", err)
				}
				if got != from {
					t.Errorf("state changed to %v on rejected transition", got)
				}
			})
		}
	}
}

func TestApplyRecordsEvents(t *testing.T) {
	tests := []struct {
		name   string
		from   State
		tr     Transition
		events []string
	}{
		{"approve", StatePending, Approve, []string{jobs.KindCommentApproved, jobs.KindCommentPublished}},
		{"deny", StateApproved, Deny, []string{jobs.KindCommentDenied}},
		{"pend", StateDenied, Pend, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Comment{State: tt.from}
			if err := c.Apply(tt.tr); err != nil {
				t.Fatalf("apply: %v", err)
			}
			got := c.takeEvents()
			if len(got) != len(tt.events) {
				t.Fatalf("events = %v, want %v", got, tt.events)
			}
			for i := range got {
				if got[i] != tt.events[i] {
					t.Errorf("event %d = %q, want %q", i, got[i], tt.events[i])
				}
			}
			if len(c.takeEvents()) != 0 {
				t.Error("events not cleared")
			}
		})
	}
}

func TestApplyRejectedLeavesComment(t *testing.T) {
	c := &Comment{State: StateArchived}
	for _, tr := range []Transition{Approve, Deny, Pend} {
		if err := c.Apply(tr); !errors.Is(err, ErrTransitionNotAllowed) {
			t.Errorf("%s: err = %v, want ErrTransitionNotAllowed", tr, err)
		}
	}
	if c.State != StateArchived {
		t.Errorf("state = %v, want archived", c.State)
	}
	if len(c.takeEvents()) != 0 {
		t.Error("rejected transitions must not record events")
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name  string
		table map[Transition]rule
	}{
		{"unknown target", map[Transition]rule{Approve: {from: []State{StatePending}, to: State(3)}}},
		{"unknown source", map[Transition]rule{Approve: {from: []State{State(7)}, to: StateApproved}}},
		{"no sources", map[Transition]rule{Approve: {to: StateApproved}}},
		{"self loop", map[Transition]rule{Approve: {from: []State{StateApproved}, to: StateApproved}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateRules(tt.table); err == nil {
				t.Error("expected error")
			}
		})
	}

	if err := validateRules(rules); err != nil {
		t.Errorf("built-in table invalid: %v", err)
	}
}

func TestParseTransition(t *testing.T) {
	for _, name := range []string{"approve", "DENY", " pend "} {
		if _, err := ParseTransition(name); err != nil {
			t.Errorf("ParseTransition(%q): %v", name, err)
		}
	}
	if _, err := ParseTransition("archive"); err == nil {
		t.Error("expected error for archive")
	}
}
