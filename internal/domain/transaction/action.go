package transaction

import (
	"fmt"
	"strings"
)

// Action is the backend's decision on a transaction
type Action string

const (
	ActionApprove Action = "approve"
	ActionFlag    Action = "flag"
	ActionBlock   Action = "block"
)

// ParseAction parses a decision name case-insensitively
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// IsValid reports whether a is one of the known decisions
func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionFlag, ActionBlock:
		return true
	default:
		return false
	}
}

func (a Action) String() string {
	return string(a)
}
