package domain

import (
	"fmt"
	"strings"
)

// FailurePolicy selects the outcome a check resolves to when its backing
// service cannot be reached.
type FailurePolicy string

const (
	// FailOpen resolves an unreachable dependency to the permissive outcome.
	FailOpen FailurePolicy = "fail-open"
	// FailClosed resolves an unreachable dependency to the restrictive outcome.
	FailClosed FailurePolicy = "fail-closed"
)

// ParseFailurePolicy parses the textual form used in configuration.
func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", raw)
	}
}
