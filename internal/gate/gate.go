// Package gate defines quality gate results and a command-backed runner.
// A gate is a named check run against the working tree; gate failures are
// data, never control flow — an erroring gate resolves to UNKNOWN instead
// of propagating an error into the loop.
package gate

import (
	"strings"
)

// Status classifies a gate outcome.
type Status int

const (
	Pass Status = iota
	Warn
	Fail
	Unknown
)

// String returns the canonical name of the Status.
func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Warn:
		return "WARN"
	case Fail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a string to a Status. Unrecognised values map to
// Unknown rather than erroring, mirroring the runner's absorption policy.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS":
		return Pass
	case "WARN":
		return Warn
	case "FAIL":
		return Fail
	default:
		return Unknown
	}
}

// Result is the outcome of validating one gate in one iteration.
type Result struct {
	Gate    string `json:"gate"`
	Status  Status `json:"-"`
	Score   int    `json:"score"` // 0..100
	Details string `json:"details,omitempty"`
}

// StatusName is the JSON-friendly status string.
func (r Result) StatusName() string {
	return r.Status.String()
}

// AllPass reports whether every result has status PASS.
func AllPass(results []Result) bool {
	for _, r := range results {
		if r.Status != Pass {
			return false
		}
	}
	return true
}
