// Package remedy invokes the external auto-remediation command that tries
// to make failing gates pass. The fixer itself carries no state, so it is
// safe to re-invoke after a rollback.
package remedy

import (
	"context"
	"os/exec"
	"strings"
)

// Outcome is the result of one remediation attempt.
type Outcome struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// Fixer attempts to mutate the working state so that failing gates pass.
type Fixer interface {
	AttemptFix(ctx context.Context) Outcome
}

// CommandFixer runs a configured shell command in the workspace.
// Exit 0 means the fix was applied.
type CommandFixer struct {
	workDir string
	command string
}

// NewCommandFixer builds a CommandFixer for the given workspace and command.
func NewCommandFixer(workDir, command string) *CommandFixer {
	return &CommandFixer{workDir: workDir, command: command}
}

// AttemptFix runs the fix command against the current working state.
func (f *CommandFixer) AttemptFix(ctx context.Context) Outcome {
	if f.command == "" {
		return Outcome{Success: false, Detail: "no fix command configured"}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", f.command)
	cmd.Dir = f.workDir
	out, err := cmd.CombinedOutput()
	detail := strings.TrimSpace(string(out))

	if err != nil {
		if detail == "" {
			detail = err.Error()
		}
		return Outcome{Success: false, Detail: detail}
	}
	return Outcome{Success: true, Detail: detail}
}
