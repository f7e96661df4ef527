package gate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Runner validates a named gate against the current working state.
// Implementations must never return an error: internal failures resolve to a
// Result with status Unknown.
type Runner interface {
	Validate(ctx context.Context, name string) Result
}

// Spec configures one command-backed gate.
type Spec struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	// WarnExit is an optional exit code that maps to WARN instead of FAIL.
	WarnExit int `yaml:"warn_exit,omitempty"`
}

// CommandRunner executes each configured gate as a shell command inside the
// workspace. Exit 0 maps to PASS, the declared warn exit (if any) to WARN,
// any other exit to FAIL, and spawn failures to UNKNOWN.
type CommandRunner struct {
	workDir string
	specs   map[string]Spec
}

// NewCommandRunner builds a CommandRunner for the given workspace and specs.
func NewCommandRunner(workDir string, specs []Spec) *CommandRunner {
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return &CommandRunner{workDir: workDir, specs: m}
}

var scoreRe = regexp.MustCompile(`(?m)^score=(\d{1,3})\s*$`)

// Validate runs the gate's command and maps its exit status to a Result.
// A gate may report a 0..100 score by printing a "score=NN" line; without
// one the score is derived from the status.
func (r *CommandRunner) Validate(ctx context.Context, name string) Result {
	spec, ok := r.specs[name]
	if !ok {
		return Result{Gate: name, Status: Unknown, Details: "gate not configured"}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = r.workDir
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	status := Pass
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Could not even start the command. Absorb as UNKNOWN.
			return Result{Gate: name, Status: Unknown, Details: fmt.Sprintf("gate error: %v", err)}
		}
		if spec.WarnExit != 0 && exitErr.ExitCode() == spec.WarnExit {
			status = Warn
		} else {
			status = Fail
		}
	}

	return Result{
		Gate:    name,
		Status:  status,
		Score:   parseScore(output, status),
		Details: output,
	}
}

func parseScore(output string, status Status) int {
	if m := scoreRe.FindStringSubmatch(output); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n <= 100 {
			return n
		}
	}
	switch status {
	case Pass:
		return 100
	case Warn:
		return 75
	default:
		return 0
	}
}
