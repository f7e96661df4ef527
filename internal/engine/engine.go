// Package engine drives the remediation loop: checkpoint, validate gates,
// attempt a fix, roll back on failure, until the gates pass or a guard
// (iteration budget, circuit breaker, operator denial) stops the run.
//
// The engine owns loop control only. Persistence of the outcome (state
// database, manifest, report) is the caller's concern.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lyndonlyu/vigil/internal/approval"
	"github.com/lyndonlyu/vigil/internal/audit"
	"github.com/lyndonlyu/vigil/internal/breaker"
	"github.com/lyndonlyu/vigil/internal/checkpoint"
	"github.com/lyndonlyu/vigil/internal/config"
	"github.com/lyndonlyu/vigil/internal/filelock"
	"github.com/lyndonlyu/vigil/internal/gate"
	"github.com/lyndonlyu/vigil/internal/precheck"
	"github.com/lyndonlyu/vigil/internal/remedy"
	"github.com/lyndonlyu/vigil/internal/rollback"
)

// Outcome is the terminal state of a run.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	CircuitTripped
	NotApproved
	CriticalFailure
)

// String returns the canonical outcome name.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	case CircuitTripped:
		return "CIRCUIT_TRIPPED"
	case NotApproved:
		return "NOT_APPROVED"
	default:
		return "CRITICAL_FAILURE"
	}
}

// State is the loop's current phase.
type State int

const (
	Initializing State = iota
	AwaitingConfirmation
	Iterating
	Done
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case AwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	case Iterating:
		return "ITERATING"
	default:
		return "DONE"
	}
}

// RollbackEvent is one executed rollback with the iteration it happened in.
type RollbackEvent struct {
	Iteration int `json:"iteration"`
	rollback.Record
}

// Summary is the complete result of one run.
type Summary struct {
	RunID       string             `json:"run_id"`
	Outcome     Outcome            `json:"-"`
	Decision    *approval.Decision `json:"decision,omitempty"`
	GateResults []gate.Result      `json:"gate_results"`
	Rollbacks   []RollbackEvent    `json:"rollbacks,omitempty"`
	Iterations  int                `json:"iterations"`
	Branch      string             `json:"branch,omitempty"`
	Detail      string             `json:"detail,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at"`

	// Set on CRITICAL_FAILURE so the operator can recover manually.
	BackupRef string `json:"backup_ref,omitempty"`
	StashRef  string `json:"stash_ref,omitempty"`
}

// RollbackCount is the number of rollbacks executed during the run.
func (s *Summary) RollbackCount() int { return len(s.Rollbacks) }

// OutcomeName is the JSON-friendly outcome string.
func (s *Summary) OutcomeName() string { return s.Outcome.String() }

// Checkpointer creates and prunes checkpoints.
type Checkpointer interface {
	Create(iteration int) (*checkpoint.Checkpoint, error)
	CreateFromHead(iteration int) (*checkpoint.Checkpoint, error)
	Prune(olderThan time.Duration) (int, error)
}

// Roller restores the working state to a checkpoint.
type Roller interface {
	Rollback(ctx context.Context, cp *checkpoint.Checkpoint) (*rollback.Record, error)
}

// Confirmer blocks until the operator approves or denies the run.
type Confirmer interface {
	Await(ctx context.Context) approval.Decision
}

// EventSink receives loop events. *audit.Journal satisfies it.
type EventSink interface {
	Append(runID string, iteration int, event, detail string) (audit.Record, error)
}

// Options wires an Engine. Nil fields fall back to implementations built
// from the configuration.
type Options struct {
	Config      *config.Config
	Checkpoints Checkpointer
	Gates       gate.Runner
	Fixer       remedy.Fixer
	Roller      Roller
	Confirm     Confirmer
	Journal     EventSink
	Stdout      io.Writer
}

// Engine runs the remediation loop against a single workspace.
type Engine struct {
	cfg         *config.Config
	checkpoints Checkpointer
	gates       gate.Runner
	fixer       remedy.Fixer
	roller      Roller
	confirm     Confirmer
	sink        EventSink
	stdout      io.Writer
	state       State
}

// New builds an Engine from Options, defaulting any component that was not
// injected.
func New(opts Options) *Engine {
	cfg := opts.Config
	ws := cfg.Workspace

	store := checkpoint.NewStore(ws)

	e := &Engine{
		cfg:         cfg,
		checkpoints: opts.Checkpoints,
		gates:       opts.Gates,
		fixer:       opts.Fixer,
		roller:      opts.Roller,
		confirm:     opts.Confirm,
		sink:        opts.Journal,
		stdout:      opts.Stdout,
	}
	if e.checkpoints == nil {
		e.checkpoints = store
	}
	if e.gates == nil {
		e.gates = gate.NewCommandRunner(ws, cfg.Gates)
	}
	if e.fixer == nil {
		e.fixer = remedy.NewCommandFixer(ws, cfg.Fix.Command)
	}
	if e.roller == nil {
		e.roller = rollback.NewCoordinator(ws, store, rollback.Options{
			Strategy:       cfg.ParsedStrategy,
			StrictVerify:   cfg.StrictVerify,
			CleanupCommand: cfg.CleanupCommand,
		})
	}
	if e.confirm == nil && cfg.Confirmation.Enabled {
		marker := cfg.Confirmation.MarkerPath
		if !filepath.IsAbs(marker) {
			marker = filepath.Join(ws, marker)
		}
		e.confirm = approval.New(approval.Options{
			MarkerPath:  marker,
			EnvVar:      cfg.Confirmation.EnvVar,
			Input:       os.Stdin,
			Interval:    time.Duration(cfg.Confirmation.PollIntervalMs) * time.Millisecond,
			Timeout:     time.Duration(cfg.Confirmation.TimeoutSeconds) * time.Second,
			AutoApprove: cfg.Confirmation.AutoApprove,
		})
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	return e
}

// State returns the loop's current phase.
func (e *Engine) State() State { return e.state }

// Run executes the loop to completion. The returned error is non-nil only
// for setup failures (bad environment, held lock); every loop outcome,
// including CRITICAL_FAILURE, is reported through the Summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     newRunID(),
		StartedAt: time.Now().UTC(),
	}

	e.state = Initializing
	if res := precheck.DefaultRunner(e.cfg.Workspace).Run(); !res.AllPassed {
		return nil, fmt.Errorf("engine: environment precheck failed:\n%s", precheck.FormatRunResult(res))
	}
	if err := e.cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	lock, err := filelock.Acquire(e.cfg.VigilDir())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	defer lock.Release()

	e.event(summary, 0, audit.EventRunStarted, e.cfg.Strategy)

	if e.confirm != nil {
		e.state = AwaitingConfirmation
		fmt.Fprintf(e.stdout, "Awaiting confirmation (marker, %s, or keypress)...\n", e.cfg.Confirmation.EnvVar)
		d := e.confirm.Await(ctx)
		summary.Decision = &d
		if !d.Approved {
			summary.Outcome = NotApproved
			summary.Detail = "run was not approved via " + d.MethodName()
			return e.finish(ctx, summary), nil
		}
		e.event(summary, 0, audit.EventConfirmed, d.MethodName())
	}

	origBranch, err := e.currentBranch()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	summary.Branch = "vigil/run-" + summary.RunID
	if out, err := e.git("checkout", "-b", summary.Branch); err != nil {
		return nil, fmt.Errorf("engine: create run branch: %w: %s", err, out)
	}

	e.state = Iterating
	summary.Outcome = Failed
	summary.Detail = fmt.Sprintf("iteration budget of %d exhausted", e.cfg.MaxIterations)
	brk := breaker.New(e.cfg.BreakerThreshold)

	e.iterate(ctx, summary, brk)

	if summary.Outcome != Succeeded && origBranch != "" {
		if out, err := e.git("checkout", origBranch); err != nil {
			fmt.Fprintf(e.stdout, "warning: could not return to %s: %s\n", origBranch, out)
		}
	}

	return e.finish(ctx, summary), nil
}

func (e *Engine) iterate(ctx context.Context, summary *Summary, brk *breaker.Breaker) {
	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		if ctx.Err() != nil {
			summary.Detail = "run cancelled"
			return
		}
		summary.Iterations = iter

		cp, err := e.createCheckpoint(iter)
		if err != nil {
			summary.Detail = "checkpoint creation failed: " + err.Error()
			return
		}
		e.event(summary, iter, audit.EventCheckpointTaken, cp.ID)

		results := e.validateAll(ctx)
		summary.GateResults = results
		e.event(summary, iter, audit.EventGatesValidated, formatResults(results))
		e.printResults(iter, results)

		if gate.AllPass(results) {
			summary.Outcome = Succeeded
			summary.Detail = fmt.Sprintf("all gates passed in iteration %d", iter)
			return
		}

		if e.cfg.DryRun {
			fmt.Fprintln(e.stdout, "  dry-run: remediation and rollback skipped")
			brk.Reset()
			continue
		}

		fix := e.fixer.AttemptFix(ctx)
		e.event(summary, iter, audit.EventFixAttempted, fmt.Sprintf("success=%t", fix.Success))

		stillFailing := false
		if fix.Success {
			results = e.validateAll(ctx)
			summary.GateResults = results
			stillFailing = !gate.AllPass(results)
		}

		if !fix.Success || stillFailing {
			if done := e.rollBack(ctx, summary, brk, cp, iter); done {
				return
			}
			continue
		}

		// Remediation landed and the gates pass; the next iteration's
		// validation confirms it from a fresh checkpoint.
		brk.Reset()
		if e.cfg.AutoCommit {
			e.commitRemediation(iter)
		}
	}
}

// rollBack executes one rollback and reports whether the run must stop.
func (e *Engine) rollBack(ctx context.Context, summary *Summary, brk *breaker.Breaker, cp *checkpoint.Checkpoint, iter int) bool {
	rec, err := e.roller.Rollback(ctx, cp)
	if rec != nil {
		summary.Rollbacks = append(summary.Rollbacks, RollbackEvent{Iteration: iter, Record: *rec})
		e.event(summary, iter, audit.EventRollbackExecuted, cp.ID)
	}

	var crit *rollback.CriticalError
	if errors.As(err, &crit) {
		summary.Outcome = CriticalFailure
		summary.BackupRef = crit.BackupRef
		summary.StashRef = crit.StashRef
		summary.Detail = crit.Error()
		fmt.Fprintf(e.stdout, "CRITICAL: %v\n", crit)
		return true
	}
	if errors.Is(err, rollback.ErrInvalidCheckpoint) {
		// The restore target is gone or off the current line, which a fix
		// that rewrites history can cause. There is nothing safe to restore
		// to, so the run stops here.
		summary.Outcome = Failed
		summary.Detail = "rollback aborted: " + err.Error()
		fmt.Fprintf(e.stdout, "  %s\n", summary.Detail)
		return true
	}
	if err != nil {
		fmt.Fprintf(e.stdout, "  rollback: %v\n", err)
	}
	if rec == nil {
		// Nothing was executed, so nothing counts toward the breaker.
		return false
	}

	brk.RecordRollback()
	if brk.Tripped() {
		summary.Outcome = CircuitTripped
		summary.Detail = fmt.Sprintf("%d consecutive rollbacks reached the threshold of %d",
			brk.Count(), brk.Threshold())
		e.event(summary, iter, audit.EventBreakerTripped, summary.Detail)
		return true
	}
	return false
}

func (e *Engine) finish(ctx context.Context, summary *Summary) *Summary {
	e.state = Done
	summary.EndedAt = time.Now().UTC()

	if summary.Outcome != NotApproved && e.cfg.RetentionDays > 0 {
		window := time.Duration(e.cfg.RetentionDays) * 24 * time.Hour
		if pruned, err := e.checkpoints.Prune(window); err == nil && pruned > 0 {
			fmt.Fprintf(e.stdout, "pruned %d expired checkpoint(s)\n", pruned)
		}
	}

	e.event(summary, summary.Iterations, audit.EventRunFinished, summary.Outcome.String())
	return summary
}

func (e *Engine) createCheckpoint(iter int) (*checkpoint.Checkpoint, error) {
	if e.cfg.DryRun {
		return e.checkpoints.CreateFromHead(iter)
	}
	return e.checkpoints.Create(iter)
}

func (e *Engine) validateAll(ctx context.Context) []gate.Result {
	results := make([]gate.Result, 0, len(e.cfg.Gates))
	for _, spec := range e.cfg.Gates {
		results = append(results, e.gates.Validate(ctx, spec.Name))
	}
	return results
}

func (e *Engine) commitRemediation(iter int) {
	e.git("add", "-A")
	if _, err := e.git("diff", "--cached", "--quiet"); err != nil {
		e.git("commit", "-m", fmt.Sprintf("vigil: iteration %d remediation", iter))
	}
}

func (e *Engine) currentBranch() (string, error) {
	out, err := e.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %s", out)
	}
	if out == "HEAD" {
		// Detached HEAD; remember the exact revision instead.
		return e.git("rev-parse", "HEAD")
	}
	return out, nil
}

func (e *Engine) printResults(iter int, results []gate.Result) {
	fmt.Fprintf(e.stdout, "iteration %d/%d\n", iter, e.cfg.MaxIterations)
	for _, r := range results {
		fmt.Fprintf(e.stdout, "  %-7s %s (score %d)\n", r.StatusName(), r.Gate, r.Score)
	}
}

func (e *Engine) event(summary *Summary, iter int, event, detail string) {
	if e.sink == nil {
		return
	}
	// Journal failures never interrupt the loop.
	_, _ = e.sink.Append(summary.RunID, iter, event, detail)
}

func (e *Engine) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = e.cfg.Workspace
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func formatResults(results []gate.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Gate + "=" + r.StatusName()
	}
	return strings.Join(parts, " ")
}

func newRunID() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}
