// Package rollback restores the working tree to a checkpoint after failed
// remediation, preserving forensic recoverability: the pre-rollback revision
// is kept under a backup ref and uncommitted work is stashed aside before
// any restore strategy runs.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lyndonlyu/vigil/internal/checkpoint"
)

const backupRefPrefix = "refs/vigil/backup/"

// Sentinel errors returned by Rollback.
var (
	// ErrInvalidCheckpoint means the target does not exist or is not an
	// ancestor of the current state. No mutation was attempted.
	ErrInvalidCheckpoint = errors.New("rollback: invalid checkpoint")
	// ErrStrategyFailed means the restore strategy failed but the working
	// state was recovered from the pre-rollback backup.
	ErrStrategyFailed = errors.New("rollback: strategy failed, state restored from backup")
	// ErrVerifyFailed means post-rollback verification found a non-empty
	// diff and strict verification is enabled.
	ErrVerifyFailed = errors.New("rollback: verification failed")
)

// CriticalError means both the restore strategy and the backup restoration
// failed. Manual recovery is required; the error carries the refs needed
// to do it.
type CriticalError struct {
	BackupRef string
	StashRef  string
	Err       error
}

func (e *CriticalError) Error() string {
	msg := fmt.Sprintf("rollback: critical failure, manual recovery required (backup ref: %s", e.BackupRef)
	if e.StashRef != "" {
		msg += ", stash: " + e.StashRef
	}
	return msg + "): " + e.Err.Error()
}

func (e *CriticalError) Unwrap() error { return e.Err }

// Strategy selects how the working state is brought back to the checkpoint.
type Strategy int

const (
	// Reset forces current state to exactly match the checkpoint,
	// discarding intervening history. Fastest, destructive.
	Reset Strategy = iota
	// Revert applies inverse changes for everything since the checkpoint,
	// preserving full history.
	Revert
	// Checkout overlays the checkpoint's content onto the current state and
	// records the restoration as a new commit, preserving history.
	Checkout
)

// String returns the canonical strategy name.
func (s Strategy) String() string {
	switch s {
	case Reset:
		return "RESET"
	case Revert:
		return "REVERT"
	case Checkout:
		return "CHECKOUT"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy converts a configured strategy name to a Strategy.
// Unknown names are a configuration error, caught at load time.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RESET":
		return Reset, nil
	case "REVERT":
		return Revert, nil
	case "CHECKOUT":
		return Checkout, nil
	default:
		return Reset, fmt.Errorf("unknown rollback strategy %q (want RESET, REVERT, or CHECKOUT)", s)
	}
}

// Record captures one executed rollback.
type Record struct {
	FromRevision string `json:"from_revision"`
	ToCheckpoint string `json:"to_checkpoint"`
	Strategy     string `json:"strategy"`
	BackupRef    string `json:"backup_ref"`
	StashRef     string `json:"stash_ref,omitempty"`
	Verified     bool   `json:"verified"`
	VerifyNote   string `json:"verify_note,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	Strategy Strategy
	// StrictVerify makes a non-empty post-rollback diff under REVERT or
	// CHECKOUT a rollback failure instead of a logged warning.
	StrictVerify bool
	// CleanupCommand, if set, is run best-effort after a successful rollback
	// to drop derived caches that are now stale.
	CleanupCommand string
}

// Coordinator executes rollbacks against a single git workspace.
type Coordinator struct {
	workDir string
	store   *checkpoint.Store
	opts    Options
}

// NewCoordinator builds a Coordinator for the given workspace.
func NewCoordinator(workDir string, store *checkpoint.Store, opts Options) *Coordinator {
	return &Coordinator{workDir: workDir, store: store, opts: opts}
}

func (c *Coordinator) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.workDir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// Rollback restores the working state to the given checkpoint.
//
// The target is validated first (existence and ancestry); an invalid target
// fails fast with no mutation. The current revision is then recorded under a
// backup ref and uncommitted work is stashed aside, so every rollback is
// reversible. Only then is the configured strategy applied and verified.
//
// If the strategy fails, the pre-rollback state is restored from the backup;
// if that also fails, a *CriticalError carrying the backup ref and stash
// reference is returned.
func (c *Coordinator) Rollback(ctx context.Context, cp *checkpoint.Checkpoint) (*Record, error) {
	rev, err := c.store.Resolve(cp.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCheckpoint, cp.ID)
	}
	ancestor, err := c.store.IsAncestor(cp.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCheckpoint, cp.ID, err)
	}
	if !ancestor {
		return nil, fmt.Errorf("%w: %s is not an ancestor of the current state", ErrInvalidCheckpoint, cp.ID)
	}

	record := &Record{
		ToCheckpoint: cp.ID,
		Strategy:     c.opts.Strategy.String(),
	}

	record.FromRevision, err = c.git("rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("rollback: rev-parse HEAD failed: %w", err)
	}

	// Step 2: backup marker plus stash for uncommitted mutations. A retry
	// of an already-applied rollback keeps the first attempt's marker
	// instead of overwriting it with the rolled-back revision.
	ref := backupRefPrefix + cp.ID
	applied := c.treesEqual(rev)
	if applied {
		if _, verr := c.git("rev-parse", "--verify", ref); verr == nil {
			record.BackupRef = ref
		}
	} else {
		record.BackupRef = ref
		if out, err := c.git("update-ref", ref, record.FromRevision); err != nil {
			return nil, fmt.Errorf("rollback: backup ref failed: %w: %s", err, out)
		}
	}
	record.StashRef, err = c.stashWorkInProgress(cp.ID)
	if err != nil {
		return nil, err
	}

	// A retry of an already-applied rollback is a no-op: the tree already
	// matches the checkpoint, so applying REVERT again would double-apply
	// inverse diffs.
	if applied {
		record.Verified = true
		c.cleanup(ctx, record)
		return record, nil
	}

	// Step 3: apply the strategy, falling back to the backup on failure.
	if applyErr := c.apply(cp.ID, rev); applyErr != nil {
		if restoreErr := c.restoreBackup(record); restoreErr != nil {
			return record, &CriticalError{
				BackupRef: record.BackupRef,
				StashRef:  record.StashRef,
				Err:       fmt.Errorf("%v (backup restore: %v)", applyErr, restoreErr),
			}
		}
		return record, fmt.Errorf("%w: %v", ErrStrategyFailed, applyErr)
	}

	// Step 4: verify.
	if err := c.verify(rev, record); err != nil {
		return record, err
	}

	// Step 5: best-effort stale-cache cleanup.
	c.cleanup(ctx, record)

	return record, nil
}

func (c *Coordinator) stashWorkInProgress(cpID string) (string, error) {
	status, err := c.git("status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("rollback: git status failed: %w", err)
	}
	if status == "" {
		return "", nil
	}
	msg := fmt.Sprintf("vigil-backup-%s-%s", cpID, time.Now().UTC().Format("20060102T150405Z"))
	out, err := c.git("stash", "push", "--include-untracked", "-m", msg)
	if err != nil {
		return "", fmt.Errorf("rollback: stash push failed: %w: %s", err, out)
	}
	if strings.Contains(out, "No local changes") {
		return "", nil
	}
	return msg, nil
}

func (c *Coordinator) treesEqual(rev string) bool {
	_, err := c.git("diff", "--quiet", rev, "HEAD")
	return err == nil
}

func (c *Coordinator) apply(cpID, rev string) error {
	switch c.opts.Strategy {
	case Reset:
		if out, err := c.git("reset", "--hard", rev); err != nil {
			return fmt.Errorf("git reset --hard: %w: %s", err, out)
		}
	case Revert:
		commits, err := c.git("rev-list", "--reverse", rev+"..HEAD")
		if err != nil {
			return fmt.Errorf("git rev-list: %w: %s", err, commits)
		}
		if commits == "" {
			return nil
		}
		if out, err := c.git("revert", "--no-commit", rev+"..HEAD"); err != nil {
			c.git("revert", "--abort")
			return fmt.Errorf("git revert: %w: %s", err, out)
		}
		if out, err := c.git("commit", "--allow-empty", "-m", "vigil: revert to checkpoint "+cpID); err != nil {
			return fmt.Errorf("git commit after revert: %w: %s", err, out)
		}
	case Checkout:
		if out, err := c.git("checkout", rev, "--", "."); err != nil {
			return fmt.Errorf("git checkout: %w: %s", err, out)
		}
		if out, err := c.git("add", "-A"); err != nil {
			return fmt.Errorf("git add after checkout: %w: %s", err, out)
		}
		if out, err := c.git("commit", "--allow-empty", "-m", "vigil: restore checkpoint "+cpID); err != nil {
			return fmt.Errorf("git commit after checkout: %w: %s", err, out)
		}
	default:
		return fmt.Errorf("unknown strategy %d", c.opts.Strategy)
	}
	return nil
}

func (c *Coordinator) verify(rev string, record *Record) error {
	if c.opts.Strategy == Reset {
		head, err := c.git("rev-parse", "HEAD")
		if err != nil || head != rev {
			// A reset that did not land exactly on the checkpoint revision
			// is a hard failure; fall back to the backup.
			if restoreErr := c.restoreBackup(record); restoreErr != nil {
				return &CriticalError{
					BackupRef: record.BackupRef,
					StashRef:  record.StashRef,
					Err:       fmt.Errorf("reset landed on %s, want %s (backup restore: %v)", head, rev, restoreErr),
				}
			}
			return fmt.Errorf("%w: reset landed on %s, want %s", ErrStrategyFailed, head, rev)
		}
		record.Verified = true
		return nil
	}

	// REVERT and CHECKOUT can legitimately diverge on regenerated derived
	// artifacts, so a non-empty diff is a warning unless strict verification
	// is configured.
	diff, err := c.git("diff", "--stat", rev, "HEAD")
	if err != nil {
		record.VerifyNote = "diff against checkpoint failed: " + diff
		return nil
	}
	if diff == "" {
		record.Verified = true
		return nil
	}
	record.VerifyNote = "non-empty diff against checkpoint:\n" + diff
	if c.opts.StrictVerify {
		return fmt.Errorf("%w: %s", ErrVerifyFailed, record.VerifyNote)
	}
	return nil
}

func (c *Coordinator) restoreBackup(record *Record) error {
	c.git("revert", "--abort")
	if out, err := c.git("reset", "--hard", record.BackupRef); err != nil {
		return fmt.Errorf("reset to backup: %w: %s", err, out)
	}
	if record.StashRef != "" {
		if err := c.popStash(record.StashRef); err != nil {
			return err
		}
		record.StashRef = ""
	}
	return nil
}

func (c *Coordinator) popStash(stashRef string) error {
	out, err := c.git("stash", "list")
	if err != nil {
		return fmt.Errorf("stash list: %w: %s", err, out)
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, stashRef) {
			continue
		}
		start := strings.Index(line, "{")
		end := strings.Index(line, "}")
		if start == -1 || end == -1 {
			continue
		}
		if out, err := c.git("stash", "pop", "stash@"+line[start:end+1]); err != nil {
			return fmt.Errorf("stash pop: %w: %s", err, out)
		}
		return nil
	}
	return fmt.Errorf("stash %s not found", stashRef)
}

func (c *Coordinator) cleanup(ctx context.Context, record *Record) {
	if c.opts.CleanupCommand == "" {
		return
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", c.opts.CleanupCommand)
	cmd.Dir = c.workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		// Stale-cache cleanup never fails the rollback itself.
		record.VerifyNote = strings.TrimSpace(record.VerifyNote + "\ncleanup failed: " + strings.TrimSpace(string(out)))
	}
}
