package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyndonlyu/vigil/internal/approval"
	"github.com/lyndonlyu/vigil/internal/checkpoint"
	"github.com/lyndonlyu/vigil/internal/config"
	"github.com/lyndonlyu/vigil/internal/filelock"
	"github.com/lyndonlyu/vigil/internal/gate"
	"github.com/lyndonlyu/vigil/internal/rollback"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v failed: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@test.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("original"), 0644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func gitOut(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
	return strings.TrimSpace(string(out))
}

func testConfig(t *testing.T, workspace string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace = workspace
	cfg.Confirmation.Enabled = false
	require.NoError(t, cfg.Validate())
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config, opts Options) *Engine {
	t.Helper()
	opts.Config = cfg
	if opts.Stdout == nil {
		opts.Stdout = &bytes.Buffer{}
	}
	return New(opts)
}

func TestAllGatesPassFirstIteration(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{
		{Name: "tests", Command: "true"},
		{Name: "lint", Command: "true"},
	}

	e := newEngine(t, cfg, Options{})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Succeeded, summary.Outcome)
	assert.Equal(t, 1, summary.Iterations)
	assert.Zero(t, summary.RollbackCount())
	assert.True(t, gate.AllPass(summary.GateResults))

	// A successful run stays on its working branch.
	assert.Equal(t, "vigil/run-"+summary.RunID, gitOut(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
}

func TestBreakerTripsAfterConsecutiveRollbacks(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "false"}}
	cfg.Fix.Command = "false"
	cfg.BreakerThreshold = 3
	cfg.MaxIterations = 10

	e := newEngine(t, cfg, Options{})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CircuitTripped, summary.Outcome)
	assert.Equal(t, 3, summary.Iterations)
	assert.Equal(t, 3, summary.RollbackCount())

	// The run returned to the original branch.
	assert.Equal(t, "main", gitOut(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))

	// Exactly one checkpoint per executed iteration.
	store := checkpoint.NewStore(repo)
	cps, err := store.List()
	require.NoError(t, err)
	assert.Len(t, cps, 3)
}

func TestDeniedConfirmationStopsBeforeMutation(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "false"}}

	confirm := approval.New(approval.Options{Timeout: 50 * time.Millisecond})
	e := newEngine(t, cfg, Options{Confirm: confirm})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, NotApproved, summary.Outcome)
	require.NotNil(t, summary.Decision)
	assert.False(t, summary.Decision.Approved)
	assert.Zero(t, summary.Iterations)

	// No checkpoints, no branch, no commits.
	store := checkpoint.NewStore(repo)
	cps, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, cps)
	assert.Equal(t, "main", gitOut(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
}

func TestApprovedConfirmationViaMarker(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "true"}}

	marker := filepath.Join(t.TempDir(), "approve")
	require.NoError(t, os.WriteFile(marker, nil, 0644))
	confirm := approval.New(approval.Options{
		MarkerPath: marker,
		Timeout:    time.Second,
		Interval:   10 * time.Millisecond,
	})

	e := newEngine(t, cfg, Options{Confirm: confirm})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Succeeded, summary.Outcome)
	require.NotNil(t, summary.Decision)
	assert.Equal(t, "FILE_FLAG", summary.Decision.MethodName())
}

func TestSuccessfulRemediationResetsBreaker(t *testing.T) {
	repo := initGitRepo(t)
	markers := t.TempDir()
	fixed := filepath.Join(markers, "fixed")
	attempted := filepath.Join(markers, "attempted")

	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "test -f " + fixed}}
	// Fails on the first attempt, succeeds on the second.
	cfg.Fix.Command = "test -f " + attempted + " && touch " + fixed +
		" || { touch " + attempted + "; exit 1; }"
	cfg.BreakerThreshold = 2
	cfg.MaxIterations = 5

	e := newEngine(t, cfg, Options{})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	// Iteration 1 rolls back, iteration 2 fixes, iteration 3 confirms.
	// One rollback under a threshold of 2 proves the reset happened.
	assert.Equal(t, Succeeded, summary.Outcome)
	assert.Equal(t, 3, summary.Iterations)
	assert.Equal(t, 1, summary.RollbackCount())
}

func TestDryRunNeverMutates(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "false"}}
	cfg.Fix.Command = "touch should-not-exist.txt"
	cfg.DryRun = true
	cfg.MaxIterations = 2

	require.NoError(t, os.WriteFile(filepath.Join(repo, "dirty.txt"), []byte("pending"), 0644))
	before := gitOut(t, repo, "rev-list", "--count", "HEAD")

	e := newEngine(t, cfg, Options{})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Failed, summary.Outcome)
	assert.Equal(t, 2, summary.Iterations)
	assert.Zero(t, summary.RollbackCount())

	// No commits were created and pending work is untouched.
	assert.Equal(t, before, gitOut(t, repo, "rev-list", "--count", "HEAD"))
	assert.Contains(t, gitOut(t, repo, "status", "--porcelain"), "dirty.txt")
	assert.NoFileExists(t, filepath.Join(repo, "should-not-exist.txt"))
}

func TestIterationBudgetExhausted(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "false"}}
	cfg.Fix.Command = "false"
	cfg.MaxIterations = 2
	cfg.BreakerThreshold = 10

	e := newEngine(t, cfg, Options{})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Failed, summary.Outcome)
	assert.Equal(t, 2, summary.Iterations)
	assert.Contains(t, summary.Detail, "exhausted")
}

func TestHistoryRewritingFixAbortsRun(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "false"}}
	// A fix that rewrites history leaves the checkpoint off the current
	// line. The run must stop instead of looping until the budget or
	// counting never-executed rollbacks toward the breaker.
	cfg.Fix.Command = "git reset --hard HEAD~1"
	cfg.BreakerThreshold = 3
	cfg.MaxIterations = 10

	e := newEngine(t, cfg, Options{})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Failed, summary.Outcome)
	assert.Equal(t, 1, summary.Iterations)
	assert.Zero(t, summary.RollbackCount())
	assert.Contains(t, summary.Detail, "invalid checkpoint")
	assert.Equal(t, "main", gitOut(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
}

type failingCheckpointer struct{}

func (failingCheckpointer) Create(int) (*checkpoint.Checkpoint, error) {
	return nil, errors.New("disk full")
}
func (failingCheckpointer) CreateFromHead(int) (*checkpoint.Checkpoint, error) {
	return nil, errors.New("disk full")
}
func (failingCheckpointer) Prune(time.Duration) (int, error) { return 0, nil }

func TestCheckpointFailureAbortsRun(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "true"}}

	e := newEngine(t, cfg, Options{Checkpoints: failingCheckpointer{}})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Failed, summary.Outcome)
	assert.Contains(t, summary.Detail, "checkpoint creation failed")
}

type criticalRoller struct{}

func (criticalRoller) Rollback(context.Context, *checkpoint.Checkpoint) (*rollback.Record, error) {
	return &rollback.Record{BackupRef: "refs/vigil/backup/cp-x", StashRef: "vigil-backup-cp-x"},
		&rollback.CriticalError{
			BackupRef: "refs/vigil/backup/cp-x",
			StashRef:  "vigil-backup-cp-x",
			Err:       errors.New("restore failed"),
		}
}

func TestCriticalRollbackFailureHaltsImmediately(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "false"}}
	cfg.Fix.Command = "false"

	var out bytes.Buffer
	e := newEngine(t, cfg, Options{Roller: criticalRoller{}, Stdout: &out})
	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CriticalFailure, summary.Outcome)
	assert.Equal(t, 1, summary.Iterations)
	assert.Equal(t, "refs/vigil/backup/cp-x", summary.BackupRef)
	assert.Equal(t, "vigil-backup-cp-x", summary.StashRef)
	assert.Contains(t, out.String(), "CRITICAL")
}

func TestSecondRunIsBlockedByLock(t *testing.T) {
	repo := initGitRepo(t)
	cfg := testConfig(t, repo)
	cfg.Gates = []gate.Spec{{Name: "tests", Command: "true"}}

	// Hold the lock as if another run were active.
	require.NoError(t, cfg.EnsureDirs())
	lockHolder, err := filelock.Acquire(cfg.VigilDir())
	require.NoError(t, err)
	defer lockHolder.Release()

	e := newEngine(t, cfg, Options{})
	_, err = e.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestOutcomeAndStateNames(t *testing.T) {
	assert.Equal(t, "SUCCEEDED", Succeeded.String())
	assert.Equal(t, "FAILED", Failed.String())
	assert.Equal(t, "CIRCUIT_TRIPPED", CircuitTripped.String())
	assert.Equal(t, "NOT_APPROVED", NotApproved.String())
	assert.Equal(t, "CRITICAL_FAILURE", CriticalFailure.String())

	assert.Equal(t, "INITIALIZING", Initializing.String())
	assert.Equal(t, "AWAITING_CONFIRMATION", AwaitingConfirmation.String())
	assert.Equal(t, "ITERATING", Iterating.String())
	assert.Equal(t, "DONE", Done.String())
}
