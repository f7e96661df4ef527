// Package checkpoint provides immutable, creation-ordered snapshots of a git
// working tree. Each checkpoint is a commit addressed through a ref under
// refs/vigil/checkpoints/, so it survives branch switches and resets until
// explicitly pruned.
package checkpoint

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const refPrefix = "refs/vigil/checkpoints/"

// ErrNotFound is returned when a checkpoint ID does not resolve to a ref.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpoint identifies a full point-in-time snapshot of the repository.
type Checkpoint struct {
	ID        string    `json:"id"`
	Iteration int       `json:"iteration"`
	Revision  string    `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
}

// Store creates and resolves checkpoints in a single git workspace.
type Store struct {
	workDir string
	counter atomic.Int64
}

// NewStore returns a Store operating on the git repository at workDir.
func NewStore(workDir string) *Store {
	return &Store{workDir: workDir}
}

func (s *Store) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = s.workDir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (s *Store) newID(iteration int) string {
	return fmt.Sprintf("cp-%04d-%s-%d",
		iteration,
		time.Now().UTC().Format("20060102T150405Z"),
		s.counter.Add(1),
	)
}

// Create captures the full current working state (including untracked files)
// as a commit on the current line and records it under a checkpoint ref.
// The ID is composed of iteration number, UTC timestamp, and a monotonic
// counter, so IDs are collision-free and sort in creation order.
func (s *Store) Create(iteration int) (*Checkpoint, error) {
	id := s.newID(iteration)

	if out, err := s.git("add", "-A"); err != nil {
		return nil, fmt.Errorf("checkpoint: git add failed: %w: %s", err, out)
	}
	out, err := s.git("commit", "--allow-empty", "-m", "vigil: checkpoint "+id)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: git commit failed: %w: %s", err, out)
	}

	rev, err := s.git("rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: rev-parse failed: %w: %s", err, rev)
	}

	if out, err := s.git("update-ref", refPrefix+id, rev); err != nil {
		return nil, fmt.Errorf("checkpoint: update-ref failed: %w: %s", err, out)
	}

	return &Checkpoint{
		ID:        id,
		Iteration: iteration,
		Revision:  rev,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CreateFromHead records a checkpoint ref at the current HEAD without
// committing pending changes. Used by read-only runs that must leave the
// working state untouched.
func (s *Store) CreateFromHead(iteration int) (*Checkpoint, error) {
	id := s.newID(iteration)

	rev, err := s.git("rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: rev-parse failed: %w: %s", err, rev)
	}
	if out, err := s.git("update-ref", refPrefix+id, rev); err != nil {
		return nil, fmt.Errorf("checkpoint: update-ref failed: %w: %s", err, out)
	}

	return &Checkpoint{
		ID:        id,
		Iteration: iteration,
		Revision:  rev,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Resolve returns the revision SHA a checkpoint ID points at.
func (s *Store) Resolve(id string) (string, error) {
	rev, err := s.git("rev-parse", "--verify", refPrefix+id)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rev, nil
}

// List returns all checkpoints sorted by creation order (oldest first).
func (s *Store) List() ([]Checkpoint, error) {
	out, err := s.git("for-each-ref",
		"--format=%(refname)%09%(objectname)%09%(creatordate:unix)",
		"--sort=refname",
		refPrefix)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: for-each-ref failed: %w: %s", err, out)
	}
	if out == "" {
		return nil, nil
	}

	var cps []Checkpoint
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			continue
		}
		id := strings.TrimPrefix(parts[0], refPrefix)
		ts, _ := strconv.ParseInt(parts[2], 10, 64)
		cps = append(cps, Checkpoint{
			ID:        id,
			Iteration: parseIteration(id),
			Revision:  parts[1],
			CreatedAt: time.Unix(ts, 0).UTC(),
		})
	}
	return cps, nil
}

// Delete removes the checkpoint ref. The underlying commit is left to git's
// own garbage collection.
func (s *Store) Delete(id string) error {
	if _, err := s.Resolve(id); err != nil {
		return err
	}
	out, err := s.git("update-ref", "-d", refPrefix+id)
	if err != nil {
		return fmt.Errorf("checkpoint: update-ref -d failed: %w: %s", err, out)
	}
	return nil
}

// Prune deletes checkpoints older than the given retention window and
// returns how many were removed.
func (s *Store) Prune(olderThan time.Duration) (int, error) {
	cps, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	pruned := 0
	for _, cp := range cps {
		if cp.CreatedAt.Before(cutoff) {
			if err := s.Delete(cp.ID); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}

// IsAncestor reports whether the checkpoint's revision is an ancestor of the
// current HEAD.
func (s *Store) IsAncestor(id string) (bool, error) {
	rev, err := s.Resolve(id)
	if err != nil {
		return false, err
	}
	_, err = s.git("merge-base", "--is-ancestor", rev, "HEAD")
	if err != nil {
		// Exit code 1 means "not an ancestor"; other failures are real errors.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("checkpoint: merge-base failed: %w", err)
	}
	return true, nil
}

func parseIteration(id string) int {
	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(parts[1])
	return n
}
