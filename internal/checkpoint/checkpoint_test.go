package checkpoint

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v failed: %s", args, out)
	}
	run("init")
	run("config", "user.name", "test")
	run("config", "user.email", "test@test.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("original"), 0644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestCreateAndResolve(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("work"), 0644))

	cp, err := s.Create(1)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Iteration)
	assert.NotEmpty(t, cp.Revision)

	rev, err := s.Resolve(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, cp.Revision, rev)
}

func TestCreateCapturesUntrackedFiles(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("data"), 0644))

	cp, err := s.Create(1)
	require.NoError(t, err)

	// The untracked file must be part of the checkpoint commit.
	cmd := exec.Command("git", "ls-tree", "--name-only", cp.Revision)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "untracked.txt")
}

func TestCreateOnCleanTree(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	cp, err := s.Create(1)
	require.NoError(t, err)
	assert.NotEmpty(t, cp.Revision)
}

func TestCreateFromHeadLeavesPendingWork(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending.txt"), []byte("dirty"), 0644))

	cp, err := s.CreateFromHead(1)
	require.NoError(t, err)

	// The ref exists but the pending file stays uncommitted.
	rev, err := s.Resolve(cp.ID)
	require.NoError(t, err)
	assert.Equal(t, cp.Revision, rev)

	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "pending.txt")
}

func TestIDsAreCreationOrdered(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	cp1, err := s.Create(1)
	require.NoError(t, err)
	cp2, err := s.Create(2)
	require.NoError(t, err)

	assert.Less(t, cp1.ID, cp2.ID)
	assert.NotEqual(t, cp1.ID, cp2.ID)
}

func TestResolveUnknown(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	_, err := s.Resolve("cp-9999-nope-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	cp1, err := s.Create(1)
	require.NoError(t, err)
	cp2, err := s.Create(2)
	require.NoError(t, err)

	cps, err := s.List()
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, cp1.ID, cps[0].ID)
	assert.Equal(t, cp2.ID, cps[1].ID)

	require.NoError(t, s.Delete(cp1.ID))
	cps, err = s.List()
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, cp2.ID, cps[0].ID)
}

func TestDeleteUnknown(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	assert.ErrorIs(t, s.Delete("cp-0001-missing-1"), ErrNotFound)
}

func TestPruneKeepsRecent(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	_, err := s.Create(1)
	require.NoError(t, err)

	// Nothing is older than a week yet.
	pruned, err := s.Prune(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	// With a zero window everything is prunable.
	pruned, err = s.Prune(0)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	cps, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestIsAncestor(t *testing.T) {
	dir := initGitRepo(t)
	s := NewStore(dir)

	cp, err := s.Create(1)
	require.NoError(t, err)

	ok, err := s.IsAncestor(cp.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Move to a commit that does not contain the checkpoint.
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v failed: %s", args, out)
	}
	run("checkout", "--detach", "HEAD~1")

	ok, err = s.IsAncestor(cp.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
