package remedy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptFixSuccess(t *testing.T) {
	dir := t.TempDir()
	f := NewCommandFixer(dir, "echo fixed > result.txt")

	out := f.AttemptFix(context.Background())
	assert.True(t, out.Success)

	data, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fixed\n", string(data))
}

func TestAttemptFixFailure(t *testing.T) {
	f := NewCommandFixer(t.TempDir(), "echo cannot fix; exit 1")

	out := f.AttemptFix(context.Background())
	assert.False(t, out.Success)
	assert.Contains(t, out.Detail, "cannot fix")
}

func TestAttemptFixNoCommand(t *testing.T) {
	f := NewCommandFixer(t.TempDir(), "")

	out := f.AttemptFix(context.Background())
	assert.False(t, out.Success)
	assert.Contains(t, out.Detail, "no fix command")
}

func TestAttemptFixReinvocable(t *testing.T) {
	dir := t.TempDir()
	f := NewCommandFixer(dir, "echo run >> log.txt")

	assert.True(t, f.AttemptFix(context.Background()).Success)
	assert.True(t, f.AttemptFix(context.Background()).Success)

	data, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "run\nrun\n", string(data))
}
