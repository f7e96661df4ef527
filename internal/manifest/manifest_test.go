package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(runID, ts, outcome string) *Manifest {
	return &Manifest{
		RunID:      runID,
		Timestamp:  ts,
		Workspace:  "/tmp/work",
		Strategy:   "RESET",
		Outcome:    outcome,
		Iterations: 2,
		Gates: []GateEntry{
			{Name: "tests", Status: "PASS", Score: 100},
			{Name: "lint", Status: "WARN", Score: 75, Details: "exit 3"},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := NewStore(t.TempDir())

	m := sample("run-1", "2026-08-01T10:00:00Z", "SUCCEEDED")
	m.Rollbacks = []RollbackEntry{
		{Iteration: 1, ToCheckpoint: "cp-0001", Strategy: "RESET", BackupRef: "refs/vigil/backup/cp-0001", Verified: true},
	}
	m.RollbackCount = 1
	require.NoError(t, store.Save(m))

	got, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCEEDED", got.Outcome)
	require.Len(t, got.Gates, 2)
	assert.Equal(t, "WARN", got.Gates[1].Status)
	require.Len(t, got.Rollbacks, 1)
	assert.True(t, got.Rollbacks[0].Verified)
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("ghost")
	assert.Error(t, err)
}

func TestRecentOrdersByTimestamp(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(sample("run-a", "2026-08-01T10:00:00Z", "FAILED")))
	require.NoError(t, store.Save(sample("run-b", "2026-08-02T10:00:00Z", "SUCCEEDED")))
	require.NoError(t, store.Save(sample("run-c", "2026-08-03T10:00:00Z", "CIRCUIT_TRIPPED")))

	recent, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "run-c", recent[0].RunID)
	assert.Equal(t, "run-b", recent[1].RunID)
}

func TestRecentEmptyDir(t *testing.T) {
	store := NewStore(t.TempDir() + "/missing")

	recent, err := store.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
