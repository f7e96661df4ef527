package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyndonlyu/vigil/internal/approval"
	"github.com/lyndonlyu/vigil/internal/config"
	"github.com/lyndonlyu/vigil/internal/engine"
	"github.com/lyndonlyu/vigil/internal/gate"
	"github.com/lyndonlyu/vigil/internal/rollback"
)

func TestBuildManifest(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace = "/tmp/work"
	cfg.Strategy = "REVERT"

	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	summary := &engine.Summary{
		RunID:      "20260801T100000Z-abcd1234",
		Outcome:    engine.CircuitTripped,
		Decision:   &approval.Decision{Approved: true, Method: approval.EnvVar},
		Iterations: 3,
		StartedAt:  started,
		EndedAt:    started.Add(2 * time.Second),
		GateResults: []gate.Result{
			{Gate: "tests", Status: gate.Fail, Score: 0, Details: "exit 1"},
			{Gate: "lint", Status: gate.Pass, Score: 100},
		},
		Rollbacks: []engine.RollbackEvent{
			{Iteration: 1, Record: rollback.Record{
				ToCheckpoint: "cp-0001",
				Strategy:     "REVERT",
				BackupRef:    "refs/vigil/backup/cp-0001",
				Verified:     true,
			}},
		},
	}

	m := buildManifest(cfg, summary)

	assert.Equal(t, summary.RunID, m.RunID)
	assert.Equal(t, "CIRCUIT_TRIPPED", m.Outcome)
	assert.Equal(t, "2026-08-01T10:00:00Z", m.Timestamp)
	assert.Equal(t, int64(2000), m.DurationMs)
	assert.Equal(t, "ENV_VAR", m.ConfirmMethod)
	assert.Equal(t, "REVERT", m.Strategy)
	require.Len(t, m.Gates, 2)
	assert.Equal(t, "FAIL", m.Gates[0].Status)
	require.Len(t, m.Rollbacks, 1)
	assert.Equal(t, "cp-0001", m.Rollbacks[0].ToCheckpoint)
	assert.True(t, m.Rollbacks[0].Verified)
	assert.Equal(t, 1, m.RollbackCount)
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()

	configPath = "custom.yaml"
	t.Cleanup(func() { configPath = "" })
	assert.Equal(t, filepath.Join(dir, "custom.yaml"), resolveConfigPath(dir))

	// Without --config and without a workspace file, fall back to the
	// home config.
	configPath = ""
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".vigil", "config.yaml"), resolveConfigPath(dir))

	// A .vigil.yaml in the directory wins over the home fallback.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vigil.yaml"), []byte("strategy: RESET\n"), 0644))
	assert.Equal(t, filepath.Join(dir, ".vigil.yaml"), resolveConfigPath(dir))
}

func TestRenderHelpersFallBackOnUnknown(t *testing.T) {
	assert.Equal(t, "WHATEVER", renderOutcome("WHATEVER"))
	assert.Equal(t, "MAYBE", renderGateStatus("MAYBE"))
	assert.NotEmpty(t, renderOutcome("SUCCEEDED"))
	assert.NotEmpty(t, renderGateStatus("PASS"))
}
