package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"
)

// TrackedFile records a monitored file and its last-seen checksum.
type TrackedFile struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// DriftChange reports a monitored file whose content changed between runs.
type DriftChange struct {
	File        string `json:"file"`
	OldChecksum string `json:"old_checksum"`
	NewChecksum string `json:"new_checksum"`
	Timestamp   string `json:"timestamp"`
}

// DriftTracker detects configuration changes between runs via SHA-256
// checksums, so a run whose behavior shifted because the config was edited
// is distinguishable from one that regressed on its own.
type DriftTracker struct {
	stateDir string
}

// NewDriftTracker persists tracking state in the given directory.
func NewDriftTracker(stateDir string) *DriftTracker {
	return &DriftTracker{stateDir: stateDir}
}

// Check compares the current checksums of files against the stored state,
// returns detected changes, and updates the state. First-time files report
// an empty OldChecksum. Missing files are silently skipped.
func (t *DriftTracker) Check(files []string) ([]DriftChange, error) {
	existing, err := t.State()
	if err != nil {
		return nil, err
	}

	stateMap := make(map[string]string)
	for _, tf := range existing {
		stateMap[tf.Path] = tf.Checksum
	}

	var changes []DriftChange
	now := time.Now().UTC().Format(time.RFC3339)

	for _, file := range files {
		checksum, err := fileChecksum(file)
		if err != nil {
			continue
		}

		old, tracked := stateMap[file]
		if !tracked || old != checksum {
			changes = append(changes, DriftChange{
				File:        file,
				OldChecksum: old,
				NewChecksum: checksum,
				Timestamp:   now,
			})
		}
		stateMap[file] = checksum
	}

	var updated []TrackedFile
	for path, checksum := range stateMap {
		updated = append(updated, TrackedFile{Path: path, Checksum: checksum})
	}
	if err := t.saveState(updated); err != nil {
		return nil, err
	}
	return changes, nil
}

// State loads the tracked file states. Returns nil, nil when no state
// exists yet.
func (t *DriftTracker) State() ([]TrackedFile, error) {
	data, err := os.ReadFile(filepath.Join(t.stateDir, "drift-state.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []TrackedFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (t *DriftTracker) saveState(files []TrackedFile) error {
	if err := os.MkdirAll(t.stateDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(files, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.stateDir, "drift-state.json"), data, 0o644)
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
