package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Anchor pins a day's journal chain head so later tampering with that day's
// file is detectable even if the whole file is rewritten consistently.
type Anchor struct {
	Date        string `json:"date"`
	ChainHash   string `json:"chain_hash"`
	RecordCount int    `json:"record_count"`
	CreatedAt   string `json:"created_at"`
	GitTag      string `json:"git_tag,omitempty"`
}

const anchorsFile = "anchors.jsonl"

// LoadAnchors reads all anchors from the journal directory.
func LoadAnchors(journalDir string) ([]Anchor, error) {
	data, err := os.ReadFile(filepath.Join(journalDir, anchorsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}

	var anchors []Anchor
	for _, line := range strings.Split(content, "\n") {
		var a Anchor
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			return nil, fmt.Errorf("audit: parse anchor: %w", err)
		}
		anchors = append(anchors, a)
	}
	return anchors, nil
}

// WriteAnchor adds or replaces the anchor for its date.
func WriteAnchor(journalDir string, anchor Anchor) error {
	existing, err := LoadAnchors(journalDir)
	if err != nil {
		return err
	}
	found := false
	for i, a := range existing {
		if a.Date == anchor.Date {
			existing[i] = anchor
			found = true
			break
		}
	}
	if !found {
		existing = append(existing, anchor)
	}

	var buf strings.Builder
	for _, a := range existing {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	path := filepath.Join(journalDir, anchorsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MaybeCreateAnchor anchors today's journal chain head, tagging the workspace
// repository when workDir is non-empty. Returns (true, nil) if an anchor was
// created or updated; an unchanged chain is a no-op.
func MaybeCreateAnchor(j *Journal, workDir string) (bool, error) {
	today := time.Now().UTC().Format("2006-01-02")
	hash, count, err := j.ChainHead(today)
	if err != nil {
		return false, fmt.Errorf("audit: read journal: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	existing, err := LoadAnchors(j.Dir())
	if err != nil {
		return false, fmt.Errorf("audit: load anchors: %w", err)
	}
	for _, a := range existing {
		if a.Date == today && a.ChainHash == hash {
			return false, nil
		}
	}

	tagName := "vigil-journal-anchor-" + today
	anchor := Anchor{
		Date:        today,
		ChainHash:   hash,
		RecordCount: count,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		GitTag:      tagName,
	}
	if err := WriteAnchor(j.Dir(), anchor); err != nil {
		return false, fmt.Errorf("audit: write anchor: %w", err)
	}
	if workDir != "" {
		createGitTag(workDir, tagName, hash, count)
	}
	return true, nil
}

// createGitTag creates an annotated tag in the working directory.
// Best-effort: a failure never invalidates the written anchor.
func createGitTag(workDir, tagName, chainHash string, recordCount int) bool {
	msg := fmt.Sprintf("Journal anchor: %s (%d records)", chainHash, recordCount)
	cmd := exec.Command("git", "tag", "-f", "-a", tagName, "-m", msg)
	cmd.Dir = workDir
	return cmd.Run() == nil
}
