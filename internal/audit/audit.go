// Package audit appends loop events to a hash-chained JSONL journal so the
// history of a run can be verified after the fact. Each record carries the
// SHA-256 of the previous record; rewriting any line breaks the chain.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the loop.
const (
	EventRunStarted       = "run_started"
	EventConfirmed        = "confirmed"
	EventCheckpointTaken  = "checkpoint_taken"
	EventGatesValidated   = "gates_validated"
	EventFixAttempted     = "fix_attempted"
	EventRollbackExecuted = "rollback_executed"
	EventBreakerTripped   = "breaker_tripped"
	EventRunFinished      = "run_finished"
	EventConfigDrift      = "config_drift"
)

// Record is one journal entry.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	Iteration int    `json:"iteration,omitempty"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}

// Journal writes hash-chained records to date-named JSONL files under dir.
type Journal struct {
	mu       sync.Mutex
	dir      string
	lastHash string
}

// New opens a journal rooted at dir, creating it if needed. The chain
// continues from the last record of today's file when one exists.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("audit: mkdir: %w", err)
	}

	j := &Journal{dir: dir}
	records, err := j.readFile(j.todayPath())
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		j.lastHash = records[len(records)-1].Hash
	}
	return j, nil
}

// Append writes one event to the journal and returns the stored record.
func (j *Journal) Append(runID string, iteration int, event, detail string) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     runID,
		Iteration: iteration,
		Event:     event,
		Detail:    detail,
		PrevHash:  j.lastHash,
	}
	rec.Hash = hashRecord(rec)

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: marshal: %w", err)
	}

	f, err := os.OpenFile(j.todayPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return Record{}, fmt.Errorf("audit: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("audit: write: %w", err)
	}

	j.lastHash = rec.Hash
	return rec, nil
}

// Recent returns up to n records across all journal files, newest last.
// n <= 0 returns everything.
func (j *Journal) Recent(n int) ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(j.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: glob: %w", err)
	}
	sort.Strings(paths)

	var all []Record
	for _, p := range paths {
		records, err := j.readFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Verify walks today's file and reports the first record whose hash or chain
// link does not match, or -1 when the chain is intact.
func (j *Journal) Verify() (int, error) {
	records, err := j.readFile(j.todayPath())
	if err != nil {
		return -1, err
	}

	prev := ""
	for i, rec := range records {
		if rec.PrevHash != prev {
			return i, nil
		}
		want := rec.Hash
		rec.Hash = ""
		if hashRecord(rec) != want {
			return i, nil
		}
		prev = want
	}
	return -1, nil
}

// Dir returns the journal's root directory.
func (j *Journal) Dir() string { return j.dir }

// ChainHead returns the last hash and record count for the given date
// (formatted 2006-01-02). A missing file yields an empty hash and zero count.
func (j *Journal) ChainHead(date string) (string, int, error) {
	records, err := j.readFile(filepath.Join(j.dir, date+".jsonl"))
	if err != nil {
		return "", 0, err
	}
	if len(records) == 0 {
		return "", 0, nil
	}
	return records[len(records)-1].Hash, len(records), nil
}

func (j *Journal) todayPath() string {
	return filepath.Join(j.dir, time.Now().UTC().Format("2006-01-02")+".jsonl")
}

func (j *Journal) readFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("audit: parse: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan: %w", err)
	}
	return records, nil
}

func hashRecord(rec Record) string {
	rec.Hash = ""
	data, _ := json.Marshal(rec)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
