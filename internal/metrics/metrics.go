// Package metrics aggregates counters over past runs and the audit journal.
package metrics

import (
	"path/filepath"
	"time"

	"github.com/lyndonlyu/vigil/internal/audit"
	"github.com/lyndonlyu/vigil/internal/manifest"
)

// Metric represents a single metric data point.
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Collector gathers metrics from the vigil data directory.
type Collector struct {
	baseDir string
}

// NewCollector creates a Collector rooted at the vigil data directory.
func NewCollector(baseDir string) *Collector {
	return &Collector{baseDir: baseDir}
}

// Collect gathers all metrics from run manifests and the audit journal.
func (c *Collector) Collect() ([]Metric, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var metrics []Metric

	store := manifest.NewStore(filepath.Join(c.baseDir, "runs"))
	manifests, err := store.Recent(10000) // all
	if err == nil {
		metrics = append(metrics, c.runMetrics(manifests, now)...)
	}

	journal, journalErr := audit.New(filepath.Join(c.baseDir, "journal"))
	if journalErr == nil {
		metrics = append(metrics, c.journalMetrics(journal, now)...)
	}

	return metrics, nil
}

func (c *Collector) runMetrics(manifests []*manifest.Manifest, now string) []Metric {
	var metrics []Metric

	metrics = append(metrics, Metric{
		Name: "vigil_runs_total", Value: float64(len(manifests)), Timestamp: now,
	})

	outcomes := map[string]int{}
	totalIterations := 0
	totalRollbacks := 0
	var totalDuration int64

	for _, m := range manifests {
		outcomes[m.Outcome]++
		totalIterations += m.Iterations
		totalRollbacks += m.RollbackCount
		totalDuration += m.DurationMs
	}

	for outcome, count := range outcomes {
		metrics = append(metrics, Metric{
			Name: "vigil_runs_by_outcome", Value: float64(count),
			Labels: map[string]string{"outcome": outcome}, Timestamp: now,
		})
	}

	if len(manifests) > 0 {
		metrics = append(metrics, Metric{
			Name:      "vigil_run_duration_ms_avg",
			Value:     float64(totalDuration) / float64(len(manifests)),
			Timestamp: now,
		})
		metrics = append(metrics, Metric{
			Name:      "vigil_iterations_avg",
			Value:     float64(totalIterations) / float64(len(manifests)),
			Timestamp: now,
		})
	}

	metrics = append(metrics, Metric{
		Name: "vigil_iterations_total", Value: float64(totalIterations), Timestamp: now,
	})
	metrics = append(metrics, Metric{
		Name: "vigil_rollbacks_total", Value: float64(totalRollbacks), Timestamp: now,
	})

	return metrics
}

func (c *Collector) journalMetrics(journal *audit.Journal, now string) []Metric {
	var metrics []Metric

	records, err := journal.Recent(0)
	if err == nil {
		metrics = append(metrics, Metric{
			Name: "vigil_journal_entries_total", Value: float64(len(records)), Timestamp: now,
		})
	}

	bad, verifyErr := journal.Verify()
	chainVal := float64(0)
	if verifyErr == nil && bad == -1 {
		chainVal = 1
	}
	metrics = append(metrics, Metric{
		Name: "vigil_journal_chain_valid", Value: chainVal, Timestamp: now,
	})

	return metrics
}
