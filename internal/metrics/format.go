package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// nameWidth fits the longest collector-produced name,
// vigil_journal_entries_total, with room to spare.
const nameWidth = 30

// FormatHuman renders the metrics as an aligned table for `vigil metrics`.
func FormatHuman(metrics []Metric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %10s  %s\n", nameWidth, "METRIC", "VALUE", "LABELS")
	b.WriteString(strings.Repeat("-", nameWidth+30) + "\n")

	for _, m := range metrics {
		val := fmt.Sprintf("%.0f", m.Value)
		if m.Value != float64(int64(m.Value)) {
			val = fmt.Sprintf("%.2f", m.Value)
		}
		fmt.Fprintf(&b, "%-*s %10s  %s\n", nameWidth, m.Name, val, formatLabels(m.Labels))
	}
	return b.String()
}

// formatLabels renders labels in a stable order so repeated collections
// diff cleanly.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + labels[k]
	}
	return strings.Join(parts, ",")
}

// FormatJSONL returns one JSON object per metric line, the same shape the
// journal uses, so both feed the same downstream tooling.
func FormatJSONL(metrics []Metric) (string, error) {
	lines := make([]string, 0, len(metrics))
	for _, m := range metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("metrics: marshal %s: %w", m.Name, err)
		}
		lines = append(lines, string(data))
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}
