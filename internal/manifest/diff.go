package manifest

import "fmt"

// FieldDiff records a single field-level difference between two manifests.
type FieldDiff struct {
	Field string `json:"field"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// DiffType classifies the kind of gate-level difference.
type DiffType string

const (
	DiffChanged   DiffType = "changed"
	DiffLeftOnly  DiffType = "left_only"
	DiffRightOnly DiffType = "right_only"
)

// GateDiff records a gate-level difference between two manifests.
type GateDiff struct {
	Gate   string      `json:"gate"`
	Type   DiffType    `json:"type"`
	Fields []FieldDiff `json:"fields,omitempty"`
}

// DiffResult holds the complete comparison between two manifests.
type DiffResult struct {
	LeftRunID  string      `json:"left_run_id"`
	RightRunID string      `json:"right_run_id"`
	Fields     []FieldDiff `json:"fields,omitempty"`
	GateDiffs  []GateDiff  `json:"gate_diffs,omitempty"`
}

// Diff compares two manifests and returns a DiffResult describing all
// differences. Top-level fields are compared by value. Gates are matched
// by name: gates present in both are checked for Status/Score changes,
// gates present only in left or right are flagged accordingly.
func Diff(left, right *Manifest) *DiffResult {
	result := &DiffResult{
		LeftRunID:  left.RunID,
		RightRunID: right.RunID,
	}

	// Timestamp is excluded because it always differs between distinct runs
	// and does not indicate a meaningful change.
	compareField := func(name, l, r string) {
		if l != r {
			result.Fields = append(result.Fields, FieldDiff{
				Field: name,
				Left:  l,
				Right: r,
			})
		}
	}

	compareField("Workspace", left.Workspace, right.Workspace)
	compareField("Strategy", left.Strategy, right.Strategy)
	compareField("Outcome", left.Outcome, right.Outcome)
	compareField("Iterations", fmt.Sprintf("%d", left.Iterations), fmt.Sprintf("%d", right.Iterations))
	compareField("RollbackCount", fmt.Sprintf("%d", left.RollbackCount), fmt.Sprintf("%d", right.RollbackCount))
	compareField("DurationMs", fmt.Sprintf("%d", left.DurationMs), fmt.Sprintf("%d", right.DurationMs))
	compareField("ConfirmMethod", left.ConfirmMethod, right.ConfirmMethod)

	rightGates := make(map[string]GateEntry, len(right.Gates))
	for _, g := range right.Gates {
		rightGates[g.Name] = g
	}

	visited := make(map[string]bool, len(right.Gates))

	for _, lg := range left.Gates {
		rg, ok := rightGates[lg.Name]
		if !ok {
			result.GateDiffs = append(result.GateDiffs, GateDiff{
				Gate: lg.Name,
				Type: DiffLeftOnly,
			})
			continue
		}
		visited[lg.Name] = true

		var fields []FieldDiff
		if lg.Status != rg.Status {
			fields = append(fields, FieldDiff{
				Field: "Status",
				Left:  lg.Status,
				Right: rg.Status,
			})
		}
		if lg.Score != rg.Score {
			fields = append(fields, FieldDiff{
				Field: "Score",
				Left:  fmt.Sprintf("%d", lg.Score),
				Right: fmt.Sprintf("%d", rg.Score),
			})
		}
		if len(fields) > 0 {
			result.GateDiffs = append(result.GateDiffs, GateDiff{
				Gate:   lg.Name,
				Type:   DiffChanged,
				Fields: fields,
			})
		}
	}

	for _, rg := range right.Gates {
		if !visited[rg.Name] {
			result.GateDiffs = append(result.GateDiffs, GateDiff{
				Gate: rg.Name,
				Type: DiffRightOnly,
			})
		}
	}

	return result
}
