package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatDiffHuman returns a human-readable table representation of a DiffResult.
// When no differences exist it returns "No differences found."
func FormatDiffHuman(d *DiffResult) string {
	if len(d.Fields) == 0 && len(d.GateDiffs) == 0 {
		return "No differences found."
	}

	var b strings.Builder

	fmt.Fprintf(&b, "=== Run Diff: %s vs %s ===\n", d.LeftRunID, d.RightRunID)

	if len(d.Fields) > 0 {
		b.WriteString("\n")

		fieldW := len("Field")
		leftW := len(d.LeftRunID)
		rightW := len(d.RightRunID)

		for _, f := range d.Fields {
			if len(f.Field) > fieldW {
				fieldW = len(f.Field)
			}
			if len(f.Left) > leftW {
				leftW = len(f.Left)
			}
			if len(f.Right) > rightW {
				rightW = len(f.Right)
			}
		}

		headerFmt := fmt.Sprintf("%%-%ds | %%-%ds | %%s\n", fieldW, leftW)
		fmt.Fprintf(&b, headerFmt, "Field", d.LeftRunID, d.RightRunID)

		lineLen := fieldW + 3 + leftW + 3 + rightW
		b.WriteString(strings.Repeat("-", lineLen))
		b.WriteString("\n")

		rowFmt := fmt.Sprintf("%%-%ds | %%-%ds | %%s\n", fieldW, leftW)
		for _, f := range d.Fields {
			fmt.Fprintf(&b, rowFmt, f.Field, f.Left, f.Right)
		}
	}

	if len(d.GateDiffs) > 0 {
		b.WriteString("\nGate Differences:\n")
		for _, gd := range d.GateDiffs {
			switch gd.Type {
			case DiffLeftOnly:
				fmt.Fprintf(&b, "  [left_only]  %s: (not in %s)\n", gd.Gate, d.RightRunID)
			case DiffRightOnly:
				fmt.Fprintf(&b, "  [right_only] %s: (not in %s)\n", gd.Gate, d.LeftRunID)
			case DiffChanged:
				for _, f := range gd.Fields {
					fmt.Fprintf(&b, "  [changed]    %s: %s %s -> %s\n", gd.Gate, f.Field, f.Left, f.Right)
				}
			}
		}
	}

	return b.String()
}

// FormatDiffJSON returns the DiffResult serialised as indented JSON.
func FormatDiffJSON(d *DiffResult) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
