package precheck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatRunResult renders the preflight results for terminal output.
func FormatRunResult(result RunResult) string {
	var b strings.Builder
	b.WriteString("Workspace preflight\n\n")
	for _, r := range result.Results {
		tag := "[PASS]"
		if !r.Passed {
			tag = "[FAIL]"
		}
		fmt.Fprintf(&b, "  %s %-24s %s\n", tag, r.Name, r.Message)
	}
	b.WriteString("\n")
	if result.AllPassed {
		fmt.Fprintf(&b, "Ready to run (%s).\n", result.Duration)
	} else {
		fmt.Fprintf(&b, "Not ready: fix the failing checks before running (%s).\n", result.Duration)
	}
	return b.String()
}

// FormatRunResultJSON returns the results as indented JSON for --format json.
func FormatRunResultJSON(result RunResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("precheck: encode results: %w", err)
	}
	return string(data), nil
}
