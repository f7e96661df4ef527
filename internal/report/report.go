// Package report builds a markdown summary of a remediation run and renders
// it for terminal display.
package report

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/lyndonlyu/vigil/internal/manifest"
)

// RepoFacts holds repository and host state gathered for a report.
type RepoFacts struct {
	Branch       string
	Head         string
	Checkpoints  int
	TrackedFiles int
	OS           string
	Arch         string
	GitVersion   string
}

// GatherRepoFacts inspects the workspace with git and records the host
// platform and tooling. Missing facts are left empty rather than failing
// the report.
func GatherRepoFacts(workspace string) RepoFacts {
	facts := RepoFacts{OS: runtime.GOOS, Arch: runtime.GOARCH}
	facts.Branch = gitOutput(workspace, "rev-parse", "--abbrev-ref", "HEAD")
	facts.Head = gitOutput(workspace, "rev-parse", "--short", "HEAD")

	refs := gitOutput(workspace, "for-each-ref", "--format=%(refname)", "refs/vigil/checkpoints/")
	if refs != "" {
		facts.Checkpoints = len(strings.Split(refs, "\n"))
	}
	if files := gitOutput(workspace, "ls-files"); files != "" {
		facts.TrackedFiles = len(strings.Split(files, "\n"))
	}
	if _, err := exec.LookPath("git"); err == nil {
		facts.GitVersion = strings.TrimPrefix(gitOutput(workspace, "--version"), "git version ")
	}
	return facts
}

// Build produces the markdown report for one run.
func Build(m *manifest.Manifest, facts RepoFacts) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", m.RunID)
	fmt.Fprintf(&b, "- **Outcome:** %s\n", m.Outcome)
	fmt.Fprintf(&b, "- **Started:** %s\n", m.Timestamp)
	fmt.Fprintf(&b, "- **Duration:** %dms\n", m.DurationMs)
	fmt.Fprintf(&b, "- **Iterations:** %d\n", m.Iterations)
	fmt.Fprintf(&b, "- **Rollbacks:** %d\n", m.RollbackCount)
	fmt.Fprintf(&b, "- **Strategy:** %s\n", m.Strategy)
	if m.ConfirmMethod != "" {
		fmt.Fprintf(&b, "- **Confirmed via:** %s\n", m.ConfirmMethod)
	}
	if m.DryRun {
		b.WriteString("- **Mode:** dry-run\n")
	}
	b.WriteString("\n")

	if facts.Branch != "" {
		b.WriteString("## Repository\n\n")
		fmt.Fprintf(&b, "- **Branch:** %s\n", facts.Branch)
		fmt.Fprintf(&b, "- **HEAD:** %s\n", facts.Head)
		fmt.Fprintf(&b, "- **Tracked files:** %d\n", facts.TrackedFiles)
		fmt.Fprintf(&b, "- **Checkpoints:** %d\n\n", facts.Checkpoints)
	}

	if facts.OS != "" {
		b.WriteString("## Host\n\n")
		fmt.Fprintf(&b, "- **Platform:** %s/%s\n", facts.OS, facts.Arch)
		git := facts.GitVersion
		if git == "" {
			git = "not found"
		}
		fmt.Fprintf(&b, "- **Git:** %s\n\n", git)
	}

	if len(m.Gates) > 0 {
		b.WriteString("## Gates\n\n")
		b.WriteString("| Gate | Status | Score | Details |\n")
		b.WriteString("|------|--------|-------|---------|\n")
		for _, g := range m.Gates {
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", g.Name, g.Status, g.Score, g.Details)
		}
		b.WriteString("\n")
	}

	if len(m.Rollbacks) > 0 {
		b.WriteString("## Rollbacks\n\n")
		b.WriteString("| Iteration | Checkpoint | Strategy | Verified | Backup |\n")
		b.WriteString("|-----------|------------|----------|----------|--------|\n")
		for _, r := range m.Rollbacks {
			verified := "no"
			if r.Verified {
				verified = "yes"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				r.Iteration, r.ToCheckpoint, r.Strategy, verified, r.BackupRef)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Render renders markdown for terminal display, falling back to the raw
// text if the renderer cannot be constructed.
func Render(text string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func gitOutput(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
