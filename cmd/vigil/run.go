package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/audit"
	"github.com/lyndonlyu/vigil/internal/config"
	"github.com/lyndonlyu/vigil/internal/engine"
	"github.com/lyndonlyu/vigil/internal/manifest"
	"github.com/lyndonlyu/vigil/internal/statedb"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the remediation loop",
	Long: "Checkpoint the workspace, validate all configured gates, attempt automatic\n" +
		"remediation on failure, and roll back when remediation does not help. Stops\n" +
		"when all gates pass, the iteration budget runs out, or the circuit breaker trips.",
	RunE: runLoop,
}

var (
	runDryRun        bool
	runNoConfirm     bool
	runAutoApprove   bool
	runMaxIterations int
	runStrategy      string
)

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate gates without remediating or rolling back")
	runCmd.Flags().BoolVarP(&runNoConfirm, "yes", "y", false, "Skip the confirmation gate")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve automatically when the confirmation times out")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the iteration budget")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Override the rollback strategy (RESET, REVERT, CHECKOUT)")
	rootCmd.AddCommand(runCmd)
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDryRun {
		cfg.DryRun = true
	}
	if runNoConfirm {
		cfg.Confirmation.Enabled = false
	}
	if runAutoApprove {
		cfg.Confirmation.AutoApprove = true
	}
	if runMaxIterations > 0 {
		cfg.MaxIterations = runMaxIterations
	}
	if runStrategy != "" {
		cfg.Strategy = runStrategy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Gates) == 0 {
		return fmt.Errorf("no gates configured; add a gates section to %s", configFile())
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create dirs: %w", err)
	}

	journal, err := audit.New(filepath.Join(cfg.VigilDir(), "journal"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: journal init failed: %v\n", err)
	}

	reportConfigDrift(cfg, journal)

	opts := engine.Options{Config: cfg, Stdout: os.Stdout}
	if journal != nil {
		opts.Journal = journal
	}

	summary, err := engine.New(opts).Run(context.Background())
	if err != nil {
		return err
	}

	persistRun(cfg, summary)
	if journal != nil {
		// Best-effort daily anchor of the journal chain.
		_, _ = audit.MaybeCreateAnchor(journal, cfg.Workspace)
	}
	printSummary(summary)

	switch summary.Outcome {
	case engine.Succeeded:
		return nil
	case engine.NotApproved:
		fmt.Println(styleDim.Render("Cancelled."))
		return nil
	default:
		return fmt.Errorf("run %s finished %s: %s", summary.RunID, summary.Outcome, summary.Detail)
	}
}

// reportConfigDrift journals and prints config edits made since the last
// run, so behavior shifts can be traced to them.
func reportConfigDrift(cfg *config.Config, journal *audit.Journal) {
	tracker := audit.NewDriftTracker(cfg.VigilDir())
	changes, err := tracker.Check([]string{configFile()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: drift check failed: %v\n", err)
		return
	}
	for _, ch := range changes {
		if ch.OldChecksum == "" {
			continue // first sighting, nothing to compare against
		}
		fmt.Println(styleDim.Render("note: config changed since the last run: " + ch.File))
		if journal != nil {
			_, _ = journal.Append("", 0, audit.EventConfigDrift, ch.File)
		}
	}
}

// persistRun records the outcome in the state database and the manifest
// store. Persistence failures are warnings; the loop result stands.
func persistRun(cfg *config.Config, summary *engine.Summary) {
	db, err := statedb.Open(stateDBPath(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: state db open failed: %v\n", err)
	} else {
		defer db.Close()
		if err := db.InsertRun(summary.RunID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: state db insert failed: %v\n", err)
		} else {
			if err := db.FinishRun(summary.RunID, summary.OutcomeName(),
				summary.Iterations, summary.RollbackCount()); err != nil {
				fmt.Fprintf(os.Stderr, "warning: state db update failed: %v\n", err)
			}
			for _, rb := range summary.Rollbacks {
				row := statedb.RollbackRow{
					RunID:        summary.RunID,
					Iteration:    rb.Iteration,
					FromRevision: rb.FromRevision,
					ToCheckpoint: rb.ToCheckpoint,
					Strategy:     rb.Strategy,
					BackupRef:    rb.BackupRef,
					StashRef:     rb.StashRef,
					Verified:     rb.Verified,
				}
				if err := db.InsertRollback(row); err != nil {
					fmt.Fprintf(os.Stderr, "warning: rollback record failed: %v\n", err)
				}
			}
		}
	}

	store := manifest.NewStore(filepath.Join(cfg.VigilDir(), "runs"))
	if err := store.Save(buildManifest(cfg, summary)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: manifest save failed: %v\n", err)
	}
}

func buildManifest(cfg *config.Config, summary *engine.Summary) *manifest.Manifest {
	m := &manifest.Manifest{
		RunID:         summary.RunID,
		Timestamp:     summary.StartedAt.Format(time.RFC3339),
		Workspace:     cfg.Workspace,
		Strategy:      cfg.Strategy,
		Outcome:       summary.OutcomeName(),
		Iterations:    summary.Iterations,
		RollbackCount: summary.RollbackCount(),
		DurationMs:    summary.EndedAt.Sub(summary.StartedAt).Milliseconds(),
		DryRun:        cfg.DryRun,
	}
	if summary.Decision != nil {
		m.ConfirmMethod = summary.Decision.MethodName()
	}
	for _, r := range summary.GateResults {
		m.Gates = append(m.Gates, manifest.GateEntry{
			Name:    r.Gate,
			Status:  r.StatusName(),
			Score:   r.Score,
			Details: r.Details,
		})
	}
	for _, rb := range summary.Rollbacks {
		m.Rollbacks = append(m.Rollbacks, manifest.RollbackEntry{
			Iteration:    rb.Iteration,
			ToCheckpoint: rb.ToCheckpoint,
			Strategy:     rb.Strategy,
			BackupRef:    rb.BackupRef,
			StashRef:     rb.StashRef,
			Verified:     rb.Verified,
		})
	}
	return m
}

func printSummary(summary *engine.Summary) {
	fmt.Println()
	fmt.Printf("Run %s: %s\n", summary.RunID, renderOutcome(summary.OutcomeName()))
	for _, r := range summary.GateResults {
		fmt.Printf("  %s %s (score %d)\n", renderGateStatus(r.StatusName()), r.Gate, r.Score)
	}
	fmt.Printf("  %d iteration(s), %d rollback(s)\n", summary.Iterations, summary.RollbackCount())
	if summary.Outcome == engine.CriticalFailure {
		fmt.Println(styleError.Render("  manual recovery required:"))
		fmt.Printf("    backup ref: %s\n", summary.BackupRef)
		if summary.StashRef != "" {
			fmt.Printf("    stash:      %s\n", summary.StashRef)
		}
	}
	fmt.Println(styleDim.Render("  details: vigil report " + summary.RunID))
}
