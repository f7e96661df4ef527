package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage workspace checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints in creation order",
	RunE:  listCheckpoints,
}

var checkpointPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete checkpoints older than the retention window",
	RunE:  pruneCheckpoints,
}

var pruneDays int

func init() {
	checkpointPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Retention window in days (defaults to config)")
	checkpointCmd.AddCommand(checkpointListCmd, checkpointPruneCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func listCheckpoints(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := checkpoint.NewStore(cfg.Workspace)
	cps, err := store.List()
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Println("No checkpoints.")
		return nil
	}

	fmt.Printf("%-40s %-10s %-10s %s\n", "ID", "ITERATION", "REVISION", "CREATED")
	for _, cp := range cps {
		rev := cp.Revision
		if len(rev) > 8 {
			rev = rev[:8]
		}
		fmt.Printf("%-40s %-10d %-10s %s\n", cp.ID, cp.Iteration, rev, cp.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func pruneCheckpoints(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	days := pruneDays
	if days == 0 {
		days = cfg.RetentionDays
	}

	store := checkpoint.NewStore(cfg.Workspace)
	pruned, err := store.Prune(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d checkpoint(s) older than %d day(s).\n", pruned, days)
	return nil
}
