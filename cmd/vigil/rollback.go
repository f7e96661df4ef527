package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/checkpoint"
	"github.com/lyndonlyu/vigil/internal/rollback"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [checkpoint-id]",
	Short: "Manually roll the workspace back to a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  manualRollback,
}

var rollbackStrategy string

func init() {
	rollbackCmd.Flags().StringVar(&rollbackStrategy, "strategy", "", "Rollback strategy (defaults to config)")
	rootCmd.AddCommand(rollbackCmd)
}

func manualRollback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if rollbackStrategy != "" {
		cfg.Strategy = rollbackStrategy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store := checkpoint.NewStore(cfg.Workspace)
	rev, err := store.Resolve(args[0])
	if err != nil {
		return err
	}
	cp := &checkpoint.Checkpoint{ID: args[0], Revision: rev}

	coord := rollback.NewCoordinator(cfg.Workspace, store, rollback.Options{
		Strategy:       cfg.ParsedStrategy,
		StrictVerify:   cfg.StrictVerify,
		CleanupCommand: cfg.CleanupCommand,
	})

	record, err := coord.Rollback(context.Background(), cp)
	if err != nil {
		return err
	}

	fmt.Printf("%s rolled back to %s (%s)\n", styleSuccess.Render("OK"), record.ToCheckpoint, record.Strategy)
	fmt.Printf("  backup ref: %s\n", record.BackupRef)
	if record.StashRef != "" {
		fmt.Printf("  stash:      %s\n", record.StashRef)
	}
	if record.VerifyNote != "" {
		fmt.Printf("  note: %s\n", record.VerifyNote)
	}
	return nil
}
