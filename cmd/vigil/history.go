package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/statedb"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	RunE:  showHistory,
}

var historyCount int

func init() {
	historyCmd.Flags().IntVarP(&historyCount, "count", "n", 10, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := statedb.Open(stateDBPath(cfg))
	if err != nil {
		return fmt.Errorf("state db error: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(historyCount)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s %s  %d iteration(s), %d rollback(s)  %s\n",
			r.StartedAt, renderOutcome(r.Outcome), r.Iterations, r.Rollbacks, styleDim.Render(r.ID))
	}
	return nil
}
