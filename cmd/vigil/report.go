package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/manifest"
	"github.com/lyndonlyu/vigil/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Render a report for a run (defaults to the most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showReport,
}

var reportRaw bool

func init() {
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "Print raw markdown instead of rendering")
	rootCmd.AddCommand(reportCmd)
}

func showReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := manifest.NewStore(filepath.Join(cfg.VigilDir(), "runs"))

	var m *manifest.Manifest
	if len(args) == 1 {
		m, err = store.Load(args[0])
		if err != nil {
			return fmt.Errorf("run %s not found: %w", args[0], err)
		}
	} else {
		recent, err := store.Recent(1)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			fmt.Println("No runs yet.")
			return nil
		}
		m = recent[0]
	}

	md := report.Build(m, report.GatherRepoFacts(cfg.Workspace))
	if reportRaw {
		fmt.Println(md)
		return nil
	}
	fmt.Println(report.Render(md))
	return nil
}
