package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate metrics over past runs",
	RunE:  showMetrics,
}

var metricsJSON bool

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output JSONL instead of a table")
	rootCmd.AddCommand(metricsCmd)
}

func showMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	collected, err := metrics.NewCollector(cfg.VigilDir()).Collect()
	if err != nil {
		return err
	}

	if metricsJSON {
		out, err := metrics.FormatJSONL(collected)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
	fmt.Print(metrics.FormatHuman(collected))
	return nil
}
