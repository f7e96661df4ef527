package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/precheck"
)

var precheckFormat string

var precheckCmd = &cobra.Command{
	Use:   "precheck",
	Short: "Run environment precheck",
	RunE:  runPrecheck,
}

func init() {
	precheckCmd.Flags().StringVar(&precheckFormat, "format", "", "Output format (json)")
	rootCmd.AddCommand(precheckCmd)
}

func runPrecheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result := precheck.DefaultRunner(cfg.Workspace).Run()

	if precheckFormat == "json" {
		out, err := precheck.FormatRunResultJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(precheck.FormatRunResult(result))
	if !result.AllPassed {
		return fmt.Errorf("precheck failed")
	}
	return nil
}
