package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a waiting run by creating the confirmation marker",
	RunE:  approveRun,
}

func init() {
	rootCmd.AddCommand(approveCmd)
}

func approveRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	marker := cfg.Confirmation.MarkerPath
	if !filepath.IsAbs(marker) {
		marker = filepath.Join(cfg.Workspace, marker)
	}
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(marker, nil, 0644); err != nil {
		return err
	}

	fmt.Printf("%s approval marker written to %s\n", styleSuccess.Render("OK"), marker)
	return nil
}
