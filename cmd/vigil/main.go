package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/vigil/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - autonomous quality-gate remediation loop",
	Long: "Vigil repeatedly validates quality gates against a git workspace, attempts\n" +
		"automatic remediation when they fail, and rolls back to a checkpoint when\n" +
		"remediation makes things worse.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vigil v0.1.0")
	},
}

var (
	configPath    string
	workspaceFlag string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the config file (default .vigil.yaml, then ~/.vigil/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace directory (overrides config)")
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath picks the config file: an explicit --config wins, then
// .vigil.yaml in dir, then ~/.vigil/config.yaml.
func resolveConfigPath(dir string) string {
	if configPath != "" {
		if filepath.IsAbs(configPath) {
			return configPath
		}
		return filepath.Join(dir, configPath)
	}
	local := filepath.Join(dir, ".vigil.yaml")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return local
	}
	return filepath.Join(home, ".vigil", "config.yaml")
}

func configFile() string {
	cwd, _ := os.Getwd()
	return resolveConfigPath(cwd)
}

// loadConfig loads the configuration, applying the workspace flag override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile())
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if workspaceFlag != "" {
		cfg.Workspace = workspaceFlag
	}
	return cfg, nil
}

func stateDBPath(cfg *config.Config) string {
	return filepath.Join(cfg.VigilDir(), "vigil.db")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
