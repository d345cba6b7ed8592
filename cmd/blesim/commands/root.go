// Package commands is blesim's cobra command tree, mirroring the
// teacher's cmd/gobfdctl/commands package shape (root.go + one file per
// subcommand) but for a single batch-job binary rather than a client of a
// remote daemon.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// scenarioPath is the shared "--config" flag every subcommand that touches
// a scenario file reads from.
var scenarioPath string

var rootCmd = &cobra.Command{
	Use:   "blesim",
	Short: "BLE connected-piconet discrete-event simulator",
	Long:  "blesim runs scenario-driven simulations of BLE connected piconets with pluggable AFH channel classifiers.",
	// Silence cobra's built-in usage/error printing so we control it,
	// matching gobfdctl's root command.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "config", "", "path to scenario YAML (defaults built in if unset)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
