package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/blesim/internal/console"
)

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run a scenario to completion, then open an interactive inspection shell",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConsole(scenarioPath)
		},
	}
}

func runConsole(path string) error {
	cfg, err := loadScenario(path)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	sim, err := buildSimulation(cfg, logger)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	fmt.Printf("running scenario (%d node(s), %d connection(s), %.1fs simulated)...\n",
		len(cfg.Nodes), len(cfg.Connections), cfg.DurationSeconds)
	sim.run()
	fmt.Println("simulation complete, entering console -- type help for commands")

	return console.NewShell(sim.reg, os.Stdin, os.Stdout).Run()
}
