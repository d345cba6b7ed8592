package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/blesim/internal/scenario"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario file without running it",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			fmt.Printf("scenario valid: %d node(s), %d connection(s), classifier=%s\n",
				len(cfg.Nodes), len(cfg.Connections), cfg.Classifier.Kind)
			return nil
		},
	}
}

// loadScenario loads path, or the built-in defaults when path is empty.
func loadScenario(path string) (*scenario.Config, error) {
	if path == "" {
		cfg := scenario.DefaultConfig()
		if err := scenario.Validate(cfg); err != nil {
			return nil, fmt.Errorf("default scenario: %w", err)
		}
		return cfg, nil
	}
	cfg, err := scenario.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	return cfg, nil
}
