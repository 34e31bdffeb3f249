package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/talgya/heatsim/internal/engine"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and scenario without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, map[string]string{"scenario": "scenario.file"})
			if err != nil {
				return err
			}
			table, err := cfg.HeatingTable()
			if err != nil {
				return err
			}
			sc, err := engine.LoadScenario(cfg.Scenario.File)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration ok\n")
			fmt.Fprintf(out, "  steps:        %d (from %d)\n", cfg.Run.Steps, cfg.Run.StartYear)
			fmt.Fprintf(out, "  houseowners:  %d\n", cfg.Run.Houseowners)
			fmt.Fprintf(out, "  plumbers:     %d\n", cfg.Run.Plumbers)
			fmt.Fprintf(out, "  advisors:     %d\n", cfg.Run.Advisors)
			fmt.Fprintf(out, "  systems:      %d in table, %d in play\n", len(table.Specs), len(cfg.Kinds()))

			milieus := make([]string, 0, len(cfg.Milieus))
			for name := range cfg.Milieus {
				milieus = append(milieus, name)
			}
			sort.Strings(milieus)
			fmt.Fprintf(out, "  milieus:      %v\n", milieus)
			fmt.Fprintf(out, "  scenario:     %s (%d interventions)\n", sc.Name, len(sc.Interventions))
			return nil
		},
	}
	cmd.Flags().String("scenario", "", "scenario YAML file to check")
	return cmd
}
