package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/medparse/medrec/internal/config"
	"github.com/medparse/medrec/internal/gate"
)

var gateConfig string

func init() {
	gateCmd.Flags().StringVar(&gateConfig, "config", "", "YAML file of metric ceilings (overrides the global config)")
	rootCmd.AddCommand(gateCmd)
}

var gateCmd = &cobra.Command{
	Use:   "gate <quality_summary.json>",
	Short: "Fail the build when audit counters exceed their ceilings",
	Long: `Compare an audit summary against the configured ceilings. Ceilings
default to zero, can be raised in the global config under gates: or in a
standalone --config YAML mapping, and per-metric environment variables
(GATE_MISSING_DOI=3) win over both.

Exit status: 0 when all gates pass, 1 on any violation, 2 on usage errors.

Examples:
  medrec gate out/reports_ci/quality_summary.json
  GATE_MISSING_DOI=5 medrec gate out/reports_ci/quality_summary.json`,
	Args: cobra.ExactArgs(1),
	RunE: runGate,
}

type gateResult struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations,omitempty"`
}

func runGate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		exitWithError(ExitGateUsage, "reading summary: %v", err)
	}
	var summary map[string]int
	if err := json.Unmarshal(data, &summary); err != nil {
		exitWithError(ExitGateUsage, "parsing summary: %v", err)
	}

	ceilings := gate.Default()
	if gateConfig != "" {
		raw, err := os.ReadFile(gateConfig)
		if err != nil {
			exitWithError(ExitGateUsage, "reading ceilings: %v", err)
		}
		var fileCeilings map[string]int
		if err := yaml.Unmarshal(raw, &fileCeilings); err != nil {
			exitWithError(ExitGateUsage, "parsing ceilings: %v", err)
		}
		ceilings.Merge(fileCeilings)
	} else {
		ceilings.Merge(config.GetGates())
	}
	if err := ceilings.ApplyEnv(os.LookupEnv); err != nil {
		exitWithError(ExitGateUsage, "%v", err)
	}

	violations := gate.Check(summary, ceilings)
	if len(violations) == 0 {
		if humanOutput {
			fmt.Println("CI gates passed.")
		} else {
			outputJSON(gateResult{Passed: true})
		}
		return nil
	}

	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.String())
	}
	if humanOutput {
		fmt.Printf("CI gate failed: %s\n", strings.Join(msgs, ", "))
	} else {
		outputJSON(gateResult{Passed: false, Violations: msgs})
	}
	os.Exit(ExitGateFail)
	return nil
}
