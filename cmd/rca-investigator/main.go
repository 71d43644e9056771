// rca-investigator runs multi-role root-cause investigations over a telemetry
// dataset.
//
// Usage:
//
//	rca-investigator investigate <alert-id> [--config=<path>] [--data=<dir>]
//	rca-investigator investigate --all
//	rca-investigator serve
//	rca-investigator tools list
//	rca-investigator tools call <name> --args='{"service":"payment-api"}'
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	backend    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "rca-investigator",
		Short: "Multi-role root-cause investigation over telemetry",
		Long: "rca-investigator drives Planner, Investigator and Reflector roles over\n" +
			"alerts, metrics, logs, changes and the service map, and emits a structured RCA record.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data", "", "Dataset directory (overrides data.dir)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides logging.level)")
	root.PersistentFlags().StringVar(&flags.backend, "backend", "", "Role backend: heuristic, openai or replay")

	root.AddCommand(newInvestigateCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newToolsCmd(flags))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
