package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-investigator/internal/services"
)

type investigateFlags struct {
	all        bool
	transcript bool
}

func newInvestigateCmd(root *rootFlags) *cobra.Command {
	flags := &investigateFlags{}
	cmd := &cobra.Command{
		Use:   "investigate [alert-id]",
		Short: "Investigate one alert, or every dataset alert with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if flags.all {
				outcomes, err := a.investigator.InvestigateAll(cmd.Context())
				if err != nil {
					return err
				}
				for _, outcome := range outcomes {
					printSummary(out, outcome)
				}
				return nil
			}

			outcome, err := a.investigator.InvestigateByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flags.transcript {
				return writeJSON(out, outcome)
			}
			return writeJSON(out, outcome.Record)
		},
	}
	cmd.Flags().BoolVar(&flags.all, "all", false, "Investigate every alert in the dataset in parallel")
	cmd.Flags().BoolVar(&flags.transcript, "transcript", false, "Print the full result including the transcript")
	return cmd
}

func printSummary(w io.Writer, outcome *services.Outcome) {
	root := outcome.Record.MostLikelyRootCause
	fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
		outcome.Alert.AlertID,
		outcome.Reason,
		root.Category,
		root.Confidence,
		root.Hypothesis,
		outcome.ArtifactPath,
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
