package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newToolsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List or invoke evidence tools directly",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, def := range a.investigator.ListTools() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", def.Name, def.Description)
			}
			return nil
		},
	})

	var rawArgs string
	call := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke one tool with JSON arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{}
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.investigator.InvokeTool(cmd.Context(), args[0], toolArgs)
			if err != nil {
				return err
			}
			var pretty any
			if err := json.Unmarshal(out, &pretty); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pretty)
		},
	}
	call.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object")
	cmd.AddCommand(call)
	return cmd
}
