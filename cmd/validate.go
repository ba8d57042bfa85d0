package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/steps"
	"github.com/stevehiehn/adws/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate [workflows.yaml]",
	Short: "Validate a workflow registry file (default: the built-in registry)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			wfs []workflow.Workflow
			err error
		)
		if len(args) == 1 {
			wfs, err = workflow.LoadFile(args[0])
		} else {
			wfs, err = workflow.Load(workflow.DefaultSource())
		}
		if err == nil {
			err = workflow.Validate(wfs, steps.NewRegistry(steps.Deps{}).Known)
		}
		if err != nil {
			if jsonOutput {
				json.NewEncoder(os.Stdout).Encode(map[string]any{"valid": false, "error": err.Error()})
			} else {
				fmt.Fprintf(os.Stderr, "Validation failed: %s\n", err)
			}
			os.Exit(1)
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"valid": true, "workflows": len(wfs)})
		}
		fmt.Printf("%d workflows are valid.\n", len(wfs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
