package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	dispatchIssue string
	dispatchList  bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the workflow tagged in one issue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if dispatchList {
			names := a.workflows.DispatchableNames()
			return emit(map[string]any{"dispatchable": names}, func() {
				fmt.Println(strings.Join(names, "\n"))
			})
		}
		if dispatchIssue == "" {
			return fmt.Errorf("one of --issue or --list is required")
		}

		res, err := a.dispatcher.DispatchAndExecute(cmd.Context(), dispatchIssue)
		if err != nil {
			return err
		}
		if err := emit(res, func() {
			status := "succeeded"
			if !res.Success {
				status = "failed"
			}
			fmt.Printf("Issue %s: workflow %q %s (%s).\n", res.IssueID, res.WorkflowExecuted, status, res.FinalizeAction)
			if res.Summary != "" {
				fmt.Printf("  %s\n", res.Summary)
			}
			if res.RunID != "" {
				fmt.Printf("Run ID: %s\n", res.RunID)
			}
		}); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("workflow %s failed for issue %s", res.WorkflowExecuted, res.IssueID)
		}
		return nil
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchIssue, "issue", "", "Issue id to dispatch")
	dispatchCmd.Flags().BoolVar(&dispatchList, "list", false, "List dispatchable workflow names")
	rootCmd.AddCommand(dispatchCmd)
}
