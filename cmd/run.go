package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/artifact"
	"github.com/stevehiehn/adws/internal/engine"
	dagerrors "github.com/stevehiehn/adws/internal/errors"
	"github.com/stevehiehn/adws/internal/logging"
)

var runInputs []string

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Execute a workflow by name with explicit inputs",
	Long: "Execute a registered workflow directly. Unlike dispatch, any workflow may be run, " +
		"including ones issues cannot dispatch, and no issue is closed or annotated.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		wf, ok := a.workflows.Get(args[0])
		if !ok {
			return dagerrors.New("", dagerrors.UnknownWorkflowTagError,
				fmt.Sprintf("unknown workflow %q", args[0]),
				map[string]any{"valid_workflows": a.workflows.Names()})
		}

		result := a.engine.Execute(cmd.Context(), wf, engine.NewContext(parseInputs(runInputs)))
		logging.BestEffort(a.logger, "save_run_record", struct{}{}, func() (struct{}, error) {
			st, err := artifact.New(a.cfg.RunsDir(), result.RunID)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, st.WriteResult(result)
		})
		if err := emit(result, func() {
			if result.Success {
				fmt.Printf("Workflow %q completed successfully.\n", wf.Name)
			} else {
				fmt.Printf("Workflow %q failed at step %q.\n", wf.Name, result.FailedStep)
				if result.Error != nil {
					fmt.Printf("  Error: [%s] %s\n", result.Error.ErrorType, result.Error.Message)
				}
			}
			for _, s := range result.Steps {
				fmt.Printf("  %-20s %s\n", s.Name, s.Status)
			}
			fmt.Printf("Run ID: %s\n", result.RunID)
		}); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("workflow %s failed", wf.Name)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "Input values (key=value)")
	rootCmd.AddCommand(runCmd)
}
