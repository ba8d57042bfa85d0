package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/steps"
	"github.com/stevehiehn/adws/internal/template"
	"github.com/stevehiehn/adws/internal/workflow"
)

type stepExplanation struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Function    string   `json:"function,omitempty"`
	Description string   `json:"description,omitempty"`
	Command     string   `json:"command,omitempty"`
	Output      string   `json:"output"`
	Inputs      []string `json:"inputs,omitempty"`
	AlwaysRun   bool     `json:"always_run,omitempty"`
}

type workflowExplanation struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Dispatchable bool              `json:"dispatchable"`
	Steps        []stepExplanation `json:"steps"`
}

var explainCmd = &cobra.Command{
	Use:   "explain <workflow>",
	Short: "Show a workflow's steps without executing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wfs, err := loadWorkflows(cfg.WorkflowsFile)
		if err != nil {
			return err
		}
		reg, err := workflow.NewRegistry(wfs)
		if err != nil {
			return err
		}
		wf, ok := reg.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown workflow %q (known: %s)", args[0], strings.Join(reg.Names(), ", "))
		}

		ex := explain(wf, steps.NewRegistry(steps.Deps{}))
		return emit(ex, func() {
			fmt.Printf("Workflow: %s\n", ex.Name)
			if ex.Description != "" {
				fmt.Printf("  %s\n", ex.Description)
			}
			fmt.Printf("  Dispatchable: %t\n\n", ex.Dispatchable)
			for _, s := range ex.Steps {
				fmt.Printf("Step: %s (%s)\n", s.Name, s.Kind)
				if s.Function != "" {
					fmt.Printf("  Function: %s\n", s.Function)
				}
				if s.Description != "" {
					fmt.Printf("  Description: %s\n", s.Description)
				}
				if s.Command != "" {
					fmt.Printf("  Command: %s\n", s.Command)
				}
				if len(s.Inputs) > 0 {
					fmt.Printf("  Inputs: %s\n", strings.Join(s.Inputs, ", "))
				}
				fmt.Printf("  Output: %s\n\n", s.Output)
			}
		})
	},
}

func explain(wf *workflow.Workflow, reg *steps.Registry) workflowExplanation {
	ex := workflowExplanation{Name: wf.Name, Description: wf.Description, Dispatchable: wf.Dispatchable}
	for _, st := range wf.Steps {
		se := stepExplanation{
			Name:      st.Name,
			Kind:      st.Kind(),
			Function:  st.Function,
			Command:   st.Command,
			Output:    st.OutputKey(),
			AlwaysRun: st.AlwaysRun,
		}
		if st.Shell {
			se.Inputs = template.References(st.Command)
		} else {
			se.Description = reg.Describe(st.Function)
		}
		ex.Steps = append(ex.Steps, se)
	}
	return ex
}

func init() {
	rootCmd.AddCommand(explainCmd)
}
