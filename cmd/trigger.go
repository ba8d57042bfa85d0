package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/trigger"
)

var (
	triggerFlags       loopFlags
	triggerConcurrency int
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Dispatch every ready issue, once or on a schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		concurrency := a.cfg.Trigger.Concurrency
		if cmd.Flags().Changed("concurrency") {
			concurrency = triggerConcurrency
		}
		t := trigger.New(a.tracker, a.dispatcher,
			trigger.WithConcurrency(concurrency),
			trigger.WithDryRun(triggerFlags.dryRun),
			trigger.WithLogger(a.logger),
			trigger.WithMetrics(a.metrics),
		)

		if !triggerFlags.poll {
			res := t.RunPollCycle(cmd.Context())
			if err := emit(res, func() { printTriggerCycle(res) }); err != nil {
				return err
			}
			return cycleError("trigger", res)
		}

		opts, err := triggerFlags.options(a, "trigger")
		if err != nil {
			return err
		}
		triggerFlags.serveMetrics(cmd.Context(), a)
		stats := t.RunTriggerLoop(cmd.Context(), opts)
		if err := emit(stats, func() {
			fmt.Printf("Ran %d cycles, %d with errors.\n", stats.Cycles, stats.CyclesWithErrors)
		}); err != nil {
			return err
		}
		return loopError("trigger", stats)
	},
}

func printTriggerCycle(res trigger.CycleResult) {
	if res.DryRun {
		fmt.Printf("Dry run: %d open issues, %d ready.\n", res.IssuesFound, len(res.Ready))
		for _, id := range res.Ready {
			fmt.Printf("  would dispatch %s\n", id)
		}
		return
	}
	fmt.Printf("Found %d, dispatched %d, succeeded %d, failed %d, skipped %d.\n",
		res.IssuesFound, res.IssuesDispatched, res.IssuesSucceeded, res.IssuesFailed, res.IssuesSkipped)
	for _, o := range res.Outcomes {
		fmt.Printf("  %s: %s\n", o.IssueID, o.Outcome)
	}
	for _, e := range res.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
}

func init() {
	triggerFlags.register(triggerCmd)
	triggerCmd.Flags().IntVar(&triggerConcurrency, "concurrency", 1, "Issues dispatched in parallel per cycle")
	rootCmd.AddCommand(triggerCmd)
}
