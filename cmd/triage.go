package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/adws/internal/triage"
)

var triageFlags loopFlags

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Retry, remedy or escalate failed issues, once or on a schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		t := a.triager(triageFlags.dryRun)

		if !triageFlags.poll {
			res := t.RunTriageCycle(cmd.Context())
			if err := emit(res, func() { printTriageCycle(res) }); err != nil {
				return err
			}
			return cycleError("triage", res)
		}

		opts, err := triageFlags.options(a, "triage")
		if err != nil {
			return err
		}
		triageFlags.serveMetrics(cmd.Context(), a)
		stats := t.RunTriageLoop(cmd.Context(), opts)
		if err := emit(stats, func() {
			fmt.Printf("Ran %d cycles, %d with errors.\n", stats.Cycles, stats.CyclesWithErrors)
		}); err != nil {
			return err
		}
		return loopError("triage", stats)
	},
}

func printTriageCycle(res triage.CycleResult) {
	fmt.Printf("Candidates %d, triaged %d (tier 1: %d, tier 2: %d, tier 3: %d).\n",
		res.CandidatesFound, res.Triaged,
		res.ByTier[triage.TierRetry], res.ByTier[triage.TierAssisted], res.ByTier[triage.TierHuman])

	actions := make([]string, 0, len(res.ByAction))
	for action := range res.ByAction {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	for _, action := range actions {
		fmt.Printf("  %s: %d\n", action, res.ByAction[action])
	}
	for _, r := range res.Results {
		fmt.Printf("  %s tier %d %s", r.IssueID, r.Tier, r.Action)
		if r.Detail != "" {
			fmt.Printf(" (%s)", r.Detail)
		}
		fmt.Println()
	}
	for _, e := range res.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
}

func init() {
	triageFlags.register(triageCmd)
	rootCmd.AddCommand(triageCmd)
}
