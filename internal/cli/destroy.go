package cli

import (
	"fmt"

	"github.com/picklr-io/sitestack/internal/state"
	"github.com/spf13/cobra"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys every resource recorded in state, dependents first.

This command is the inverse of 'sitestack apply'. The site bucket is emptied
before it is deleted.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := openWorkspace(ctx, nil, false)
	if err != nil {
		return err
	}

	return state.WithLock(ctx, ws.backend, func() error {
		current, err := ws.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		plan, err := ws.engine.DestroyPlan(ctx, current)
		if err != nil {
			return fmt.Errorf("failed to plan destroy: %w", err)
		}
		if len(plan.Changes) == 0 {
			fmt.Fprintln(out, "Nothing to destroy.")
			return nil
		}

		renderPlanChanges(out, plan)
		renderPlanSummary(out, plan)

		if !destroyAutoApprove {
			if !confirm(cmd.InOrStdin(), out, "Do you really want to destroy all resources?") {
				fmt.Fprintln(out, "Destroy cancelled.")
				return nil
			}
		}

		newState, applyErr := ws.engine.ApplyPlanWithCallback(ctx, plan, current, progressPrinter(out))
		if newState != nil {
			if err := ws.backend.Write(ctx, newState); err != nil && applyErr == nil {
				return fmt.Errorf("failed to write state: %w", err)
			}
		}
		if applyErr != nil {
			return fmt.Errorf("destroy failed: %w", applyErr)
		}

		fmt.Fprintf(out, "\n%sDestroy complete! Resources: %d destroyed.%s\n",
			colorize(colorGreen), plan.Summary.Delete, colorize(colorReset))
		return nil
	})
}
