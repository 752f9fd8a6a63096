package cli

import (
	"fmt"

	"github.com/picklr-io/sitestack/internal/stack"
	"github.com/picklr-io/sitestack/internal/state"
	"github.com/spf13/cobra"
)

var (
	applyAutoApprove bool
	applyDryRun      bool
	applyProperties  map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update the deployment",
	Long: `Builds or changes infrastructure according to the project file and
records the result in state.

With --dry-run every change is applied to an in-memory provider instead, which
shows the outputs the deployment would have without touching AWS or state.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Apply to an in-memory provider and leave state untouched")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Override project properties (format: key=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := openWorkspace(ctx, applyProperties, applyDryRun)
	if err != nil {
		return err
	}

	fmt.Fprint(out, "Building resources... ")
	cfg, err := stack.Build(ws.project)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("failed to build resources: %w", err)
	}
	fmt.Fprintln(out, "OK")

	return state.WithLock(ctx, ws.backend, func() error {
		current, err := ws.backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		plan, err := ws.engine.CreatePlan(ctx, cfg, current)
		if err != nil {
			return fmt.Errorf("plan generation failed: %w", err)
		}

		if len(plan.Changes) == 0 {
			fmt.Fprintln(out, "No changes. Infrastructure is up-to-date.")
			printOutputs(out, current.Outputs)
			return nil
		}

		fmt.Fprintln(out, "\nSitestack will perform the following actions:")
		renderPlanChanges(out, plan)
		renderPlanSummary(out, plan)

		if !applyAutoApprove && !applyDryRun {
			if !confirm(cmd.InOrStdin(), out, "Do you want to perform these actions?") {
				fmt.Fprintln(out, "Apply cancelled.")
				return nil
			}
		}

		fmt.Fprintf(out, "\nApplying %d changes...\n", len(plan.Changes))
		newState, applyErr := ws.engine.ApplyPlanWithCallback(ctx, plan, current, progressPrinter(out))

		if applyDryRun {
			if applyErr != nil {
				return fmt.Errorf("apply failed: %w", applyErr)
			}
			fmt.Fprintln(out, "\nDry run complete. State was not modified.")
			printOutputs(out, newState.Outputs)
			return nil
		}

		// Partial state is written on failure so successful changes are kept.
		if newState != nil {
			if err := ws.backend.Write(ctx, newState); err != nil {
				if applyErr != nil {
					return fmt.Errorf("apply failed: %w (and writing state failed: %v)", applyErr, err)
				}
				return fmt.Errorf("failed to write state: %w", err)
			}
		}
		if applyErr != nil {
			return fmt.Errorf("apply failed: %w", applyErr)
		}

		fmt.Fprintf(out, "\n%sApply complete! Resources: %d added, %d changed, %d replaced, %d destroyed.%s\n",
			colorize(colorGreen), plan.Summary.Create, plan.Summary.Update, plan.Summary.Replace, plan.Summary.Delete, colorize(colorReset))
		printOutputs(out, newState.Outputs)
		return nil
	})
}
