package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/picklr-io/sitestack/internal/stack"
	"github.com/spf13/cobra"
)

var (
	planOutFile    string
	planDryRun     bool
	planProperties map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the changes apply would make",
	Long: `Builds the resources described by the project and compares them with
the recorded state.

The plan shows:
  • Resources to be created
  • Resources to be updated (with diff)
  • Resources to be replaced or deleted`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to file")
	planCmd.Flags().BoolVar(&planDryRun, "dry-run", false, "Plan without contacting AWS")
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Override project properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := openWorkspace(ctx, planProperties, planDryRun)
	if err != nil {
		return err
	}

	cfg, err := stack.Build(ws.project)
	if err != nil {
		return fmt.Errorf("failed to build resources: %w", err)
	}

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
	} else {
		fmt.Fprintln(out, "Sitestack will perform the following actions:")
		renderPlanChanges(out, plan)
		renderPlanSummary(out, plan)
	}

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write plan: %w", err)
		}
		fmt.Fprintf(out, "\nPlan saved to %s\n", planOutFile)
	}
	return nil
}
