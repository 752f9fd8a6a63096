package cli

import (
	"fmt"

	"github.com/picklr-io/sitestack/internal/engine"
	"github.com/picklr-io/sitestack/internal/stack"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the project file",
	Long: `Validates the project file and checks that the resources it describes
form an acyclic dependency graph. Function archives are built as part of the
check.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Checking %s... ", configFile)
	p, err := loadProject(cmd.Context(), nil)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return err
	}
	fmt.Fprintln(out, "OK")

	fmt.Fprint(out, "Checking resources... ")
	cfg, err := stack.Build(p)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	if _, err := engine.BuildDAG(cfg.Resources); err != nil {
		fmt.Fprintln(out, "FAILED")
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintf(out, "OK (%d resources)\n", len(cfg.Resources))

	fmt.Fprintln(out, "\nProject is valid!")
	return nil
}
