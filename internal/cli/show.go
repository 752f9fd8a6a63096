package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [address]",
	Short: "Show the current state",
	Long: `Displays a human-readable view of the recorded state. With an address,
only that resource is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	_, s, err := readState(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		res := s.Find(args[0])
		if res == nil {
			return fmt.Errorf("resource %s not found in state", args[0])
		}
		if showJSON {
			return writeJSON(out, res)
		}
		showResource(out, res)
		return nil
	}

	if showJSON {
		return writeJSON(out, s)
	}

	fmt.Fprintf(out, "State: version=%d serial=%d lineage=%s\n", s.Version, s.Serial, s.Lineage)
	fmt.Fprintf(out, "Resources: %d\n\n", len(s.Resources))
	for _, res := range s.Resources {
		showResource(out, res)
		fmt.Fprintln(out)
	}
	printOutputs(out, s.Outputs)
	return nil
}

func showResource(w io.Writer, res *ir.ResourceState) {
	fmt.Fprintf(w, "# %s\n", res.Address())
	for _, k := range sortedKeys(res.Outputs) {
		fmt.Fprintf(w, "  %s = %s\n", k, formatValue(res.Outputs[k]))
	}
	if len(res.Dependencies) > 0 {
		fmt.Fprintf(w, "  depends on: %v\n", res.Dependencies)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
