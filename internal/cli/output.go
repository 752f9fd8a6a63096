package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from state",
	Long: `Reads output values from the state.

If no name is given, all outputs are displayed. If a name is given,
only that output's value is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

func runOutput(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := loadProject(ctx, nil)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, p)
	if err != nil {
		return err
	}
	s, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	return writeOutputs(cmd.OutOrStdout(), s.Outputs, name, outputJSON)
}

func writeOutputs(w io.Writer, outputs map[string]any, name string, asJSON bool) error {
	if name != "" {
		val, ok := outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found", name)
		}
		if asJSON {
			data, err := json.Marshal(val)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
		} else {
			fmt.Fprintln(w, formatOutput(val))
		}
		return nil
	}

	if asJSON {
		if outputs == nil {
			outputs = map[string]any{}
		}
		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(outputs) == 0 {
		fmt.Fprintln(w, "No outputs. Run 'sitestack apply' first.")
		return nil
	}
	for _, k := range sortedKeys(outputs) {
		fmt.Fprintf(w, "%s = %s\n", k, formatOutput(outputs[k]))
	}
	return nil
}
