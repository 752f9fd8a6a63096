package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/state"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and edit recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func readState(ctx context.Context) (state.Backend, *ir.State, error) {
	p, err := loadProject(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	backend, err := openBackend(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	s, err := backend.Read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read state: %w", err)
	}
	return backend, s, nil
}

func runStateList(cmd *cobra.Command, args []string) error {
	_, s, err := readState(cmd.Context())
	if err != nil {
		return err
	}
	listResources(cmd.OutOrStdout(), s)
	return nil
}

func listResources(w io.Writer, s *ir.State) {
	if len(s.Resources) == 0 {
		fmt.Fprintln(w, "No resources in state.")
		return
	}
	fmt.Fprintf(w, "State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, res := range s.Resources {
		fmt.Fprintf(w, "  %s\n", res.Address())
	}
	fmt.Fprintf(w, "\nTotal: %d resource(s)\n", len(s.Resources))
}

func runStateRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := loadProject(ctx, nil)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, p)
	if err != nil {
		return err
	}

	target := args[0]
	err = state.WithLock(ctx, backend, func() error {
		s, err := backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		if err := removeResource(s, target); err != nil {
			return err
		}
		return backend.Write(ctx, s)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from state (resource was NOT destroyed)\n", target)
	return nil
}

// removeResource drops addr from s.
func removeResource(s *ir.State, addr string) error {
	kept := make([]*ir.ResourceState, 0, len(s.Resources))
	for _, res := range s.Resources {
		if res.Address() != addr {
			kept = append(kept, res)
		}
	}
	if len(kept) == len(s.Resources) {
		return fmt.Errorf("resource %s not found in state", addr)
	}
	s.Resources = kept
	return nil
}
