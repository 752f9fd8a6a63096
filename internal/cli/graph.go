package cli

import (
	"fmt"
	"io"

	"github.com/emicklei/dot"
	"github.com/picklr-io/sitestack/internal/engine"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/stack"
	"github.com/spf13/cobra"
)

var graphFormat string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Output the resource dependency graph",
	Long: `Generates the dependency graph of the resources the project declares,
either in Graphviz DOT format or as a Mermaid flowchart:

  sitestack graph | dot -Tpng > graph.png
  sitestack graph --format mermaid >> README.md`,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "dot", "Output format: dot or mermaid")
}

func runGraph(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd.Context(), nil)
	if err != nil {
		return err
	}
	cfg, err := stack.Build(p)
	if err != nil {
		return fmt.Errorf("failed to build resources: %w", err)
	}
	return renderGraph(cmd.OutOrStdout(), cfg.Resources, graphFormat)
}

// renderGraph writes the dependency graph of resources. Edges point from a
// resource to the resources it depends on.
func renderGraph(w io.Writer, resources []*ir.Resource, format string) error {
	dag, err := engine.BuildDAG(resources)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "BT")
	g.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
	})

	for _, addr := range dag.CreationOrder() {
		g.Node(addr)
	}
	for _, e := range dag.Edges() {
		g.Edge(g.Node(e[0]), g.Node(e[1]))
	}

	var out string
	switch format {
	case "dot", "":
		out = g.String()
	case "mermaid":
		out = dot.MermaidGraph(g, dot.MermaidTopToBottom)
	default:
		return fmt.Errorf("unknown graph format %q (want dot or mermaid)", format)
	}
	_, err = io.WriteString(w, out)
	return err
}
