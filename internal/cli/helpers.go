package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/engine"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/provider"
	"github.com/picklr-io/sitestack/internal/state"
)

// workspace bundles what a command needs to reconcile a project.
type workspace struct {
	project  *config.Project
	backend  state.Backend
	registry *provider.Registry
	engine   *engine.Engine
}

// loadProject reads and validates the project file named by --config.
func loadProject(ctx context.Context, props map[string]string) (*config.Project, error) {
	p, err := config.Load(ctx, configFile, props)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project %s:\n%w", configFile, err)
	}
	return p, nil
}

// openWorkspace loads the project and wires its state backend and engine.
// An offline workspace plans and applies against the in-memory provider.
func openWorkspace(ctx context.Context, props map[string]string, offline bool) (*workspace, error) {
	p, err := loadProject(ctx, props)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, p)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(p.Region)
	if offline {
		registry = provider.NewOfflineRegistry(p.Region)
	}
	return &workspace{
		project:  p,
		backend:  backend,
		registry: registry,
		engine:   engine.NewEngine(registry),
	}, nil
}

func openBackend(ctx context.Context, p *config.Project) (state.Backend, error) {
	backend, err := state.NewBackend(ctx, &state.BackendConfig{
		Type:          p.Backend.Type,
		Dir:           p.Dir,
		Bucket:        p.Backend.Bucket,
		Key:           p.Backend.Key,
		Region:        p.Backend.Region,
		DynamoDBTable: p.Backend.DynamoDBTable,
		Encrypt:       p.Backend.Encrypt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state backend: %w", err)
	}
	return backend, nil
}

// confirm asks a yes/no question on in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "\n%s (y/n): ", question)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// progressPrinter reports apply events. Events arrive from parallel workers.
func progressPrinter(w io.Writer) engine.ApplyCallback {
	var mu sync.Mutex
	return func(ev engine.ApplyEvent) {
		mu.Lock()
		defer mu.Unlock()

		switch ev.Status {
		case "started":
			fmt.Fprintf(w, "%s: %s...\n", ev.Address, actionVerb(ev.Action))
		case "completed":
			fmt.Fprintf(w, "%s%s: %s complete after %s%s\n",
				colorize(colorGreen), ev.Address, actionVerb(ev.Action), ev.Duration.Round(time.Second), colorize(colorReset))
		case "failed":
			fmt.Fprintf(w, "%s%s: %s failed: %v%s\n",
				colorize(colorRed), ev.Address, actionVerb(ev.Action), ev.Error, colorize(colorReset))
		case "skipped":
			fmt.Fprintf(w, "%s: skipped\n", ev.Address)
		}
	}
}

func actionVerb(action string) string {
	switch action {
	case "CREATE":
		return "Creating"
	case "UPDATE":
		return "Modifying"
	case "REPLACE":
		return "Replacing"
	case "DELETE":
		return "Destroying"
	}
	return strings.ToLower(action)
}

func actionColor(action string) string {
	switch action {
	case "CREATE":
		return colorize(colorGreen)
	case "DELETE":
		return colorize(colorRed)
	case "UPDATE", "REPLACE":
		return colorize(colorYellow)
	}
	return colorize(colorReset)
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(w io.Writer, plan *ir.Plan) {
	reset := colorize(colorReset)
	for _, change := range plan.Changes {
		symbol := "~"
		switch change.Action {
		case "CREATE":
			symbol = "+"
		case "DELETE":
			symbol = "-"
		case "REPLACE":
			symbol = "-/+"
		}
		color := actionColor(change.Action)

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Fprintf(w, "\n%s  # %s will be %s%s\n", color, change.Address, strings.ToLower(change.Action)+"d", reset)
		fmt.Fprintf(w, "%s  %s resource %q %q {%s\n", color, symbol, resourceType, resourceName, reset)

		switch {
		case len(change.Diff) > 0:
			renderPropertyDiff(w, change.Diff)
		case change.Action == "CREATE" && change.Desired != nil:
			for _, k := range sortedKeys(change.Desired.Properties) {
				fmt.Fprintf(w, "%s      + %s = %s%s\n", colorize(colorGreen), k, formatValue(change.Desired.Properties[k]), reset)
			}
		case change.Action == "DELETE" && change.Prior != nil:
			for _, k := range sortedKeys(change.Prior.Properties) {
				fmt.Fprintf(w, "%s      - %s = %s%s\n", colorize(colorRed), k, formatValue(change.Prior.Properties[k]), reset)
			}
		default:
			fmt.Fprintln(w, "      ...")
		}
		fmt.Fprintf(w, "%s    }%s\n", color, reset)
	}
}

// renderPropertyDiff prints structured property diffs.
func renderPropertyDiff(w io.Writer, diff map[string]*ir.PropertyDiff) {
	reset := colorize(colorReset)
	for _, key := range sortedKeys(diff) {
		d := diff[key]
		switch d.Action {
		case "create":
			fmt.Fprintf(w, "%s      + %s = %s%s\n", colorize(colorGreen), key, formatValue(d.After), reset)
		case "delete":
			fmt.Fprintf(w, "%s      - %s = %s%s\n", colorize(colorRed), key, formatValue(d.Before), reset)
		case "update":
			fmt.Fprintf(w, "%s      ~ %s = %s -> %s%s\n", colorize(colorYellow), key, formatValue(d.Before), formatValue(d.After), reset)
		default:
			fmt.Fprintf(w, "        %s = %s\n", key, formatValue(d.After))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if strings.HasPrefix(val, "ptr://") || strings.Contains(val, "${ptr://") {
			return "(known after apply)"
		}
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(w io.Writer, plan *ir.Plan) {
	s := plan.Summary
	fmt.Fprintf(w, "\n%sPlan:%s %d to add, %d to change, %d to replace, %d to destroy.\n",
		colorize(colorBold), colorize(colorReset), s.Create, s.Update, s.Replace, s.Delete)
}

// printOutputs prints outputs in name order. Multi-line values such as the
// readme are printed last, unquoted.
func printOutputs(w io.Writer, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%sOutputs:%s\n\n", colorize(colorBold), colorize(colorReset))
	var long []string
	for _, k := range sortedKeys(outputs) {
		if s, ok := outputs[k].(string); ok && strings.Contains(s, "\n") {
			long = append(long, k)
			continue
		}
		fmt.Fprintf(w, "%s = %s\n", k, formatOutput(outputs[k]))
	}
	for _, k := range long {
		fmt.Fprintf(w, "\n%s:\n%s\n", k, outputs[k])
	}
}

func formatOutput(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return formatValue(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
