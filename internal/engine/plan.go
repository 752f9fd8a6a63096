package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/logging"
	"github.com/picklr-io/sitestack/internal/provider"
	pb "github.com/picklr-io/sitestack/pkg/provider"
)

const defaultParallelism = 10

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry        *provider.Registry
	Parallelism     int
	Retry           *RetryPolicy
	ContinueOnError bool // If true, apply continues past failures instead of stopping
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry:    registry,
		Parallelism: defaultParallelism,
		Retry:       DefaultRetryPolicy(),
	}
}

// CreatePlan generates an execution plan by comparing desired config with current state.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(ctx, cfg, state, nil)
}

// CreatePlanWithTargets generates a plan filtered to specific resource addresses.
// Targets pull in their transitive dependencies. If targets is empty, all
// resources are planned.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, cfg *ir.Config, state *ir.State, targets []string) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources), "targets", len(targets))
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			ConfigHash:     hashJSON(cfg),
			PriorStateHash: hashJSON(state),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	// 1. Normalize declarations and load their providers
	resources := make([]*ir.Resource, 0, len(cfg.Resources))
	for _, res := range cfg.Resources {
		props, err := normalizeProperties(res.Properties)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Address(), err)
		}
		if _, err := ParseTimeout(res.Timeout); err != nil {
			return nil, fmt.Errorf("%s: %w", res.Address(), err)
		}
		copied := *res
		copied.Properties = props
		resources = append(resources, &copied)

		if err := e.registry.LoadProvider(ctx, res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	// 2. Build dependency graph for ordering
	dag, err := BuildDAG(resources)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		stateMap[res.Address()] = res
	}
	configByAddr := make(map[string]*ir.Resource)
	for _, res := range resources {
		configByAddr[res.Address()] = res
	}

	var targetSet map[string]bool
	if len(targets) > 0 {
		targetSet = make(map[string]bool)
		for _, t := range targets {
			if _, ok := configByAddr[t]; !ok && stateMap[t] == nil {
				return nil, fmt.Errorf("target %s is neither declared nor recorded", t)
			}
			targetSet[t] = true
			for _, dep := range dag.TransitiveDeps(t) {
				targetSet[dep] = true
			}
		}
	}

	// 3. Plan desired resources in dependency order
	replaced := make(map[string]bool)
	for _, addr := range dag.CreationOrder() {
		res := configByAddr[addr]

		if targetSet != nil && !targetSet[addr] {
			plan.Summary.NoOp++
			continue
		}

		prior := stateMap[addr]
		action, err := e.planResource(ctx, dag, res, prior, replaced)
		if err != nil {
			return nil, err
		}
		if err := enforceLifecycle(res, action, addr); err != nil {
			return nil, err
		}
		if action == pb.ActionReplace {
			replaced[addr] = true
		}
		if action == pb.ActionNoop {
			plan.Summary.NoOp++
			continue
		}

		change := &ir.ResourceChange{
			Address: addr,
			Action:  action.String(),
			Desired: res,
		}
		if prior != nil {
			change.Prior = priorResource(prior)
			change.Diff = buildPropertyDiff(prior.Inputs, res.Properties)
		} else {
			change.Diff = buildCreateDiff(res.Properties)
		}
		plan.Changes = append(plan.Changes, change)
		countAction(plan.Summary, action)
	}

	// 4. Handle deletions (resources in state but not in config)
	stateDAG, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, fmt.Errorf("failed to order recorded resources: %w", err)
	}
	for _, addr := range stateDAG.DestructionOrder() {
		res := stateMap[addr]
		if _, ok := configByAddr[addr]; ok {
			continue
		}
		if targetSet != nil && !targetSet[addr] {
			continue
		}
		if res.PreventDestroy {
			return nil, fmt.Errorf("resource %s has preventDestroy set but is no longer declared", addr)
		}
		if err := e.registry.LoadProvider(ctx, res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: addr,
			Action:  pb.ActionDelete.String(),
			Prior:   priorResource(res),
			Diff:    buildDeleteDiff(res.Inputs),
		})
		plan.Summary.Delete++
	}

	return plan, nil
}

// planResource decides the action for one declared resource. Attributes that
// reference a resource being replaced are treated as unknown.
func (e *Engine) planResource(ctx context.Context, dag *DAG, res *ir.Resource, prior *ir.ResourceState, replaced map[string]bool) (pb.Action, error) {
	if prior == nil {
		return pb.ActionCreate, nil
	}

	pending := make(map[string]bool)
	for _, dep := range dag.Dependencies(res.Address()) {
		if replaced[dep] {
			pending[dep] = true
		}
	}
	if len(pending) == 0 && InputsHash(res.Properties) == prior.InputsHash {
		return pb.ActionNoop, nil
	}

	desired := res.Properties
	if len(pending) > 0 {
		desired = markUnknown(desired, pending).(map[string]any)
	}
	desiredJSON, err := json.Marshal(desired)
	if err != nil {
		return pb.ActionNoop, fmt.Errorf("failed to marshal properties for %s: %w", res.Address(), err)
	}
	priorInputsJSON, err := json.Marshal(prior.Inputs)
	if err != nil {
		return pb.ActionNoop, fmt.Errorf("failed to marshal prior inputs for %s: %w", res.Address(), err)
	}
	priorStateJSON, err := json.Marshal(prior.Outputs)
	if err != nil {
		return pb.ActionNoop, fmt.Errorf("failed to marshal prior state for %s: %w", res.Address(), err)
	}

	prov, err := e.registry.Get(res.Provider)
	if err != nil {
		return pb.ActionNoop, err
	}
	resp, err := prov.Plan(ctx, &pb.PlanRequest{
		Type:              res.Type,
		Name:              res.Name,
		DesiredConfigJSON: desiredJSON,
		PriorInputsJSON:   priorInputsJSON,
		PriorStateJSON:    priorStateJSON,
	})
	if err != nil {
		return pb.ActionNoop, fmt.Errorf("plan failed for %s: %w", res.Address(), err)
	}

	return filterIgnoredChanges(res, resp), nil
}

// DestroyPlan plans the deletion of every recorded resource.
func (e *Engine) DestroyPlan(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			PriorStateHash: hashJSON(state),
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
	}

	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, fmt.Errorf("failed to order recorded resources: %w", err)
	}
	stateMap := make(map[string]*ir.ResourceState)
	for _, res := range state.Resources {
		stateMap[res.Address()] = res
	}

	for _, addr := range dag.DestructionOrder() {
		res := stateMap[addr]
		if res.PreventDestroy {
			return nil, fmt.Errorf("resource %s has preventDestroy set", addr)
		}
		if err := e.registry.LoadProvider(ctx, res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: addr,
			Action:  pb.ActionDelete.String(),
			Prior:   priorResource(res),
			Diff:    buildDeleteDiff(res.Inputs),
		})
		plan.Summary.Delete++
	}
	return plan, nil
}

// enforceLifecycle checks lifecycle rules and returns an error if violated.
func enforceLifecycle(res *ir.Resource, action pb.Action, addr string) error {
	if res.Lifecycle == nil {
		return nil
	}

	if res.Lifecycle.PreventDestroy && (action == pb.ActionDelete || action == pb.ActionReplace) {
		return fmt.Errorf("resource %s has preventDestroy set but plan requires destruction", addr)
	}

	return nil
}

// filterIgnoredChanges downgrades an UPDATE to NOOP when every changed
// attribute is listed in lifecycle.ignoreChanges.
func filterIgnoredChanges(res *ir.Resource, resp *pb.PlanResponse) pb.Action {
	if res.Lifecycle == nil || len(res.Lifecycle.IgnoreChanges) == 0 || resp.Action != pb.ActionUpdate {
		return resp.Action
	}

	ignoreSet := make(map[string]bool)
	for _, attr := range res.Lifecycle.IgnoreChanges {
		ignoreSet[attr] = true
	}
	for _, attr := range resp.ChangedAttributes {
		if !ignoreSet[attr] {
			return resp.Action
		}
	}
	return pb.ActionNoop
}

func countAction(s *ir.PlanSummary, action pb.Action) {
	switch action {
	case pb.ActionCreate:
		s.Create++
	case pb.ActionUpdate:
		s.Update++
	case pb.ActionReplace:
		s.Replace++
	case pb.ActionDelete:
		s.Delete++
	}
}

func priorResource(res *ir.ResourceState) *ir.Resource {
	return &ir.Resource{
		Type:       res.Type,
		Name:       res.Name,
		Provider:   res.Provider,
		DependsOn:  res.Dependencies,
		Properties: res.Inputs,
	}
}

// buildPropertyDiff compares prior and desired properties and returns a diff map.
func buildPropertyDiff(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	for k, desiredVal := range desired {
		priorVal, inPrior := prior[k]
		switch {
		case !inPrior:
			diff[k] = &ir.PropertyDiff{After: desiredVal, Action: "create"}
		case !reflect.DeepEqual(priorVal, desiredVal):
			diff[k] = &ir.PropertyDiff{Before: priorVal, After: desiredVal, Action: "update"}
		}
	}
	for k, priorVal := range prior {
		if _, ok := desired[k]; !ok {
			diff[k] = &ir.PropertyDiff{Before: priorVal, Action: "delete"}
		}
	}

	return diff
}

func buildCreateDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{
			After:  v,
			Action: "create",
		}
	}
	return diff
}

func buildDeleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{
			Before: v,
			Action: "delete",
		}
	}
	return diff
}
