package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/logging"
	pb "github.com/picklr-io/sitestack/pkg/provider"
)

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   string
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// ApplyPlan executes a plan and updates the state.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

// ApplyPlanWithCallback executes a plan with progress event callbacks.
// Creates, updates and replacements run first, in parallel as far as their
// dependencies allow. Deletes run afterwards in reverse dependency order.
// If e.ContinueOnError is true, apply continues past individual resource
// failures and returns an aggregated error at the end.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*ir.State, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	run := &applyRun{engine: e, state: state, emit: emit}
	run.reindex()

	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if err := e.registry.LoadProvider(ctx, changeProvider(change)); err != nil {
			return state, fmt.Errorf("failed to load provider for %s: %w", change.Address, err)
		}
		if change.Action == pb.ActionDelete.String() {
			deletes = append(deletes, change)
		} else {
			createUpdates = append(createUpdates, change)
		}
	}

	var errs []error

	// Creates wait for the changes they reference.
	createDeps := make(map[string][]string)
	pending := make(map[string]bool)
	for _, c := range createUpdates {
		pending[c.Address] = true
	}
	for _, c := range createUpdates {
		for _, dep := range resourceDeps(c.Desired) {
			if pending[dep] {
				createDeps[c.Address] = append(createDeps[c.Address], dep)
			}
		}
	}
	if err := run.parallel(ctx, createUpdates, createDeps); err != nil {
		if !e.ContinueOnError {
			return state, err
		}
		errs = append(errs, err)
	}

	// Deletes wait for the deletes of resources that depend on them.
	deleteDeps := make(map[string][]string)
	pending = make(map[string]bool)
	for _, c := range deletes {
		pending[c.Address] = true
	}
	for _, c := range deletes {
		if c.Prior == nil {
			continue
		}
		for _, dep := range c.Prior.DependsOn {
			if pending[dep] {
				deleteDeps[dep] = append(deleteDeps[dep], c.Address)
			}
		}
	}
	if err := run.parallel(ctx, deletes, deleteDeps); err != nil {
		if !e.ContinueOnError {
			return state, err
		}
		errs = append(errs, err)
	}

	state.Serial++
	outputs, err := resolveOutputs(plan.Outputs, state)
	if err != nil {
		errs = append(errs, err)
	}
	state.Outputs = outputs

	if len(errs) > 0 {
		return state, errors.Join(errs...)
	}
	return state, nil
}

// applyRun holds the state shared by the goroutines of one apply.
type applyRun struct {
	engine *Engine
	emit   func(ApplyEvent)

	mu    sync.Mutex
	state *ir.State
	index map[string]int
}

func (r *applyRun) reindex() {
	r.index = make(map[string]int, len(r.state.Resources))
	for i, res := range r.state.Resources {
		r.index[res.Address()] = i
	}
}

// parallel applies changes concurrently. A change starts once every address
// in deps[change] has completed, and is skipped when one of them failed.
func (r *applyRun) parallel(ctx context.Context, changes []*ir.ResourceChange, deps map[string][]string) error {
	if len(changes) == 0 {
		return nil
	}
	limit := r.engine.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}

	completed := make(map[string]bool)
	failed := make(map[string]bool)
	var completedMu sync.Mutex
	completedCond := sync.NewCond(&completedMu)
	var firstErr error
	var allErrs []error
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			completedMu.Lock()
			for {
				if firstErr != nil && !r.engine.ContinueOnError {
					completedMu.Unlock()
					return
				}
				ready, depFailed := true, false
				for _, dep := range deps[c.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						ready = false
					}
				}
				if depFailed {
					failed[c.Address] = true
					completedMu.Unlock()
					completedCond.Broadcast()
					r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					return
				}
				if ready {
					break
				}
				completedCond.Wait()
			}
			completedMu.Unlock()

			if err := ctx.Err(); err != nil {
				completedMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("apply cancelled: %w", err)
				}
				failed[c.Address] = true
				completedMu.Unlock()
				completedCond.Broadcast()
				return
			}

			sem <- struct{}{}
			start := time.Now()
			r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})
			err := r.applyChange(ctx, c)
			<-sem

			completedMu.Lock()
			if err != nil {
				r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
				failed[c.Address] = true
			} else {
				r.emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: time.Since(start)})
				completed[c.Address] = true
			}
			completedMu.Unlock()
			completedCond.Broadcast()
		}(change)
	}
	wg.Wait()

	if r.engine.ContinueOnError && len(allErrs) > 0 {
		return fmt.Errorf("%d resource(s) failed: %w", len(allErrs), errors.Join(allErrs...))
	}
	return firstErr
}

func (r *applyRun) applyChange(ctx context.Context, change *ir.ResourceChange) error {
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	timeout := DefaultTimeout
	if change.Desired != nil {
		d, err := ParseTimeout(change.Desired.Timeout)
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		timeout = d
	}
	ctx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	prov, err := r.engine.registry.Get(changeProvider(change))
	if err != nil {
		return err
	}

	switch pb.ParseAction(change.Action) {
	case pb.ActionCreate, pb.ActionUpdate:
		return r.create(ctx, prov, change, r.priorOutputs(addr))
	case pb.ActionReplace:
		if err := r.delete(ctx, prov, change); err != nil {
			return err
		}
		return r.create(ctx, prov, change, nil)
	case pb.ActionDelete:
		return r.delete(ctx, prov, change)
	default:
		return fmt.Errorf("%s: unsupported action %q", addr, change.Action)
	}
}

func (r *applyRun) priorOutputs(addr string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.index[addr]
	if !ok || r.state.Resources[idx].Outputs == nil {
		return nil
	}
	data, _ := json.Marshal(r.state.Resources[idx].Outputs)
	return data
}

func (r *applyRun) create(ctx context.Context, prov pb.Provider, change *ir.ResourceChange, priorJSON []byte) error {
	res := change.Desired
	if res == nil {
		return fmt.Errorf("%s: %s without a desired resource", change.Address, change.Action)
	}

	r.mu.Lock()
	resolved, err := resolveReferences(res.Properties, r.lookup)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", change.Address, err)
	}
	desiredJSON, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("failed to marshal properties for %s: %w", change.Address, err)
	}

	var resp *pb.ApplyResponse
	err = RetryWithBackoff(ctx, r.engine.Retry, func() error {
		var applyErr error
		resp, applyErr = prov.Apply(ctx, &pb.ApplyRequest{
			Type:              res.Type,
			Name:              res.Name,
			DesiredConfigJSON: desiredJSON,
			PriorStateJSON:    priorJSON,
		})
		return applyErr
	}, IsTransientError)
	if err != nil {
		return fmt.Errorf("apply failed for %s: %w", change.Address, err)
	}

	var outputs map[string]any
	if len(resp.NewStateJSON) > 0 {
		if err := json.Unmarshal(resp.NewStateJSON, &outputs); err != nil {
			return fmt.Errorf("failed to unmarshal state for %s: %w", change.Address, err)
		}
	}

	rs := &ir.ResourceState{
		Type:           res.Type,
		Name:           res.Name,
		Provider:       res.Provider,
		Inputs:         res.Properties,
		InputsHash:     InputsHash(res.Properties),
		Outputs:        outputs,
		Dependencies:   resourceDeps(res),
		PreventDestroy: res.Lifecycle != nil && res.Lifecycle.PreventDestroy,
	}

	r.mu.Lock()
	if idx, ok := r.index[change.Address]; ok {
		r.state.Resources[idx] = rs
	} else {
		r.index[change.Address] = len(r.state.Resources)
		r.state.Resources = append(r.state.Resources, rs)
	}
	r.mu.Unlock()
	return nil
}

func (r *applyRun) delete(ctx context.Context, prov pb.Provider, change *ir.ResourceChange) error {
	typ, name := "", ""
	switch {
	case change.Prior != nil:
		typ, name = change.Prior.Type, change.Prior.Name
	case change.Desired != nil:
		typ, name = change.Desired.Type, change.Desired.Name
	}

	current := r.priorOutputs(change.Address)
	err := RetryWithBackoff(ctx, r.engine.Retry, func() error {
		return prov.Delete(ctx, &pb.DeleteRequest{
			Type:             typ,
			Name:             name,
			CurrentStateJSON: current,
		})
	}, IsTransientError)
	if err != nil {
		return fmt.Errorf("delete failed for %s: %w", change.Address, err)
	}

	r.mu.Lock()
	if idx, ok := r.index[change.Address]; ok {
		r.state.Resources = append(r.state.Resources[:idx], r.state.Resources[idx+1:]...)
		r.reindex()
	}
	r.mu.Unlock()
	return nil
}

// lookup resolves a reference against recorded outputs, falling back to the
// declared inputs. Callers hold r.mu.
func (r *applyRun) lookup(addr, attr string) (any, bool) {
	idx, ok := r.index[addr]
	if !ok {
		return nil, false
	}
	return attrOf(r.state.Resources[idx], attr)
}

func attrOf(res *ir.ResourceState, attr string) (any, bool) {
	if v, ok := res.Outputs[attr]; ok {
		return v, true
	}
	v, ok := res.Inputs[attr]
	return v, ok
}

// resolveOutputs resolves declared outputs against the applied state.
// Outputs whose references cannot be resolved are left out.
func resolveOutputs(declared map[string]any, state *ir.State) (map[string]any, error) {
	byAddr := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, res := range state.Resources {
		byAddr[res.Address()] = res
	}
	lookup := func(addr, attr string) (any, bool) {
		res, ok := byAddr[addr]
		if !ok {
			return nil, false
		}
		return attrOf(res, attr)
	}

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(declared))
	var errs []error
	for _, name := range names {
		v, err := resolveReferences(declared[name], lookup)
		if err != nil {
			errs = append(errs, fmt.Errorf("output %s: %w", name, err))
			continue
		}
		out[name] = v
	}
	return out, errors.Join(errs...)
}

func changeProvider(change *ir.ResourceChange) string {
	if change.Desired != nil {
		return change.Desired.Provider
	}
	if change.Prior != nil {
		return change.Prior.Provider
	}
	return ""
}
