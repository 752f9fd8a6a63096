package engine

import (
	"fmt"
	"sort"

	"github.com/picklr-io/sitestack/internal/ir"
)

// DAG represents a directed acyclic graph of resources for dependency ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	addr     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs a dependency graph from resources.
// It resolves both explicit DependsOn and implicit ptr:// references.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		addr := res.Address()
		if _, dup := dag.nodes[addr]; dup {
			return nil, fmt.Errorf("duplicate resource address %s", addr)
		}
		dag.nodes[addr] = &dagNode{addr: addr}
	}

	for _, res := range resources {
		node := dag.nodes[res.Address()]
		for _, dep := range resourceDeps(res) {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("%s depends on unknown resource %s", res.Address(), dep)
			}
			node.edges = append(node.edges, dep)
		}
	}

	if err := dag.finish(); err != nil {
		return nil, err
	}
	return dag, nil
}

// BuildDAGFromState constructs a dependency graph from state resources (for destroy).
// Dependencies on resources that are no longer recorded are dropped.
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for _, res := range resources {
		addr := res.Address()
		dag.nodes[addr] = &dagNode{addr: addr}
	}
	for _, res := range resources {
		node := dag.nodes[res.Address()]
		for _, dep := range res.Dependencies {
			if _, ok := dag.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}
	}

	if err := dag.finish(); err != nil {
		return nil, err
	}
	return dag, nil
}

func (d *DAG) finish() error {
	for addr, node := range d.nodes {
		for _, dep := range node.edges {
			d.nodes[dep].revEdges = append(d.nodes[dep].revEdges, addr)
		}
	}

	order, err := d.topoSort()
	if err != nil {
		return err
	}
	d.order = order

	d.revOrder = make([]string, len(order))
	for i, addr := range order {
		d.revOrder[len(order)-1-i] = addr
	}
	return nil
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resources in reverse dependency order (safe for deletion).
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of addr.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the resources that directly depend on addr.
func (d *DAG) Dependents(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.revEdges
	}
	return nil
}

// TransitiveDeps returns every resource addr depends on, directly or not.
func (d *DAG) TransitiveDeps(addr string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(a string) {
		for _, dep := range d.Dependencies(a) {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(addr)

	deps := make([]string, 0, len(seen))
	for dep := range seen {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	return deps
}

// Edges returns every (from, to) pair where from depends on to, sorted.
func (d *DAG) Edges() [][2]string {
	var edges [][2]string
	for _, addr := range d.order {
		deps := append([]string(nil), d.nodes[addr].edges...)
		sort.Strings(deps)
		for _, dep := range deps {
			edges = append(edges, [2]string{addr, dep})
		}
	}
	return edges
}

// topoSort performs Kahn's algorithm. Ready nodes are taken in lexical order
// so that the result is stable across runs.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	var queue []string
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
		if inDegree[addr] == 0 {
			queue = append(queue, addr)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		var ready []string
		for _, dependent := range d.nodes[node].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(sorted) != len(d.nodes) {
		var cyclic []string
		for addr, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, addr)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("dependency cycle detected in resource graph: %v", cyclic)
	}

	return sorted, nil
}

// resourceDeps returns the deduplicated explicit and implicit dependencies of res.
func resourceDeps(res *ir.Resource) []string {
	self := res.Address()
	seen := make(map[string]bool)
	var deps []string
	add := func(addr string) {
		if addr != "" && addr != self && !seen[addr] {
			seen[addr] = true
			deps = append(deps, addr)
		}
	}
	for _, dep := range res.DependsOn {
		add(dep)
	}
	for _, ref := range extractPtrRefs(res.Properties) {
		add(ptrRefToAddr(ref))
	}
	sort.Strings(deps)
	return deps
}
