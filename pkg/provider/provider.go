// Package provider defines the protocol between the engine and resource providers.
package provider

import "context"

// Action is the change a provider plans for a single resource.
type Action int

const (
	ActionNoop Action = iota
	ActionCreate
	ActionUpdate
	ActionReplace
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionUpdate:
		return "UPDATE"
	case ActionReplace:
		return "REPLACE"
	case ActionDelete:
		return "DELETE"
	default:
		return "NOOP"
	}
}

// ParseAction is the inverse of Action.String. Unknown names map to ActionNoop.
func ParseAction(s string) Action {
	switch s {
	case "CREATE":
		return ActionCreate
	case "UPDATE":
		return ActionUpdate
	case "REPLACE":
		return ActionReplace
	case "DELETE":
		return ActionDelete
	default:
		return ActionNoop
	}
}

type ConfigureRequest struct {
	Region string
}

type PlanRequest struct {
	Type string
	Name string
	// DesiredConfigJSON may still contain unresolved ptr:// references.
	DesiredConfigJSON []byte
	PriorInputsJSON   []byte
	PriorStateJSON    []byte
}

type PlanResponse struct {
	Action            Action
	ChangedAttributes []string
}

type ApplyRequest struct {
	Type              string
	Name              string
	DesiredConfigJSON []byte
	// PriorStateJSON is nil on CREATE.
	PriorStateJSON []byte
}

type ApplyResponse struct {
	NewStateJSON []byte
}

type DeleteRequest struct {
	Type             string
	Name             string
	CurrentStateJSON []byte
}

// Provider maps resource declarations onto a backing API.
type Provider interface {
	Configure(ctx context.Context, req *ConfigureRequest) error
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error
}

// Unknown stands in for a value that is only known once another resource has
// been applied.
const Unknown = "(known after apply)"
