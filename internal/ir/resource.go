package ir

import "fmt"

// Resource represents a single managed resource.
type Resource struct {
	Type       string         `json:"type"` // e.g., "aws:S3.Bucket"
	Name       string         `json:"name"`
	Provider   string         `json:"provider"`
	Lifecycle  *Lifecycle     `json:"lifecycle,omitempty"`
	DependsOn  []string       `json:"dependsOn,omitempty"`
	Timeout    string         `json:"timeout,omitempty"` // Go duration, e.g. "45m"
	Properties map[string]any `json:"properties"`
}

type Lifecycle struct {
	PreventDestroy bool     `json:"preventDestroy"`
	IgnoreChanges  []string `json:"ignoreChanges,omitempty"`
}

// Address returns the engine address of the resource (type.name).
func (r *Resource) Address() string {
	return Address(r.Type, r.Name)
}

// Address joins a resource type and name.
func Address(typ, name string) string {
	return fmt.Sprintf("%s.%s", typ, name)
}

// Ref builds a reference to an attribute of another resource.
// The engine resolves it once the referenced resource has been applied.
func Ref(typ, name, attr string) string {
	return fmt.Sprintf("ptr://%s/%s/%s", typ, name, attr)
}

// Interp wraps a reference so it can be embedded inside a larger string.
func Interp(typ, name, attr string) string {
	return "${" + Ref(typ, name, attr) + "}"
}
