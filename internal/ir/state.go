package ir

// State represents the recorded deployment state.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs"`
}

type ResourceState struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs"` // as declared
	InputsHash   string         `json:"inputsHash"`
	Outputs      map[string]any `json:"outputs"` // as returned by the provider
	Dependencies []string       `json:"dependencies,omitempty"`
	// PreventDestroy is carried over from the resource lifecycle so that
	// removing the declaration does not silently delete the resource.
	PreventDestroy bool `json:"preventDestroy,omitempty"`
}

func (r *ResourceState) Address() string {
	return Address(r.Type, r.Name)
}

// Find returns the recorded resource at addr, or nil.
func (s *State) Find(addr string) *ResourceState {
	for _, res := range s.Resources {
		if res.Address() == addr {
			return res
		}
	}
	return nil
}
