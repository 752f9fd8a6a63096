package ir

// Config is the complete desired snapshot handed to the engine.
type Config struct {
	Resources []*Resource    `json:"resources"`
	Outputs   map[string]any `json:"outputs"`
}
