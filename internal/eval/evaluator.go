package eval

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"
)

// Evaluator evaluates Pkl project files relative to a project directory.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// Evaluate evaluates entryPoint and decodes the module into out, which must be
// a pointer to a struct carrying `pkl` tags. Properties are exposed to the
// module through read("prop:<name>").
func (e *Evaluator) Evaluate(ctx context.Context, entryPoint string, properties map[string]string, out any) error {
	dir, err := filepath.Abs(e.projectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}
	u, err := url.Parse("file://" + filepath.ToSlash(dir) + "/")
	if err != nil {
		return fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	// Projects without a PklProject file fall back to a plain evaluator.
	var evaluator pkl.Evaluator
	evaluator, err = pkl.NewProjectEvaluator(ctx, u, opts...)
	if err != nil {
		evaluator, err = pkl.NewEvaluator(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create PKL evaluator: %w", err)
		}
	}
	defer evaluator.Close()

	if !filepath.IsAbs(entryPoint) {
		entryPoint = filepath.Join(dir, entryPoint)
	}
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), out); err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", entryPoint, err)
	}
	return nil
}
