// Package stack maps a project to the resources that deploy it.
package stack

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/providers/aws"
)

// ProviderName is the provider every declared resource is bound to.
const ProviderName = "aws"

// Resource names shared across the declarations.
const (
	siteName = "site"
	cdnName  = "cdn"
	roleName = "lambda"
	apiName  = "api"
)

// Output names.
const (
	OutputOriginURL      = "originURL"
	OutputOriginHostname = "originHostname"
	OutputCDNURL         = "cdnURL"
	OutputCDNHostname    = "cdnHostname"
	OutputAPIURL         = "apiURL"
	OutputReadme         = "readme"
)

type builder struct {
	project   *config.Project
	resources []*ir.Resource
	outputs   map[string]any
}

// Build returns the desired resources and outputs for p. Function archives
// are written as a side effect so their hashes can be recorded.
func Build(p *config.Project) (*ir.Config, error) {
	b := &builder{
		project: p,
		outputs: make(map[string]any),
	}

	if err := b.site(); err != nil {
		return nil, err
	}
	if p.CDN.IsEnabled() {
		b.cdn()
	}
	if len(p.Functions) > 0 {
		b.role()
		for i := range p.Functions {
			if err := b.function(&p.Functions[i]); err != nil {
				return nil, err
			}
		}
		if routed := b.routed(); len(routed) > 0 {
			strategy, err := strategyFor(p.API.Style)
			if err != nil {
				return nil, err
			}
			strategy.declare(b, routed)
		}
	}

	if p.Readme != "" {
		data, err := os.ReadFile(p.Resolve(p.Readme))
		if err != nil {
			return nil, fmt.Errorf("failed to read readme: %w", err)
		}
		b.outputs[OutputReadme] = string(data)
	}

	return &ir.Config{
		Resources: b.resources,
		Outputs:   b.outputs,
	}, nil
}

func (b *builder) add(typ, name string, props map[string]any, dependsOn ...string) *ir.Resource {
	res := &ir.Resource{
		Type:       typ,
		Name:       name,
		Provider:   ProviderName,
		DependsOn:  dependsOn,
		Properties: props,
	}
	b.resources = append(b.resources, res)
	return res
}

var invalidBucketChars = regexp.MustCompile(`[^a-z0-9-]+`)

// bucketPrefix derives a valid S3 bucket name prefix from the project name.
func bucketPrefix(name string) string {
	prefix := invalidBucketChars.ReplaceAllString(strings.ToLower(name), "-")
	prefix = strings.Trim(prefix, "-")
	if len(prefix) > 30 {
		prefix = prefix[:30]
	}
	if prefix == "" {
		prefix = "site"
	}
	return prefix + "-"
}

func bucketRef(attr string) string {
	return ir.Ref(aws.TypeBucket, siteName, attr)
}
