package stack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/providers/aws"
)

// CORS values returned by the preflight responses.
const (
	corsAllowHeaders = "Content-Type"
	corsAllowOrigin  = "*"
	corsAllowMethods = "OPTIONS,POST,GET"
)

// apiStrategy declares the gateway resources that expose the routed functions.
type apiStrategy interface {
	declare(b *builder, routed []*config.Function)
}

func strategyFor(style string) (apiStrategy, error) {
	switch style {
	case config.StyleManaged:
		return managedAPI{}, nil
	case config.StyleRest:
		return restAPI{}, nil
	case config.StyleHTTP:
		return httpAPI{}, nil
	default:
		return nil, fmt.Errorf("unknown api style %q", style)
	}
}

func (b *builder) routed() []*config.Function {
	var fns []*config.Function
	for i := range b.project.Functions {
		if b.project.Functions[i].Route != nil {
			fns = append(fns, &b.project.Functions[i])
		}
	}
	return fns
}

// managedAPI is a single construct that the provider expands into the REST
// API, its resources, methods, integrations, deployment and stage.
type managedAPI struct{}

func (managedAPI) declare(b *builder, routed []*config.Function) {
	p := b.project
	routes := make([]any, 0, len(routed))
	for _, fn := range routed {
		routes = append(routes, map[string]any{
			"path":      fn.Route.Path,
			"method":    fn.Route.Method,
			"invokeArn": functionRef(fn, "invokeArn"),
		})
	}
	b.add(aws.TypeManagedRestAPI, apiName, map[string]any{
		"name":            p.Name,
		"stageName":       p.API.StageName,
		"timeoutInMillis": p.API.TimeoutMillis,
		"routes":          routes,
	})
	for _, fn := range routed {
		b.permission(fn, ir.Interp(aws.TypeManagedRestAPI, apiName, "executionArn"))
	}
	b.outputs[OutputAPIURL] = ir.Ref(aws.TypeManagedRestAPI, apiName, "url")
}

// restAPI wires the REST API resource by resource.
type restAPI struct{}

func (restAPI) declare(b *builder, routed []*config.Function) {
	p := b.project
	apiID := ir.Ref(aws.TypeRestApi, apiName, "id")
	b.add(aws.TypeRestApi, apiName, map[string]any{
		"name":        p.Name,
		"description": p.Name + " API",
	})

	resources := map[string]string{"/": ir.Ref(aws.TypeRestApi, apiName, "rootResourceId")}
	var paths []string
	var wired []*ir.Resource
	// paths that already route OPTIONS to a function need no mocked preflight
	handled := make(map[string]bool)

	for _, fn := range routed {
		path := normalizePath(fn.Route.Path)
		resourceID := b.restResource(resources, path)
		if !slices.Contains(paths, path) {
			paths = append(paths, path)
		}
		if fn.Route.Method == "OPTIONS" {
			handled[path] = true
		}

		method := b.add(aws.TypeMethod, fn.Name, map[string]any{
			"restApiId":     apiID,
			"resourceId":    resourceID,
			"httpMethod":    fn.Route.Method,
			"authorization": "NONE",
		})
		integration := b.add(aws.TypeIntegration, fn.Name, map[string]any{
			"restApiId":             apiID,
			"resourceId":            resourceID,
			"httpMethod":            fn.Route.Method,
			"integrationHttpMethod": "POST",
			"type":                  "AWS_PROXY",
			"uri":                   functionRef(fn, "invokeArn"),
			"timeoutInMillis":       p.API.TimeoutMillis,
		}, method.Address())
		wired = append(wired, method, integration)
	}

	if p.API.CORS {
		for _, path := range paths {
			if handled[path] {
				continue
			}
			wired = append(wired, b.restPreflight(resources[path], path)...)
		}
	}

	// A deployment is a snapshot of every method and integration; any change
	// to one of them has to replace it.
	deps := make([]string, 0, len(wired))
	for _, res := range wired {
		deps = append(deps, res.Address())
	}
	b.add(aws.TypeDeployment, apiName, map[string]any{
		"restApiId":   apiID,
		"description": p.Name + " deployment",
		"triggers":    deploymentTriggers(wired),
	}, deps...)
	b.add(aws.TypeStage, apiName, map[string]any{
		"restApiId":    apiID,
		"stageName":    p.API.StageName,
		"deploymentId": ir.Ref(aws.TypeDeployment, apiName, "id"),
	})

	for _, fn := range routed {
		b.permission(fn, ir.Interp(aws.TypeRestApi, apiName, "executionArn"))
	}
	b.outputs[OutputAPIURL] = ir.Ref(aws.TypeStage, apiName, "invokeUrl")
}

// restResource declares the resources for each segment of path and returns a
// reference to the id of the last one.
func (b *builder) restResource(known map[string]string, path string) string {
	if id, ok := known[path]; ok {
		return id
	}
	parentPath := "/"
	if i := strings.LastIndex(path, "/"); i > 0 {
		parentPath = path[:i]
	}
	parentID := b.restResource(known, parentPath)

	name := resourceName(path)
	b.add(aws.TypeApiResource, name, map[string]any{
		"restApiId": ir.Ref(aws.TypeRestApi, apiName, "id"),
		"parentId":  parentID,
		"pathPart":  path[strings.LastIndex(path, "/")+1:],
	})
	id := ir.Ref(aws.TypeApiResource, name, "id")
	known[path] = id
	return id
}

// deploymentTriggers hashes the declared properties of the deployed
// resources. References are hashed as written, so only configuration that
// the API snapshot captures takes part.
func deploymentTriggers(wired []*ir.Resource) string {
	h := sha256.New()
	for _, res := range wired {
		// map keys marshal sorted, so the encoding is stable
		props, err := json.Marshal(res.Properties)
		if err != nil {
			props = []byte(fmt.Sprint(res.Properties))
		}
		fmt.Fprintf(h, "%s %s\n", res.Address(), props)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// restPreflight declares a mocked OPTIONS method on a resource and returns
// the resources the deployment must wait for.
func (b *builder) restPreflight(resourceID, path string) []*ir.Resource {
	apiID := ir.Ref(aws.TypeRestApi, apiName, "id")
	name := "options-" + resourceName(path)

	method := b.add(aws.TypeMethod, name, map[string]any{
		"restApiId":     apiID,
		"resourceId":    resourceID,
		"httpMethod":    "OPTIONS",
		"authorization": "NONE",
	})
	integration := b.add(aws.TypeIntegration, name, map[string]any{
		"restApiId":  apiID,
		"resourceId": resourceID,
		"httpMethod": "OPTIONS",
		"type":       "MOCK",
		"requestTemplates": map[string]any{
			"application/json": `{"statusCode": 200}`,
		},
	}, method.Address())
	methodResponse := b.add(aws.TypeMethodResponse, name, map[string]any{
		"restApiId":  apiID,
		"resourceId": resourceID,
		"httpMethod": "OPTIONS",
		"statusCode": "200",
		"responseModels": map[string]any{
			"application/json": "Empty",
		},
		"responseParameters": map[string]any{
			"method.response.header.Access-Control-Allow-Headers": true,
			"method.response.header.Access-Control-Allow-Methods": true,
			"method.response.header.Access-Control-Allow-Origin":  true,
		},
	}, method.Address())
	integrationResponse := b.add(aws.TypeIntegrationResponse, name, map[string]any{
		"restApiId":  apiID,
		"resourceId": resourceID,
		"httpMethod": "OPTIONS",
		"statusCode": "200",
		"responseTemplates": map[string]any{
			"application/xml": `#set($inputRoot = $input.path('$'))
{ }`,
		},
		"responseParameters": map[string]any{
			"method.response.header.Access-Control-Allow-Headers": "'" + corsAllowHeaders + "'",
			"method.response.header.Access-Control-Allow-Methods": "'" + corsAllowMethods + "'",
			"method.response.header.Access-Control-Allow-Origin":  "'" + corsAllowOrigin + "'",
		},
	}, integration.Address(), methodResponse.Address())

	return []*ir.Resource{method, integration, methodResponse, integrationResponse}
}

// httpAPI exposes the functions through an HTTP API.
type httpAPI struct{}

func (httpAPI) declare(b *builder, routed []*config.Function) {
	p := b.project
	apiID := ir.Ref(aws.TypeHTTPApi, apiName, "id")

	props := map[string]any{
		"name":         p.Name,
		"protocolType": "HTTP",
	}
	if p.API.CORS {
		props["corsConfiguration"] = map[string]any{
			"allowHeaders": []any{corsAllowHeaders},
			"allowMethods": []any{"OPTIONS", "POST", "GET"},
			"allowOrigins": []any{corsAllowOrigin},
		}
	}
	b.add(aws.TypeHTTPApi, apiName, props)

	var routes []string
	for _, fn := range routed {
		b.add(aws.TypeHTTPIntegration, fn.Name, map[string]any{
			"apiId":                apiID,
			"integrationType":      "AWS_PROXY",
			"integrationMethod":    "POST",
			"integrationUri":       functionRef(fn, "arn"),
			"payloadFormatVersion": p.API.PayloadFormatVersion,
			"timeoutInMillis":      p.API.TimeoutMillis,
		})
		route := b.add(aws.TypeHTTPRoute, fn.Name, map[string]any{
			"apiId":    apiID,
			"routeKey": fn.Route.Method + " " + normalizePath(fn.Route.Path),
			"target":   "integrations/" + ir.Interp(aws.TypeHTTPIntegration, fn.Name, "id"),
		})
		routes = append(routes, route.Address())
	}

	b.add(aws.TypeHTTPStage, apiName, map[string]any{
		"apiId":      apiID,
		"name":       p.API.StageName,
		"autoDeploy": p.API.AutoDeploys(),
	}, routes...)

	for _, fn := range routed {
		b.permission(fn, ir.Interp(aws.TypeHTTPApi, apiName, "executionArn"))
	}
	b.outputs[OutputAPIURL] = ir.Ref(aws.TypeHTTPStage, apiName, "invokeUrl")
}

func normalizePath(path string) string {
	return "/" + strings.Trim(path, "/")
}

// resourceName turns a route path into a resource name: /v1/items -> v1-items.
func resourceName(path string) string {
	name := strings.NewReplacer("/", "-", "{", "", "}", "", "+", "").Replace(strings.Trim(path, "/"))
	if name == "" {
		return "root"
	}
	return name
}
