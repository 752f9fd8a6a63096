package aws

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"
	"github.com/picklr-io/sitestack/internal/logging"
	"github.com/picklr-io/sitestack/pkg/provider"
)

// ManagedRestAPIConfig describes a whole REST API in one resource: the
// provider creates the path resources, methods, proxy integrations and the
// deployment behind a single stage.
type ManagedRestAPIConfig struct {
	Name            string         `json:"name"`
	StageName       string         `json:"stageName"`
	TimeoutInMillis int32          `json:"timeoutInMillis"`
	Routes          []ManagedRoute `json:"routes"`
}

type ManagedRoute struct {
	Path      string `json:"path"`
	Method    string `json:"method"`
	InvokeARN string `json:"invokeArn"`
}

type ManagedRestAPIState struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	RootResourceID string         `json:"rootResourceId"`
	ExecutionARN   string         `json:"executionArn"`
	DeploymentID   string         `json:"deploymentId"`
	StageName      string         `json:"stageName"`
	URL            string         `json:"url"`
	Routes         []ManagedRoute `json:"routes"`
}

func (p *Provider) applyManagedRestAPI(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ManagedRestAPIConfig
	var prior ManagedRestAPIState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if err := p.deleteRestApi(ctx, prior.ID); err != nil {
			return nil, err
		}
		return &provider.ApplyResponse{}, nil
	}

	state := prior
	if isCreate(req) {
		id, rootID, err := p.createRestApi(ctx, desired.Name, "")
		if err != nil {
			return nil, err
		}
		state = ManagedRestAPIState{
			ID:             id,
			RootResourceID: rootID,
			ExecutionARN:   ExecuteAPIARN(p.currentRegion(), p.account(), id),
		}
	} else {
		if desired.Name != prior.Name {
			_, err := p.apigatewayClient.UpdateRestApi(ctx, &apigateway.UpdateRestApiInput{
				RestApiId:       &prior.ID,
				PatchOperations: []types.PatchOperation{replaceOp("/name", desired.Name)},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to rename rest api: %w", err)
			}
		}
		if err := p.clearRoutes(ctx, prior); err != nil {
			return nil, err
		}
	}

	if err := p.putRoutes(ctx, state, desired); err != nil {
		return nil, err
	}

	// Deploying into a named stage creates it or moves it to the new deployment.
	resp, err := p.apigatewayClient.CreateDeployment(ctx, &apigateway.CreateDeploymentInput{
		RestApiId: &state.ID,
		StageName: &desired.StageName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy rest api: %w", err)
	}

	if prior.StageName != "" && prior.StageName != desired.StageName {
		_, err := p.apigatewayClient.DeleteStage(ctx, &apigateway.DeleteStageInput{
			RestApiId: &state.ID,
			StageName: &prior.StageName,
		})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to delete stage %s: %w", prior.StageName, err)
		}
	}

	state.Name = desired.Name
	state.DeploymentID = sdk.ToString(resp.Id)
	state.StageName = desired.StageName
	state.URL = StageURL(state.ID, p.currentRegion(), desired.StageName)
	state.Routes = desired.Routes
	return respond(state)
}

// clearRoutes removes every path resource and the methods on the root, so
// the routes can be put again from scratch.
func (p *Provider) clearRoutes(ctx context.Context, prior ManagedRestAPIState) error {
	paginator := apigateway.NewGetResourcesPaginator(p.apigatewayClient, &apigateway.GetResourcesInput{
		RestApiId: &prior.ID,
	})
	var top []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list resources of %s: %w", prior.ID, err)
		}
		for _, res := range page.Items {
			// Deleting a top-level resource deletes everything below it.
			if sdk.ToString(res.ParentId) == prior.RootResourceID {
				top = append(top, sdk.ToString(res.Id))
			}
		}
	}
	for _, id := range top {
		_, err := p.apigatewayClient.DeleteResource(ctx, &apigateway.DeleteResourceInput{
			RestApiId:  &prior.ID,
			ResourceId: &id,
		})
		if err := ignoreNotFound(err); err != nil {
			return fmt.Errorf("failed to delete resource %s: %w", id, err)
		}
	}

	for _, route := range prior.Routes {
		if normalizeRoute(route.Path) != "/" {
			continue
		}
		_, err := p.apigatewayClient.DeleteMethod(ctx, &apigateway.DeleteMethodInput{
			RestApiId:  &prior.ID,
			ResourceId: &prior.RootResourceID,
			HttpMethod: &route.Method,
		})
		if err := ignoreNotFound(err); err != nil {
			return fmt.Errorf("failed to delete method %s /: %w", route.Method, err)
		}
	}
	return nil
}

func (p *Provider) putRoutes(ctx context.Context, state ManagedRestAPIState, desired ManagedRestAPIConfig) error {
	resources := map[string]string{"/": state.RootResourceID}
	for _, route := range desired.Routes {
		path := normalizeRoute(route.Path)
		resourceID, err := p.ensureResource(ctx, state.ID, resources, path)
		if err != nil {
			return err
		}

		_, err = p.apigatewayClient.PutMethod(ctx, &apigateway.PutMethodInput{
			RestApiId:         &state.ID,
			ResourceId:        &resourceID,
			HttpMethod:        sdk.String(route.Method),
			AuthorizationType: sdk.String("NONE"),
		})
		if err != nil {
			return fmt.Errorf("failed to put method %s %s: %w", route.Method, path, err)
		}
		err = p.putIntegration(ctx, IntegrationConfig{
			RestApiID:             state.ID,
			ResourceID:            resourceID,
			HTTPMethod:            route.Method,
			Type:                  "AWS_PROXY",
			IntegrationHTTPMethod: "POST",
			URI:                   route.InvokeARN,
			TimeoutInMillis:       desired.TimeoutInMillis,
		})
		if err != nil {
			return err
		}
		logging.Debug("route wired", "api", state.ID, "method", route.Method, "path", path)
	}
	return nil
}

// ensureResource creates the resources along path that are not in known yet
// and returns the id of the last one.
func (p *Provider) ensureResource(ctx context.Context, apiID string, known map[string]string, path string) (string, error) {
	if id, ok := known[path]; ok {
		return id, nil
	}
	i := strings.LastIndex(path, "/")
	parentPath := "/"
	if i > 0 {
		parentPath = path[:i]
	}
	parentID, err := p.ensureResource(ctx, apiID, known, parentPath)
	if err != nil {
		return "", err
	}
	resp, err := p.apigatewayClient.CreateResource(ctx, &apigateway.CreateResourceInput{
		RestApiId: &apiID,
		ParentId:  &parentID,
		PathPart:  sdk.String(path[i+1:]),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create resource %s: %w", path, err)
	}
	known[path] = sdk.ToString(resp.Id)
	return known[path], nil
}

func normalizeRoute(path string) string {
	return "/" + strings.Trim(path, "/")
}
