package aws

import (
	"context"
	"fmt"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2/types"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type ApiV2Config struct {
	Name              string      `json:"name"`
	ProtocolType      string      `json:"protocolType"`
	CorsConfiguration *CorsConfig `json:"corsConfiguration"`
}

type CorsConfig struct {
	AllowOrigins []string `json:"allowOrigins"`
	AllowMethods []string `json:"allowMethods"`
	AllowHeaders []string `json:"allowHeaders"`
	MaxAge       int32    `json:"maxAge"`
}

func (c *CorsConfig) toSDK() *types.Cors {
	cors := &types.Cors{
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
	}
	if c.MaxAge > 0 {
		cors.MaxAge = sdk.Int32(c.MaxAge)
	}
	return cors
}

type ApiV2State struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	APIEndpoint  string `json:"apiEndpoint"`
	ExecutionARN string `json:"executionArn"`
}

func (p *Provider) applyApiV2(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired ApiV2Config
	var prior ApiV2State
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.ID != "" {
			_, err := p.apigwv2Client.DeleteApi(ctx, &apigatewayv2.DeleteApiInput{ApiId: &prior.ID})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to delete API: %w", err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	if !isCreate(req) {
		input := &apigatewayv2.UpdateApiInput{ApiId: &prior.ID, Name: &desired.Name}
		if desired.CorsConfiguration != nil {
			input.CorsConfiguration = desired.CorsConfiguration.toSDK()
		}
		if _, err := p.apigwv2Client.UpdateApi(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to update API: %w", err)
		}
		if desired.CorsConfiguration == nil {
			_, err := p.apigwv2Client.DeleteCorsConfiguration(ctx, &apigatewayv2.DeleteCorsConfigurationInput{ApiId: &prior.ID})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to remove CORS configuration: %w", err)
			}
		}
		prior.Name = desired.Name
		return respond(prior)
	}

	input := &apigatewayv2.CreateApiInput{
		Name:         &desired.Name,
		ProtocolType: types.ProtocolType(desired.ProtocolType),
	}
	if desired.CorsConfiguration != nil {
		input.CorsConfiguration = desired.CorsConfiguration.toSDK()
	}
	resp, err := p.apigwv2Client.CreateApi(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create API: %w", err)
	}

	id := sdk.ToString(resp.ApiId)
	return respond(ApiV2State{
		ID:           id,
		Name:         sdk.ToString(resp.Name),
		APIEndpoint:  sdk.ToString(resp.ApiEndpoint),
		ExecutionARN: ExecuteAPIARN(p.currentRegion(), p.account(), id),
	})
}

type IntegrationV2Config struct {
	ApiID                string `json:"apiId"`
	IntegrationType      string `json:"integrationType"`
	IntegrationMethod    string `json:"integrationMethod"`
	IntegrationURI       string `json:"integrationUri"`
	PayloadFormatVersion string `json:"payloadFormatVersion"`
	TimeoutInMillis      int32  `json:"timeoutInMillis"`
}

type IntegrationV2State struct {
	ID    string `json:"id"`
	ApiID string `json:"apiId"`
}

func (p *Provider) applyIntegrationV2(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired IntegrationV2Config
	var prior IntegrationV2State
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.ID != "" {
			_, err := p.apigwv2Client.DeleteIntegration(ctx, &apigatewayv2.DeleteIntegrationInput{
				ApiId:         &prior.ApiID,
				IntegrationId: &prior.ID,
			})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to delete integration: %w", err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	var timeout *int32
	if desired.TimeoutInMillis > 0 {
		timeout = &desired.TimeoutInMillis
	}

	if !isCreate(req) {
		_, err := p.apigwv2Client.UpdateIntegration(ctx, &apigatewayv2.UpdateIntegrationInput{
			ApiId:                &prior.ApiID,
			IntegrationId:        &prior.ID,
			IntegrationType:      types.IntegrationType(desired.IntegrationType),
			IntegrationMethod:    &desired.IntegrationMethod,
			IntegrationUri:       &desired.IntegrationURI,
			PayloadFormatVersion: &desired.PayloadFormatVersion,
			TimeoutInMillis:      timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update integration: %w", err)
		}
		return respond(prior)
	}

	resp, err := p.apigwv2Client.CreateIntegration(ctx, &apigatewayv2.CreateIntegrationInput{
		ApiId:                &desired.ApiID,
		IntegrationType:      types.IntegrationType(desired.IntegrationType),
		IntegrationMethod:    &desired.IntegrationMethod,
		IntegrationUri:       &desired.IntegrationURI,
		PayloadFormatVersion: &desired.PayloadFormatVersion,
		TimeoutInMillis:      timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create integration: %w", err)
	}
	return respond(IntegrationV2State{ID: sdk.ToString(resp.IntegrationId), ApiID: desired.ApiID})
}

type RouteV2Config struct {
	ApiID    string `json:"apiId"`
	RouteKey string `json:"routeKey"`
	Target   string `json:"target"`
}

type RouteV2State struct {
	ID       string `json:"id"`
	ApiID    string `json:"apiId"`
	RouteKey string `json:"routeKey"`
}

func (p *Provider) applyRouteV2(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RouteV2Config
	var prior RouteV2State
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.ID != "" {
			_, err := p.apigwv2Client.DeleteRoute(ctx, &apigatewayv2.DeleteRouteInput{
				ApiId:   &prior.ApiID,
				RouteId: &prior.ID,
			})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to delete route %s: %w", prior.RouteKey, err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	if !isCreate(req) {
		_, err := p.apigwv2Client.UpdateRoute(ctx, &apigatewayv2.UpdateRouteInput{
			ApiId:    &prior.ApiID,
			RouteId:  &prior.ID,
			RouteKey: &desired.RouteKey,
			Target:   &desired.Target,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update route %s: %w", desired.RouteKey, err)
		}
		prior.RouteKey = desired.RouteKey
		return respond(prior)
	}

	resp, err := p.apigwv2Client.CreateRoute(ctx, &apigatewayv2.CreateRouteInput{
		ApiId:    &desired.ApiID,
		RouteKey: &desired.RouteKey,
		Target:   &desired.Target,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create route %s: %w", desired.RouteKey, err)
	}
	return respond(RouteV2State{ID: sdk.ToString(resp.RouteId), ApiID: desired.ApiID, RouteKey: desired.RouteKey})
}

type StageV2Config struct {
	ApiID      string `json:"apiId"`
	Name       string `json:"name"`
	AutoDeploy bool   `json:"autoDeploy"`
}

type StageV2State struct {
	StageV2Config
	InvokeURL string `json:"invokeUrl"`
}

func (p *Provider) applyStageV2(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired StageV2Config
	var prior StageV2State
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		_, err := p.apigwv2Client.DeleteStage(ctx, &apigatewayv2.DeleteStageInput{
			ApiId:     &prior.ApiID,
			StageName: &prior.Name,
		})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to delete stage %s: %w", prior.Name, err)
		}
		return &provider.ApplyResponse{}, nil
	}

	if isCreate(req) {
		_, err := p.apigwv2Client.CreateStage(ctx, &apigatewayv2.CreateStageInput{
			ApiId:      &desired.ApiID,
			StageName:  &desired.Name,
			AutoDeploy: sdk.Bool(desired.AutoDeploy),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stage %s: %w", desired.Name, err)
		}
	} else {
		_, err := p.apigwv2Client.UpdateStage(ctx, &apigatewayv2.UpdateStageInput{
			ApiId:      &desired.ApiID,
			StageName:  &desired.Name,
			AutoDeploy: sdk.Bool(desired.AutoDeploy),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update stage %s: %w", desired.Name, err)
		}
	}

	return respond(StageV2State{
		StageV2Config: desired,
		InvokeURL:     StageURL(desired.ApiID, p.currentRegion(), desired.Name),
	})
}
