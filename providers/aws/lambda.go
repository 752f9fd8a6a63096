package aws

import (
	"context"
	"fmt"
	"os"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type FunctionConfig struct {
	FunctionName string            `json:"functionName"`
	Runtime      string            `json:"runtime"`
	Handler      string            `json:"handler"`
	Role         string            `json:"role"`
	Archive      string            `json:"archive"`
	CodeSha256   string            `json:"codeSha256"`
	Environment  map[string]string `json:"environment"`
	MemorySize   int32             `json:"memorySize"`
	Timeout      int32             `json:"timeout"`
}

type FunctionState struct {
	FunctionName string `json:"functionName"`
	ARN          string `json:"arn"`
	InvokeARN    string `json:"invokeArn"`
	Version      string `json:"version"`
	CodeSha256   string `json:"codeSha256"`
}

func (p *Provider) applyFunction(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired FunctionConfig
	var prior FunctionState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.FunctionName != "" {
			_, err := p.lambdaClient.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
				FunctionName: &prior.FunctionName,
			})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to delete function: %w", err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	if isCreate(req) {
		return p.createFunction(ctx, desired)
	}
	return p.updateFunction(ctx, desired, prior)
}

func (p *Provider) createFunction(ctx context.Context, desired FunctionConfig) (*provider.ApplyResponse, error) {
	zipBytes, err := os.ReadFile(desired.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to read function archive: %w", err)
	}

	input := &lambda.CreateFunctionInput{
		FunctionName: &desired.FunctionName,
		Runtime:      types.Runtime(desired.Runtime),
		Handler:      &desired.Handler,
		Role:         &desired.Role,
		Code:         &types.FunctionCode{ZipFile: zipBytes},
		Environment:  &types.Environment{Variables: desired.Environment},
	}
	if desired.MemorySize > 0 {
		input.MemorySize = &desired.MemorySize
	}
	if desired.Timeout > 0 {
		input.Timeout = &desired.Timeout
	}

	resp, err := p.lambdaClient.CreateFunction(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create function: %w", err)
	}

	waiter := lambda.NewFunctionActiveV2Waiter(p.lambdaClient)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: resp.FunctionName}, p.waitTimeout); err != nil {
		return nil, fmt.Errorf("function %s did not become active: %w", desired.FunctionName, err)
	}

	return respond(p.functionState(resp.FunctionName, resp.FunctionArn, resp.Version, resp.CodeSha256))
}

func (p *Provider) updateFunction(ctx context.Context, desired FunctionConfig, prior FunctionState) (*provider.ApplyResponse, error) {
	waiter := lambda.NewFunctionUpdatedV2Waiter(p.lambdaClient)
	get := &lambda.GetFunctionInput{FunctionName: &prior.FunctionName}

	codeSha := prior.CodeSha256
	if desired.CodeSha256 != prior.CodeSha256 {
		zipBytes, err := os.ReadFile(desired.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to read function archive: %w", err)
		}
		resp, err := p.lambdaClient.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
			FunctionName: &prior.FunctionName,
			ZipFile:      zipBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update function code: %w", err)
		}
		codeSha = sdk.ToString(resp.CodeSha256)
		// A configuration update is rejected while the code update is in progress.
		if err := waiter.Wait(ctx, get, p.waitTimeout); err != nil {
			return nil, fmt.Errorf("function %s code update did not finish: %w", prior.FunctionName, err)
		}
	}

	input := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: &prior.FunctionName,
		Runtime:      types.Runtime(desired.Runtime),
		Handler:      &desired.Handler,
		Role:         &desired.Role,
		Environment:  &types.Environment{Variables: desired.Environment},
	}
	if desired.MemorySize > 0 {
		input.MemorySize = &desired.MemorySize
	}
	if desired.Timeout > 0 {
		input.Timeout = &desired.Timeout
	}
	resp, err := p.lambdaClient.UpdateFunctionConfiguration(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to update function configuration: %w", err)
	}
	if err := waiter.Wait(ctx, get, p.waitTimeout); err != nil {
		return nil, fmt.Errorf("function %s configuration update did not finish: %w", prior.FunctionName, err)
	}

	return respond(p.functionState(resp.FunctionName, resp.FunctionArn, resp.Version, &codeSha))
}

func (p *Provider) functionState(name, arn, version, codeSha *string) FunctionState {
	return FunctionState{
		FunctionName: sdk.ToString(name),
		ARN:          sdk.ToString(arn),
		InvokeARN:    InvokeARN(p.currentRegion(), sdk.ToString(arn)),
		Version:      sdk.ToString(version),
		CodeSha256:   sdk.ToString(codeSha),
	}
}

type PermissionConfig struct {
	FunctionName string `json:"functionName"`
	StatementID  string `json:"statementId"`
	Action       string `json:"action"`
	Principal    string `json:"principal"`
	SourceARN    string `json:"sourceArn"`
}

type PermissionState struct {
	FunctionName string `json:"functionName"`
	StatementID  string `json:"statementId"`
}

func (p *Provider) applyPermission(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired PermissionConfig
	var prior PermissionState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.StatementID != "" {
			_, err := p.lambdaClient.RemovePermission(ctx, &lambda.RemovePermissionInput{
				FunctionName: &prior.FunctionName,
				StatementId:  &prior.StatementID,
			})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to remove permission: %w", err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	statementID := desired.StatementID
	if statementID == "" {
		statementID = "sitestack-" + req.Name
	}

	input := &lambda.AddPermissionInput{
		FunctionName: &desired.FunctionName,
		StatementId:  &statementID,
		Action:       &desired.Action,
		Principal:    &desired.Principal,
	}
	if desired.SourceARN != "" {
		input.SourceArn = &desired.SourceARN
	}

	if _, err := p.lambdaClient.AddPermission(ctx, input); err != nil {
		// The statement already exists.
		if !hasCode(err, "ResourceConflictException") {
			return nil, fmt.Errorf("failed to add permission: %w", err)
		}
	}

	return respond(PermissionState{FunctionName: desired.FunctionName, StatementID: statementID})
}
