package aws

import (
	"context"
	"fmt"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type RoleConfig struct {
	Name             string `json:"name"`
	Path             string `json:"path"`
	Description      string `json:"description"`
	AssumeRolePolicy string `json:"assumeRolePolicy"`
}

type RoleState struct {
	Name   string `json:"name"`
	ARN    string `json:"arn"`
	RoleID string `json:"roleId"`
}

func (p *Provider) applyRole(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RoleConfig
	var prior RoleState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	// DELETE
	if isDelete(req) {
		if prior.Name != "" {
			_, err := p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: &prior.Name})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to delete role: %w", err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	// UPDATE: only the trust policy is mutable here; name and path force a new role.
	if !isCreate(req) {
		_, err := p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       &prior.Name,
			PolicyDocument: &desired.AssumeRolePolicy,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update trust policy of %s: %w", prior.Name, err)
		}
		return respond(prior)
	}

	// CREATE
	input := &iam.CreateRoleInput{
		RoleName:                 &desired.Name,
		AssumeRolePolicyDocument: &desired.AssumeRolePolicy,
	}
	if desired.Path != "" {
		input.Path = &desired.Path
	}
	if desired.Description != "" {
		input.Description = &desired.Description
	}

	resp, err := p.iamClient.CreateRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	return respond(RoleState{
		Name:   sdk.ToString(resp.Role.RoleName),
		ARN:    sdk.ToString(resp.Role.Arn),
		RoleID: sdk.ToString(resp.Role.RoleId),
	})
}

type PolicyAttachmentConfig struct {
	Role      string `json:"role"`
	PolicyARN string `json:"policyArn"`
}

func (p *Provider) applyPolicyAttachment(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired, prior PolicyAttachmentConfig
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		_, err := p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  &prior.Role,
			PolicyArn: &prior.PolicyARN,
		})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to detach %s from %s: %w", prior.PolicyARN, prior.Role, err)
		}
		return &provider.ApplyResponse{}, nil
	}

	// Attaching an attached policy is a no-op, so create and update are the same call.
	_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  &desired.Role,
		PolicyArn: &desired.PolicyARN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach %s to %s: %w", desired.PolicyARN, desired.Role, err)
	}
	return respond(desired)
}
