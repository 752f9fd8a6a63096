package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type LogGroupConfig struct {
	Name            string `json:"name"`
	RetentionInDays int32  `json:"retentionInDays"`
}

type LogGroupState struct {
	Name            string `json:"name"`
	ARN             string `json:"arn"`
	RetentionInDays int32  `json:"retentionInDays"`
}

func (p *Provider) applyLogGroup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired LogGroupConfig
	var prior LogGroupState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.Name != "" {
			_, err := p.logsClient.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{LogGroupName: &prior.Name})
			if err := ignoreNotFound(err); err != nil {
				return nil, fmt.Errorf("failed to delete log group: %w", err)
			}
		}
		return &provider.ApplyResponse{}, nil
	}

	if isCreate(req) {
		_, err := p.logsClient.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: &desired.Name})
		// Lambda creates its log group on first invocation, so it may already exist.
		if err != nil && !hasCode(err, "ResourceAlreadyExistsException") {
			return nil, fmt.Errorf("failed to create log group: %w", err)
		}
	}

	if desired.RetentionInDays > 0 {
		_, err := p.logsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    &desired.Name,
			RetentionInDays: &desired.RetentionInDays,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set retention of %s: %w", desired.Name, err)
		}
	} else if prior.RetentionInDays > 0 {
		_, err := p.logsClient.DeleteRetentionPolicy(ctx, &cloudwatchlogs.DeleteRetentionPolicyInput{
			LogGroupName: &desired.Name,
		})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to clear retention of %s: %w", desired.Name, err)
		}
	}

	return respond(LogGroupState{
		Name:            desired.Name,
		ARN:             fmt.Sprintf("arn:aws:logs:%s:%s:log-group:%s", p.currentRegion(), p.account(), desired.Name),
		RetentionInDays: desired.RetentionInDays,
	})
}
