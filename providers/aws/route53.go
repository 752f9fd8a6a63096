package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type RecordSetConfig struct {
	HostedZoneID string       `json:"hostedZoneId"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	AliasTarget  *AliasTarget `json:"aliasTarget"`
}

type AliasTarget struct {
	DNSName              string `json:"dnsName"`
	HostedZoneID         string `json:"hostedZoneId"`
	EvaluateTargetHealth bool   `json:"evaluateTargetHealth"`
}

type RecordSetState struct {
	RecordSetConfig
	FQDN string `json:"fqdn"`
}

func (p *Provider) applyRecordSet(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired RecordSetConfig
	var prior RecordSetState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.Name == "" {
			return &provider.ApplyResponse{}, nil
		}
		err := p.changeRecord(ctx, types.ChangeActionDelete, prior.RecordSetConfig)
		// Route 53 reports a missing record as an invalid change batch.
		if err != nil && !isNotFound(err) && !hasCode(err, "InvalidChangeBatch") {
			return nil, fmt.Errorf("failed to delete record %s: %w", prior.Name, err)
		}
		return &provider.ApplyResponse{}, nil
	}

	if err := p.changeRecord(ctx, types.ChangeActionUpsert, desired); err != nil {
		return nil, fmt.Errorf("failed to upsert record %s: %w", desired.Name, err)
	}
	return respond(RecordSetState{RecordSetConfig: desired, FQDN: trimDot(desired.Name)})
}

func (p *Provider) changeRecord(ctx context.Context, action types.ChangeAction, rec RecordSetConfig) error {
	set := &types.ResourceRecordSet{
		Name: &rec.Name,
		Type: types.RRType(rec.Type),
	}
	if rec.AliasTarget != nil {
		set.AliasTarget = &types.AliasTarget{
			DNSName:              &rec.AliasTarget.DNSName,
			HostedZoneId:         &rec.AliasTarget.HostedZoneID,
			EvaluateTargetHealth: rec.AliasTarget.EvaluateTargetHealth,
		}
	}
	_, err := p.route53Client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &rec.HostedZoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{Action: action, ResourceRecordSet: set}},
		},
	})
	return err
}
