package aws

import (
	"context"
	"fmt"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/picklr-io/sitestack/pkg/provider"
)

// CertificateLookupConfig finds an issued certificate by domain. The
// certificate itself is managed outside sitestack.
type CertificateLookupConfig struct {
	Domain string `json:"domain"`
}

type CertificateLookupState struct {
	Domain string `json:"domain"`
	ARN    string `json:"arn"`
}

func (p *Provider) applyCertificateLookup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired CertificateLookupConfig
	if err := decodeRequest(req, &desired, nil); err != nil {
		return nil, err
	}

	// Nothing was created, so there is nothing to delete.
	if isDelete(req) {
		return &provider.ApplyResponse{}, nil
	}

	arn, err := p.findCertificate(ctx, desired.Domain)
	if err != nil {
		return nil, err
	}
	return respond(CertificateLookupState{Domain: desired.Domain, ARN: arn})
}

func (p *Provider) findCertificate(ctx context.Context, domain string) (string, error) {
	paginator := acm.NewListCertificatesPaginator(p.acmClient, &acm.ListCertificatesInput{
		CertificateStatuses: []types.CertificateStatus{types.CertificateStatusIssued},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list certificates: %w", err)
		}
		for _, cert := range page.CertificateSummaryList {
			if trimDot(sdk.ToString(cert.DomainName)) == trimDot(domain) {
				return sdk.ToString(cert.CertificateArn), nil
			}
		}
	}
	return "", fmt.Errorf("no issued certificate for %s in %s", domain, CertificateRegion)
}
