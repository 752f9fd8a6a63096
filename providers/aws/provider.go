// Package aws maps sitestack resource types onto the AWS APIs.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/sitestack/pkg/provider"
)

// CertificateRegion is where CloudFront looks up ACM certificates.
const CertificateRegion = "us-east-1"

type Provider struct {
	mu        sync.Mutex
	region    string
	accountID string

	s3Client         s3API
	cloudfrontClient cloudfrontAPI
	iamClient        iamAPI
	lambdaClient     lambdaAPI
	logsClient       logsAPI
	acmClient        acmAPI
	route53Client    route53API
	apigatewayClient apigatewayAPI
	apigwv2Client    apigatewayv2API
	stsClient        stsAPI

	// waitTimeout bounds how long CloudFront and Lambda waiters poll.
	waitTimeout time.Duration
	// uploadConcurrency bounds parallel object uploads of a bucket folder.
	uploadConcurrency int
}

func New() *Provider {
	return &Provider{
		waitTimeout:       30 * time.Minute,
		uploadConcurrency: 8,
	}
}

// Configure loads the default credential chain for the region and resolves
// the caller's account, which execution ARNs are scoped to.
func (p *Provider) Configure(ctx context.Context, req *provider.ConfigureRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Region != "" {
		p.region = req.Region
	}
	if p.region == "" {
		p.region = "us-east-1"
	}

	if p.stsClient == nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
		if err != nil {
			return fmt.Errorf("unable to load SDK config: %w", err)
		}
		p.s3Client = s3.NewFromConfig(cfg)
		p.cloudfrontClient = cloudfront.NewFromConfig(cfg)
		p.iamClient = iam.NewFromConfig(cfg)
		p.lambdaClient = lambda.NewFromConfig(cfg)
		p.logsClient = cloudwatchlogs.NewFromConfig(cfg)
		p.acmClient = acm.NewFromConfig(cfg, func(o *acm.Options) {
			o.Region = CertificateRegion
		})
		p.route53Client = route53.NewFromConfig(cfg)
		p.apigatewayClient = apigateway.NewFromConfig(cfg)
		p.apigwv2Client = apigatewayv2.NewFromConfig(cfg)
		p.stsClient = sts.NewFromConfig(cfg)
	}

	if p.accountID == "" {
		identity, err := p.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return fmt.Errorf("failed to resolve AWS account: %w", err)
		}
		p.accountID = sdk.ToString(identity.Account)
	}
	return nil
}

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if !Supports(req.Type) {
		return nil, fmt.Errorf("unsupported resource type: %s", req.Type)
	}

	if req.Type == TypeBucket && len(req.PriorStateJSON) > 0 {
		gone, err := p.bucketGone(ctx, req.PriorStateJSON)
		if err != nil {
			return nil, err
		}
		if gone {
			return &provider.PlanResponse{Action: provider.ActionReplace}, nil
		}
	}

	return provider.PlanFromRequest(req, ForceNew(req.Type))
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if len(req.DesiredConfigJSON) == 0 {
		return nil, fmt.Errorf("%s.%s: apply without a desired configuration", req.Type, req.Name)
	}
	return p.apply(ctx, req)
}

// Delete removes the resource described by its recorded state. Resources that
// are already gone are not an error.
func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	if len(req.CurrentStateJSON) == 0 {
		return nil
	}
	_, err := p.apply(ctx, &provider.ApplyRequest{
		Type:           req.Type,
		Name:           req.Name,
		PriorStateJSON: req.CurrentStateJSON,
	})
	return err
}

// apply dispatches on the resource type. A request without a desired
// configuration deletes the resource; one without prior state creates it.
func (p *Provider) apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	switch req.Type {
	case TypeBucket:
		return p.applyBucket(ctx, req)
	case TypeBucketOwnershipControls:
		return p.applyOwnershipControls(ctx, req)
	case TypeBucketPublicAccessBlock:
		return p.applyPublicAccessBlock(ctx, req)
	case TypeBucketFolder:
		return p.applyBucketFolder(ctx, req)

	case TypeDistribution:
		return p.applyDistribution(ctx, req)

	case TypeRole:
		return p.applyRole(ctx, req)
	case TypePolicyAttachment:
		return p.applyPolicyAttachment(ctx, req)

	case TypeFunction:
		return p.applyFunction(ctx, req)
	case TypePermission:
		return p.applyPermission(ctx, req)
	case TypeLogGroup:
		return p.applyLogGroup(ctx, req)

	case TypeCertificateLookup:
		return p.applyCertificateLookup(ctx, req)
	case TypeRecordSet:
		return p.applyRecordSet(ctx, req)

	case TypeManagedRestAPI:
		return p.applyManagedRestAPI(ctx, req)
	case TypeRestApi:
		return p.applyRestApi(ctx, req)
	case TypeApiResource:
		return p.applyApiResource(ctx, req)
	case TypeMethod:
		return p.applyMethod(ctx, req)
	case TypeIntegration:
		return p.applyIntegration(ctx, req)
	case TypeMethodResponse:
		return p.applyMethodResponse(ctx, req)
	case TypeIntegrationResponse:
		return p.applyIntegrationResponse(ctx, req)
	case TypeDeployment:
		return p.applyDeployment(ctx, req)
	case TypeStage:
		return p.applyStage(ctx, req)

	case TypeHTTPApi:
		return p.applyApiV2(ctx, req)
	case TypeHTTPIntegration:
		return p.applyIntegrationV2(ctx, req)
	case TypeHTTPRoute:
		return p.applyRouteV2(ctx, req)
	case TypeHTTPStage:
		return p.applyStageV2(ctx, req)
	}

	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func isDelete(req *provider.ApplyRequest) bool {
	return len(req.DesiredConfigJSON) == 0
}

func isCreate(req *provider.ApplyRequest) bool {
	return len(req.PriorStateJSON) == 0
}

// decodeRequest unmarshals the desired configuration and, when present, the
// prior state of req.
func decodeRequest(req *provider.ApplyRequest, desired, prior any) error {
	if desired != nil && len(req.DesiredConfigJSON) > 0 {
		if err := json.Unmarshal(req.DesiredConfigJSON, desired); err != nil {
			return fmt.Errorf("failed to unmarshal desired config: %w", err)
		}
	}
	if prior != nil && len(req.PriorStateJSON) > 0 {
		if err := json.Unmarshal(req.PriorStateJSON, prior); err != nil {
			return fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}
	return nil
}

func respond(state any) (*provider.ApplyResponse, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return &provider.ApplyResponse{NewStateJSON: stateJSON}, nil
}

var notFoundCodes = map[string]bool{
	"NotFound":                             true,
	"NoSuchBucket":                         true,
	"NoSuchEntity":                         true,
	"NoSuchDistribution":                   true,
	"NoSuchHostedZone":                     true,
	"NotFoundException":                    true,
	"ResourceNotFoundException":            true,
	"NoSuchOwnershipControls":              true,
	"NoSuchPublicAccessBlockConfiguration": true,
}

// isNotFound reports whether err says the target resource does not exist.
func isNotFound(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return notFoundCodes[ae.ErrorCode()]
	}
	return false
}

// hasCode reports whether err is an API error with one of codes.
func hasCode(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, c := range codes {
		if ae.ErrorCode() == c {
			return true
		}
	}
	return false
}

// ignoreNotFound drops the error when the resource is already gone.
func ignoreNotFound(err error) error {
	if err == nil || isNotFound(err) {
		return nil
	}
	return err
}

func (p *Provider) account() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accountID
}

func (p *Provider) currentRegion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.region
}

func trimDot(s string) string {
	return strings.TrimSuffix(s, ".")
}
