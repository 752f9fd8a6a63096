package aws

import (
	"context"
	"fmt"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"
	"github.com/picklr-io/sitestack/internal/logging"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type DistributionConfig struct {
	Enabled              bool                  `json:"enabled"`
	Comment              string                `json:"comment"`
	Aliases              []string              `json:"aliases"`
	PriceClass           string                `json:"priceClass"`
	DefaultRootObject    string                `json:"defaultRootObject"`
	CallerReference      string                `json:"callerReference"`
	Origins              []Origin              `json:"origins"`
	DefaultCacheBehavior CacheBehavior         `json:"defaultCacheBehavior"`
	CustomErrorResponses []CustomErrorResponse `json:"customErrorResponses"`
	Restrictions         Restrictions          `json:"restrictions"`
	ViewerCertificate    ViewerCertificate     `json:"viewerCertificate"`
}

type Origin struct {
	OriginID           string             `json:"originId"`
	DomainName         string             `json:"domainName"`
	CustomOriginConfig CustomOriginConfig `json:"customOriginConfig"`
}

type CustomOriginConfig struct {
	OriginProtocolPolicy string   `json:"originProtocolPolicy"`
	HTTPPort             int32    `json:"httpPort"`
	HTTPSPort            int32    `json:"httpsPort"`
	OriginSSLProtocols   []string `json:"originSslProtocols"`
}

type CacheBehavior struct {
	TargetOriginID       string          `json:"targetOriginId"`
	ViewerProtocolPolicy string          `json:"viewerProtocolPolicy"`
	AllowedMethods       []string        `json:"allowedMethods"`
	CachedMethods        []string        `json:"cachedMethods"`
	MinTTL               int64           `json:"minTtl"`
	DefaultTTL           int64           `json:"defaultTtl"`
	MaxTTL               int64           `json:"maxTtl"`
	ForwardedValues      ForwardedValues `json:"forwardedValues"`
}

type ForwardedValues struct {
	QueryString bool `json:"queryString"`
	Cookies     struct {
		Forward string `json:"forward"`
	} `json:"cookies"`
}

type CustomErrorResponse struct {
	ErrorCode        int32  `json:"errorCode"`
	ResponseCode     int32  `json:"responseCode"`
	ResponsePagePath string `json:"responsePagePath"`
}

type Restrictions struct {
	GeoRestriction struct {
		RestrictionType string   `json:"restrictionType"`
		Locations       []string `json:"locations"`
	} `json:"geoRestriction"`
}

type ViewerCertificate struct {
	CloudFrontDefaultCertificate bool   `json:"cloudfrontDefaultCertificate"`
	ACMCertificateARN            string `json:"acmCertificateArn"`
	SSLSupportMethod             string `json:"sslSupportMethod"`
	MinimumProtocolVersion       string `json:"minimumProtocolVersion"`
}

type DistributionState struct {
	ID              string `json:"id"`
	ARN             string `json:"arn"`
	DomainName      string `json:"domainName"`
	HostedZoneID    string `json:"hostedZoneId"`
	Status          string `json:"status"`
	ETag            string `json:"etag"`
	CallerReference string `json:"callerReference"`
}

func (p *Provider) applyDistribution(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired DistributionConfig
	var prior DistributionState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		if prior.ID == "" {
			return &provider.ApplyResponse{}, nil
		}
		if err := p.deleteDistribution(ctx, prior.ID); err != nil {
			return nil, err
		}
		return &provider.ApplyResponse{}, nil
	}

	var dist *types.Distribution
	var etag *string
	if isCreate(req) {
		callerRef := desired.CallerReference
		if callerRef == "" {
			callerRef = uuid.NewString()
		}
		resp, err := p.cloudfrontClient.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
			DistributionConfig: buildDistributionConfig(desired, callerRef),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create distribution: %w", err)
		}
		dist, etag = resp.Distribution, resp.ETag
	} else {
		// Updates must carry the ETag of the current configuration.
		current, err := p.cloudfrontClient.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
			Id: &prior.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read distribution %s: %w", prior.ID, err)
		}
		resp, err := p.cloudfrontClient.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 &prior.ID,
			IfMatch:            current.ETag,
			DistributionConfig: buildDistributionConfig(desired, sdk.ToString(current.DistributionConfig.CallerReference)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update distribution %s: %w", prior.ID, err)
		}
		dist, etag = resp.Distribution, resp.ETag
	}

	return respond(DistributionState{
		ID:              sdk.ToString(dist.Id),
		ARN:             sdk.ToString(dist.ARN),
		DomainName:      sdk.ToString(dist.DomainName),
		HostedZoneID:    CloudFrontZoneID,
		Status:          sdk.ToString(dist.Status),
		ETag:            sdk.ToString(etag),
		CallerReference: sdk.ToString(dist.DistributionConfig.CallerReference),
	})
}

// deleteDistribution disables the distribution, waits for the change to
// deploy and then deletes it.
func (p *Provider) deleteDistribution(ctx context.Context, id string) error {
	current, err := p.cloudfrontClient.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{Id: &id})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to read distribution %s: %w", id, err)
	}

	etag := current.ETag
	if sdk.ToBool(current.DistributionConfig.Enabled) {
		cfg := current.DistributionConfig
		cfg.Enabled = sdk.Bool(false)
		resp, err := p.cloudfrontClient.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 &id,
			IfMatch:            etag,
			DistributionConfig: cfg,
		})
		if err != nil {
			return fmt.Errorf("failed to disable distribution %s: %w", id, err)
		}
		etag = resp.ETag
		logging.Info("waiting for distribution to be disabled", "id", id)
	}

	waiter := cloudfront.NewDistributionDeployedWaiter(p.cloudfrontClient)
	out, err := waiter.WaitForOutput(ctx, &cloudfront.GetDistributionInput{Id: &id}, p.waitTimeout)
	if err != nil {
		return fmt.Errorf("distribution %s did not finish deploying: %w", id, err)
	}
	if out.ETag != nil {
		etag = out.ETag
	}

	_, err = p.cloudfrontClient.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      &id,
		IfMatch: etag,
	})
	if err := ignoreNotFound(err); err != nil {
		return fmt.Errorf("failed to delete distribution %s: %w", id, err)
	}
	return nil
}

func methods(names []string) []types.Method {
	out := make([]types.Method, 0, len(names))
	for _, m := range names {
		out = append(out, types.Method(m))
	}
	return out
}

func buildDistributionConfig(desired DistributionConfig, callerRef string) *types.DistributionConfig {
	origins := make([]types.Origin, 0, len(desired.Origins))
	for _, o := range desired.Origins {
		protocols := make([]types.SslProtocol, 0, len(o.CustomOriginConfig.OriginSSLProtocols))
		for _, sp := range o.CustomOriginConfig.OriginSSLProtocols {
			protocols = append(protocols, types.SslProtocol(sp))
		}
		origins = append(origins, types.Origin{
			Id:         sdk.String(o.OriginID),
			DomainName: sdk.String(o.DomainName),
			CustomOriginConfig: &types.CustomOriginConfig{
				HTTPPort:             sdk.Int32(o.CustomOriginConfig.HTTPPort),
				HTTPSPort:            sdk.Int32(o.CustomOriginConfig.HTTPSPort),
				OriginProtocolPolicy: types.OriginProtocolPolicy(o.CustomOriginConfig.OriginProtocolPolicy),
				OriginSslProtocols: &types.OriginSslProtocols{
					Quantity: sdk.Int32(int32(len(protocols))),
					Items:    protocols,
				},
			},
		})
	}

	cb := desired.DefaultCacheBehavior
	allowed := methods(cb.AllowedMethods)
	cached := methods(cb.CachedMethods)
	cookies := types.ItemSelection(cb.ForwardedValues.Cookies.Forward)
	if cookies == "" {
		cookies = types.ItemSelectionNone
	}

	errorResponses := make([]types.CustomErrorResponse, 0, len(desired.CustomErrorResponses))
	for _, r := range desired.CustomErrorResponses {
		errorResponses = append(errorResponses, types.CustomErrorResponse{
			ErrorCode:        sdk.Int32(r.ErrorCode),
			ResponseCode:     sdk.String(fmt.Sprint(r.ResponseCode)),
			ResponsePagePath: sdk.String(r.ResponsePagePath),
		})
	}

	geo := desired.Restrictions.GeoRestriction
	if geo.RestrictionType == "" {
		geo.RestrictionType = string(types.GeoRestrictionTypeNone)
	}

	cfg := &types.DistributionConfig{
		CallerReference: sdk.String(callerRef),
		Comment:         sdk.String(desired.Comment),
		Enabled:         sdk.Bool(desired.Enabled),
		PriceClass:      types.PriceClass(desired.PriceClass),
		Origins: &types.Origins{
			Quantity: sdk.Int32(int32(len(origins))),
			Items:    origins,
		},
		DefaultCacheBehavior: &types.DefaultCacheBehavior{
			TargetOriginId:       sdk.String(cb.TargetOriginID),
			ViewerProtocolPolicy: types.ViewerProtocolPolicy(cb.ViewerProtocolPolicy),
			AllowedMethods: &types.AllowedMethods{
				Quantity: sdk.Int32(int32(len(allowed))),
				Items:    allowed,
				CachedMethods: &types.CachedMethods{
					Quantity: sdk.Int32(int32(len(cached))),
					Items:    cached,
				},
			},
			MinTTL:     sdk.Int64(cb.MinTTL),
			DefaultTTL: sdk.Int64(cb.DefaultTTL),
			MaxTTL:     sdk.Int64(cb.MaxTTL),
			ForwardedValues: &types.ForwardedValues{
				QueryString: sdk.Bool(cb.ForwardedValues.QueryString),
				Cookies:     &types.CookiePreference{Forward: cookies},
			},
		},
		CustomErrorResponses: &types.CustomErrorResponses{
			Quantity: sdk.Int32(int32(len(errorResponses))),
			Items:    errorResponses,
		},
		Restrictions: &types.Restrictions{
			GeoRestriction: &types.GeoRestriction{
				RestrictionType: types.GeoRestrictionType(geo.RestrictionType),
				Quantity:        sdk.Int32(int32(len(geo.Locations))),
				Items:           geo.Locations,
			},
		},
		Aliases: &types.Aliases{
			Quantity: sdk.Int32(int32(len(desired.Aliases))),
			Items:    desired.Aliases,
		},
	}
	if desired.DefaultRootObject != "" {
		cfg.DefaultRootObject = sdk.String(desired.DefaultRootObject)
	}

	vc := desired.ViewerCertificate
	if vc.ACMCertificateARN != "" {
		cfg.ViewerCertificate = &types.ViewerCertificate{
			ACMCertificateArn:      sdk.String(vc.ACMCertificateARN),
			SSLSupportMethod:       types.SSLSupportMethod(vc.SSLSupportMethod),
			MinimumProtocolVersion: types.MinimumProtocolVersion(vc.MinimumProtocolVersion),
		}
	} else {
		cfg.ViewerCertificate = &types.ViewerCertificate{
			CloudFrontDefaultCertificate: sdk.Bool(true),
		}
	}
	return cfg
}
