package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/picklr-io/sitestack/pkg/provider"
)

type BucketConfig struct {
	Bucket       string         `json:"bucket"`
	BucketPrefix string         `json:"bucketPrefix"`
	ForceDestroy bool           `json:"forceDestroy"`
	Website      *WebsiteConfig `json:"website"`
}

type WebsiteConfig struct {
	IndexDocument string `json:"indexDocument"`
	ErrorDocument string `json:"errorDocument"`
}

type BucketState struct {
	Bucket           string `json:"bucket"`
	ARN              string `json:"arn"`
	Region           string `json:"region"`
	BucketDomainName string `json:"bucketDomainName"`
	WebsiteEndpoint  string `json:"websiteEndpoint,omitempty"`
	WebsiteDomain    string `json:"websiteDomain,omitempty"`
	ForceDestroy     bool   `json:"forceDestroy"`
}

// legacyWebsiteRegions use a dash between s3-website and the region.
var legacyWebsiteRegions = map[string]bool{
	"us-east-1":      true,
	"us-west-1":      true,
	"us-west-2":      true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"ap-northeast-1": true,
	"eu-west-1":      true,
	"sa-east-1":      true,
	"us-gov-west-1":  true,
}

// WebsiteDomain returns the domain of S3 website endpoints in region.
func WebsiteDomain(region string) string {
	if legacyWebsiteRegions[region] {
		return "s3-website-" + region + ".amazonaws.com"
	}
	return "s3-website." + region + ".amazonaws.com"
}

// bucketName picks the bucket name for a new bucket.
func bucketName(desired BucketConfig) string {
	if desired.Bucket != "" {
		return desired.Bucket
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return desired.BucketPrefix + suffix
}

func (p *Provider) bucketGone(ctx context.Context, priorJSON []byte) (bool, error) {
	var prior BucketState
	if err := json.Unmarshal(priorJSON, &prior); err != nil {
		return false, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}
	if prior.Bucket == "" {
		return false, nil
	}
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &prior.Bucket})
	if err == nil {
		return false, nil
	}
	if isNotFound(err) {
		return true, nil
	}
	return false, fmt.Errorf("failed to check bucket existence: %w", err)
}

func (p *Provider) applyBucket(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired BucketConfig
	var prior BucketState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	// DELETE
	if isDelete(req) {
		if prior.Bucket == "" {
			return &provider.ApplyResponse{}, nil
		}
		if prior.ForceDestroy {
			if err := p.emptyBucket(ctx, prior.Bucket, ""); err != nil {
				return nil, err
			}
		}
		_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: &prior.Bucket})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to delete bucket: %w", err)
		}
		return &provider.ApplyResponse{}, nil
	}

	region := p.currentRegion()
	name := prior.Bucket
	if isCreate(req) {
		name = bucketName(desired)
		input := &s3.CreateBucketInput{Bucket: &name}
		if region != "us-east-1" {
			input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(region),
			}
		}
		if _, err := p.s3Client.CreateBucket(ctx, input); err != nil {
			// Already owning the bucket makes create idempotent.
			if !hasCode(err, "BucketAlreadyOwnedByYou") {
				return nil, fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	}

	state := BucketState{
		Bucket:           name,
		ARN:              "arn:aws:s3:::" + name,
		Region:           region,
		BucketDomainName: name + ".s3.amazonaws.com",
		ForceDestroy:     desired.ForceDestroy,
	}

	if desired.Website != nil {
		website := &types.WebsiteConfiguration{
			IndexDocument: &types.IndexDocument{Suffix: sdk.String(desired.Website.IndexDocument)},
		}
		if desired.Website.ErrorDocument != "" {
			website.ErrorDocument = &types.ErrorDocument{Key: sdk.String(desired.Website.ErrorDocument)}
		}
		_, err := p.s3Client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
			Bucket:               &name,
			WebsiteConfiguration: website,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure bucket website: %w", err)
		}
		state.WebsiteDomain = WebsiteDomain(region)
		state.WebsiteEndpoint = name + "." + state.WebsiteDomain
	}

	return respond(state)
}

// emptyBucket deletes every object under prefix.
func (p *Provider) emptyBucket(ctx context.Context, bucket, prefix string) error {
	input := &s3.ListObjectsV2Input{Bucket: &bucket}
	if prefix != "" {
		input.Prefix = &prefix
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(p.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to list objects in %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, sdk.ToString(obj.Key))
		}
	}
	return p.deleteKeys(ctx, bucket, keys)
}

// deleteKeys removes keys in batches of the API maximum.
func (p *Provider) deleteKeys(ctx context.Context, bucket string, keys []string) error {
	const batch = 1000
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: sdk.String(k)})
		}
		resp, err := p.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &bucket,
			Delete: &types.Delete{Objects: objects, Quiet: sdk.Bool(true)},
		})
		if err := ignoreNotFound(err); err != nil {
			return fmt.Errorf("failed to delete objects from %s: %w", bucket, err)
		}
		if resp != nil && len(resp.Errors) > 0 {
			e := resp.Errors[0]
			return fmt.Errorf("failed to delete %s from %s: %s", sdk.ToString(e.Key), bucket, sdk.ToString(e.Message))
		}
	}
	return nil
}

type OwnershipControlsConfig struct {
	Bucket          string `json:"bucket"`
	ObjectOwnership string `json:"objectOwnership"`
}

type OwnershipControlsState struct {
	Bucket          string `json:"bucket"`
	ObjectOwnership string `json:"objectOwnership"`
}

func (p *Provider) applyOwnershipControls(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired OwnershipControlsConfig
	var prior OwnershipControlsState
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		_, err := p.s3Client.DeleteBucketOwnershipControls(ctx, &s3.DeleteBucketOwnershipControlsInput{
			Bucket: &prior.Bucket,
		})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to delete ownership controls: %w", err)
		}
		return &provider.ApplyResponse{}, nil
	}

	_, err := p.s3Client.PutBucketOwnershipControls(ctx, &s3.PutBucketOwnershipControlsInput{
		Bucket: &desired.Bucket,
		OwnershipControls: &types.OwnershipControls{
			Rules: []types.OwnershipControlsRule{
				{ObjectOwnership: types.ObjectOwnership(desired.ObjectOwnership)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put ownership controls: %w", err)
	}

	return respond(OwnershipControlsState(desired))
}

type PublicAccessBlockConfig struct {
	Bucket                string `json:"bucket"`
	BlockPublicAcls       bool   `json:"blockPublicAcls"`
	BlockPublicPolicy     bool   `json:"blockPublicPolicy"`
	IgnorePublicAcls      bool   `json:"ignorePublicAcls"`
	RestrictPublicBuckets bool   `json:"restrictPublicBuckets"`
}

func (p *Provider) applyPublicAccessBlock(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired, prior PublicAccessBlockConfig
	if err := decodeRequest(req, &desired, &prior); err != nil {
		return nil, err
	}

	if isDelete(req) {
		_, err := p.s3Client.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{
			Bucket: &prior.Bucket,
		})
		if err := ignoreNotFound(err); err != nil {
			return nil, fmt.Errorf("failed to delete public access block: %w", err)
		}
		return &provider.ApplyResponse{}, nil
	}

	_, err := p.s3Client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: &desired.Bucket,
		PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       sdk.Bool(desired.BlockPublicAcls),
			BlockPublicPolicy:     sdk.Bool(desired.BlockPublicPolicy),
			IgnorePublicAcls:      sdk.Bool(desired.IgnorePublicAcls),
			RestrictPublicBuckets: sdk.Bool(desired.RestrictPublicBuckets),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put public access block: %w", err)
	}

	return respond(desired)
}
