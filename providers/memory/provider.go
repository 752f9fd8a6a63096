// Package memory is an offline provider for the aws resource types. It keeps
// resources in memory and synthesizes the attributes AWS would return, which
// makes it suitable for dry runs and tests.
package memory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/picklr-io/sitestack/pkg/provider"
	"github.com/picklr-io/sitestack/providers/aws"
)

// AccountID is the account reported for synthesized ARNs.
const AccountID = "123456789012"

type Provider struct {
	mu        sync.Mutex
	region    string
	resources map[string]map[string]any
	failures  map[string][]error
	calls     []string
}

func New() *Provider {
	return &Provider{
		region:    "us-east-1",
		resources: make(map[string]map[string]any),
		failures:  make(map[string][]error),
	}
}

func (p *Provider) Configure(ctx context.Context, req *provider.ConfigureRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.Region != "" {
		p.region = req.Region
	}
	return nil
}

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if !aws.Supports(req.Type) {
		return nil, fmt.Errorf("unsupported resource type: %s", req.Type)
	}
	return provider.PlanFromRequest(req, aws.ForceNew(req.Type))
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	if !aws.Supports(req.Type) {
		return nil, fmt.Errorf("unsupported resource type: %s", req.Type)
	}
	addr := req.Type + "." + req.Name
	if err := p.record("apply", addr); err != nil {
		return nil, err
	}

	var desired map[string]any
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	var prior map[string]any
	if len(req.PriorStateJSON) > 0 {
		if err := json.Unmarshal(req.PriorStateJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
	}

	p.mu.Lock()
	region := p.region
	p.mu.Unlock()

	out := make(map[string]any, len(desired))
	for k, v := range desired {
		out[k] = v
	}
	synthesize(req.Type, req.Name, region, out, prior)

	p.mu.Lock()
	p.resources[addr] = out
	p.mu.Unlock()

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return &provider.ApplyResponse{NewStateJSON: data}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	addr := req.Type + "." + req.Name
	if err := p.record("delete", addr); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.resources, addr)
	p.mu.Unlock()
	return nil
}

// FailNext makes the next calls touching addr return errs, one per call.
func (p *Provider) FailNext(addr string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[addr] = append(p.failures[addr], errs...)
}

// Resource returns the live attributes of addr, or nil.
func (p *Provider) Resource(addr string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resources[addr]
}

// Addresses returns the sorted addresses of live resources.
func (p *Provider) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	addrs := make([]string, 0, len(p.resources))
	for a := range p.resources {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}

// Calls returns the "apply <addr>" and "delete <addr>" calls seen so far.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Provider) record(op, addr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op+" "+addr)
	if errs := p.failures[addr]; len(errs) > 0 {
		p.failures[addr] = errs[1:]
		return errs[0]
	}
	return nil
}

// shortID derives a stable identifier from the resource name.
func shortID(name string, n int) string {
	sum := sha1.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:n]
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// keep returns the value recorded in prior, or fallback when there is none.
func keep(prior map[string]any, key, fallback string) string {
	if v := str(prior, key); v != "" {
		return v
	}
	return fallback
}

func synthesize(typ, name, region string, out, prior map[string]any) {
	switch typ {
	case aws.TypeBucket:
		bucket := str(out, "bucket")
		if bucket == "" {
			bucket = keep(prior, "bucket", str(out, "bucketPrefix")+shortID(name, 8))
		}
		out["bucket"] = bucket
		out["arn"] = "arn:aws:s3:::" + bucket
		out["region"] = region
		out["bucketDomainName"] = bucket + ".s3.amazonaws.com"
		out["websiteEndpoint"] = bucket + "." + aws.WebsiteDomain(region)
		out["websiteDomain"] = aws.WebsiteDomain(region)

	case aws.TypeBucketFolder:
		out["objectCount"] = 0

	case aws.TypeDistribution:
		id := keep(prior, "id", "E"+strings.ToUpper(shortID(name, 13)))
		out["id"] = id
		out["arn"] = fmt.Sprintf("arn:aws:cloudfront::%s:distribution/%s", AccountID, id)
		out["domainName"] = keep(prior, "domainName", "d"+shortID(name, 13)+".cloudfront.net")
		out["hostedZoneId"] = aws.CloudFrontZoneID
		out["status"] = "Deployed"

	case aws.TypeRole:
		roleName := str(out, "name")
		out["arn"] = fmt.Sprintf("arn:aws:iam::%s:role/%s", AccountID, roleName)
		out["roleId"] = keep(prior, "roleId", "AROA"+strings.ToUpper(shortID(name, 16)))

	case aws.TypeFunction:
		fn := str(out, "functionName")
		arn := fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", region, AccountID, fn)
		out["arn"] = arn
		out["invokeArn"] = aws.InvokeARN(region, arn)
		out["version"] = "$LATEST"

	case aws.TypeLogGroup:
		out["arn"] = fmt.Sprintf("arn:aws:logs:%s:%s:log-group:%s", region, AccountID, str(out, "name"))

	case aws.TypeCertificateLookup:
		out["arn"] = fmt.Sprintf("arn:aws:acm:us-east-1:%s:certificate/%s", AccountID, shortID(str(out, "domain"), 32))

	case aws.TypeRecordSet:
		out["fqdn"] = strings.TrimSuffix(str(out, "name"), ".")

	case aws.TypeManagedRestAPI:
		id := keep(prior, "id", shortID(name, 10))
		stage := str(out, "stageName")
		out["id"] = id
		out["rootResourceId"] = keep(prior, "rootResourceId", shortID(name+"/", 10))
		out["executionArn"] = aws.ExecuteAPIARN(region, AccountID, id)
		out["deploymentId"] = shortID(name+"/deployment", 6)
		out["url"] = aws.StageURL(id, region, stage)

	case aws.TypeRestApi:
		id := keep(prior, "id", shortID(name, 10))
		out["id"] = id
		out["rootResourceId"] = keep(prior, "rootResourceId", shortID(name+"/", 10))
		out["executionArn"] = aws.ExecuteAPIARN(region, AccountID, id)

	case aws.TypeApiResource:
		out["id"] = keep(prior, "id", shortID(name, 6))

	case aws.TypeDeployment:
		out["id"] = shortID(name+str(out, "triggers"), 6)

	case aws.TypeStage:
		out["invokeUrl"] = aws.StageURL(str(out, "restApiId"), region, str(out, "stageName"))

	case aws.TypeHTTPApi:
		id := keep(prior, "id", shortID(name, 10))
		out["id"] = id
		out["apiEndpoint"] = fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com", id, region)
		out["executionArn"] = aws.ExecuteAPIARN(region, AccountID, id)

	case aws.TypeHTTPIntegration, aws.TypeHTTPRoute:
		out["id"] = keep(prior, "id", shortID(name, 7))

	case aws.TypeHTTPStage:
		out["invokeUrl"] = aws.StageURL(str(out, "apiId"), region, str(out, "name"))
	}
}
