package stack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/engine"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/internal/provider"
	"github.com/picklr-io/sitestack/providers/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testProject returns a project rooted in a temp dir with a site folder and
// three function sources.
func testProject(t *testing.T, style string) *config.Project {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "www", "index.html"), "<h1>hello</h1>")
	writeFile(t, filepath.Join(dir, "www", "error.html"), "<h1>oops</h1>")
	writeFile(t, filepath.Join(dir, "www", "js", "script.js"), "console.log(1)")
	for _, name := range []string{"get", "post", "options"} {
		writeFile(t, filepath.Join(dir, "bin", name), "#!/bin/sh\n")
	}

	p := &config.Project{
		Name: "Demo Site",
		Dir:  dir,
		API:  config.API{Style: style},
		Functions: []config.Function{
			{Name: "get-func", Handler: "get", Source: "bin/get", Route: &config.Route{Path: "/", Method: "get"}},
			{Name: "post-func", Handler: "post", Source: "bin/post", Route: &config.Route{Path: "/items", Method: "post"}},
			{Name: "options-func", Handler: "options", Source: "bin/options", Route: &config.Route{Path: "/items", Method: "options"}},
		},
	}
	p.ApplyDefaults()
	return p
}

func find(t *testing.T, cfg *ir.Config, typ, name string) *ir.Resource {
	t.Helper()
	for _, r := range cfg.Resources {
		if r.Type == typ && r.Name == name {
			return r
		}
	}
	t.Fatalf("resource %s not declared", ir.Address(typ, name))
	return nil
}

func countType(cfg *ir.Config, typ string) int {
	n := 0
	for _, r := range cfg.Resources {
		if r.Type == typ {
			n++
		}
	}
	return n
}

func TestBuild_Site(t *testing.T) {
	cfg, err := Build(testProject(t, config.StyleManaged))
	require.NoError(t, err)

	bucket := find(t, cfg, aws.TypeBucket, "site")
	assert.Equal(t, "demo-site-", bucket.Properties["bucketPrefix"])
	assert.Equal(t, map[string]any{"indexDocument": "index.html", "errorDocument": "error.html"}, bucket.Properties["website"])

	ownership := find(t, cfg, aws.TypeBucketOwnershipControls, "site")
	assert.Equal(t, "ObjectWriter", ownership.Properties["objectOwnership"])
	assert.Equal(t, "ptr://aws:S3.Bucket/site/bucket", ownership.Properties["bucket"])

	access := find(t, cfg, aws.TypeBucketPublicAccessBlock, "site")
	assert.Equal(t, false, access.Properties["blockPublicAcls"])

	folder := find(t, cfg, aws.TypeBucketFolder, "site")
	assert.Equal(t, "public-read", folder.Properties["acl"])
	assert.ElementsMatch(t, []string{ownership.Address(), access.Address()}, folder.DependsOn)
	assert.NotEmpty(t, folder.Properties["contentHash"])

	assert.Equal(t, "http://${ptr://aws:S3.Bucket/site/websiteEndpoint}", cfg.Outputs[OutputOriginURL])
}

func TestBuild_Distribution(t *testing.T) {
	cfg, err := Build(testProject(t, config.StyleManaged))
	require.NoError(t, err)

	cdn := find(t, cfg, aws.TypeDistribution, "cdn")
	origins := cdn.Properties["origins"].([]any)
	require.Len(t, origins, 1)
	origin := origins[0].(map[string]any)
	assert.Equal(t, "ptr://aws:S3.Bucket/site/websiteEndpoint", origin["domainName"])
	assert.Equal(t, "ptr://aws:S3.Bucket/site/arn", origin["originId"])

	behavior := cdn.Properties["defaultCacheBehavior"].(map[string]any)
	assert.Equal(t, "redirect-to-https", behavior["viewerProtocolPolicy"])
	for _, k := range []string{"minTtl", "defaultTtl", "maxTtl"} {
		assert.Equal(t, 600, behavior[k], k)
	}

	errorResponses := cdn.Properties["customErrorResponses"].([]any)
	require.Len(t, errorResponses, 1)
	assert.Equal(t, map[string]any{"errorCode": 404, "responseCode": 404, "responsePagePath": "/error.html"}, errorResponses[0])
	assert.Equal(t, map[string]any{"cloudfrontDefaultCertificate": true}, cdn.Properties["viewerCertificate"])
	assert.Equal(t, "PriceClass_100", cdn.Properties["priceClass"])

	assert.Zero(t, countType(cfg, aws.TypeCertificateLookup))
	assert.Zero(t, countType(cfg, aws.TypeRecordSet))
}

func TestBuild_CustomErrorDocument(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	p.Site.ErrorDocument = "404.html"

	cfg, err := Build(p)
	require.NoError(t, err)

	cdn := find(t, cfg, aws.TypeDistribution, "cdn")
	resp := cdn.Properties["customErrorResponses"].([]any)[0].(map[string]any)
	assert.Equal(t, "/404.html", resp["responsePagePath"])
}

func TestBuild_CustomDomain(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	p.CDN.CertificateDomain = "example.com"
	p.CDN.Aliases = []string{"www.example.com", "example.com"}
	p.CDN.HostedZoneID = "Z123"

	cfg, err := Build(p)
	require.NoError(t, err)

	find(t, cfg, aws.TypeCertificateLookup, "cdn")
	cdn := find(t, cfg, aws.TypeDistribution, "cdn")
	cert := cdn.Properties["viewerCertificate"].(map[string]any)
	assert.Equal(t, "ptr://aws:ACM.CertificateLookup/cdn/arn", cert["acmCertificateArn"])
	assert.Equal(t, "sni-only", cert["sslSupportMethod"])
	assert.Equal(t, []any{"www.example.com", "example.com"}, cdn.Properties["aliases"])

	record := find(t, cfg, aws.TypeRecordSet, "www-example-com")
	assert.Equal(t, "Z123", record.Properties["hostedZoneId"])
	target := record.Properties["aliasTarget"].(map[string]any)
	assert.Equal(t, "ptr://aws:CloudFront.Distribution/cdn/domainName", target["dnsName"])
	assert.Equal(t, 2, countType(cfg, aws.TypeRecordSet))
}

func TestBuild_CDNDisabled(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	disabled := false
	p.CDN.Enabled = &disabled

	cfg, err := Build(p)
	require.NoError(t, err)
	assert.Zero(t, countType(cfg, aws.TypeDistribution))
	assert.NotContains(t, cfg.Outputs, OutputCDNURL)
}

func TestBuild_RoleAndFunctions(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	p.Functions[0].LogRetentionDays = 14
	p.Functions[0].Environment = map[string]string{"STAGE": "prod"}

	cfg, err := Build(p)
	require.NoError(t, err)

	role := find(t, cfg, aws.TypeRole, "lambda")
	assert.Equal(t, "iamForLambda", role.Properties["name"])
	assert.Contains(t, role.Properties["assumeRolePolicy"], "lambda.amazonaws.com")
	assert.Contains(t, role.Properties["assumeRolePolicy"], "sts:AssumeRole")

	attachment := find(t, cfg, aws.TypePolicyAttachment, "lambda")
	assert.Equal(t, BasicExecutionPolicy, attachment.Properties["policyArn"])

	fn := find(t, cfg, aws.TypeFunction, "get-func")
	assert.Equal(t, "ptr://aws:IAM.Role/lambda/arn", fn.Properties["role"])
	assert.Equal(t, "get", fn.Properties["handler"])
	assert.Equal(t, "provided.al2023", fn.Properties["runtime"])
	assert.Equal(t, map[string]any{"STAGE": "prod"}, fn.Properties["environment"])
	assert.NotEmpty(t, fn.Properties["codeSha256"])
	assert.FileExists(t, fn.Properties["archive"].(string))
	assert.Contains(t, fn.DependsOn, "aws:CloudWatch.LogGroup.get-func")

	logs := find(t, cfg, aws.TypeLogGroup, "get-func")
	assert.Equal(t, "/aws/lambda/get-func", logs.Properties["name"])
	assert.Equal(t, 14, logs.Properties["retentionInDays"])

	perm := find(t, cfg, aws.TypePermission, "post-func")
	assert.Equal(t, "apigateway.amazonaws.com", perm.Properties["principal"])
	assert.Equal(t, "${ptr://aws:APIGateway.RestAPI/api/executionArn}/*/*", perm.Properties["sourceArn"])
}

func TestBuild_NoBasicExecution(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	off := false
	p.Role.AttachBasicExecution = &off

	cfg, err := Build(p)
	require.NoError(t, err)
	assert.Zero(t, countType(cfg, aws.TypePolicyAttachment))
	assert.Empty(t, find(t, cfg, aws.TypeFunction, "get-func").DependsOn)
}

func TestBuild_MissingSource(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	p.Functions[1].Source = "bin/missing"

	_, err := Build(p)
	assert.ErrorContains(t, err, "function post-func")
}

func TestBuild_ManagedAPI(t *testing.T) {
	cfg, err := Build(testProject(t, config.StyleManaged))
	require.NoError(t, err)

	api := find(t, cfg, aws.TypeManagedRestAPI, "api")
	assert.Equal(t, "prod", api.Properties["stageName"])
	routes := api.Properties["routes"].([]any)
	require.Len(t, routes, 3)
	assert.Equal(t, map[string]any{
		"path":      "/",
		"method":    "GET",
		"invokeArn": "ptr://aws:Lambda.Function/get-func/invokeArn",
	}, routes[0])

	assert.Equal(t, "ptr://aws:APIGateway.RestAPI/api/url", cfg.Outputs[OutputAPIURL])
	assert.Zero(t, countType(cfg, aws.TypeRestApi))
	assert.Zero(t, countType(cfg, aws.TypeHTTPApi))
}

func TestBuild_RestAPI(t *testing.T) {
	p := testProject(t, config.StyleRest)
	p.API.CORS = true
	p.Functions = append(p.Functions, config.Function{
		Name: "nested", Handler: "get", Source: "bin/get", Archive: "build/nested.zip",
		Route: &config.Route{Path: "/v1/items/", Method: "GET"},
	})

	cfg, err := Build(p)
	require.NoError(t, err)

	find(t, cfg, aws.TypeRestApi, "api")
	items := find(t, cfg, aws.TypeApiResource, "items")
	assert.Equal(t, "items", items.Properties["pathPart"])
	assert.Equal(t, "ptr://aws:APIGateway.RestApi/api/rootResourceId", items.Properties["parentId"])

	nested := find(t, cfg, aws.TypeApiResource, "v1-items")
	assert.Equal(t, "ptr://aws:APIGateway.ApiResource/v1/id", nested.Properties["parentId"])
	assert.Equal(t, 3, countType(cfg, aws.TypeApiResource))

	root := find(t, cfg, aws.TypeMethod, "get-func")
	assert.Equal(t, "ptr://aws:APIGateway.RestApi/api/rootResourceId", root.Properties["resourceId"])

	integration := find(t, cfg, aws.TypeIntegration, "post-func")
	assert.Equal(t, "AWS_PROXY", integration.Properties["type"])
	assert.Equal(t, "POST", integration.Properties["integrationHttpMethod"])
	assert.Equal(t, "ptr://aws:Lambda.Function/post-func/invokeArn", integration.Properties["uri"])
	assert.Equal(t, []string{"aws:APIGateway.Method.post-func"}, integration.DependsOn)

	mock := find(t, cfg, aws.TypeIntegration, "options-v1-items")
	assert.Equal(t, "MOCK", mock.Properties["type"])
	assert.Equal(t, map[string]any{"application/json": `{"statusCode": 200}`}, mock.Properties["requestTemplates"])

	response := find(t, cfg, aws.TypeIntegrationResponse, "options-v1-items")
	assert.Contains(t, response.Properties["responseTemplates"], "application/xml")
	params := response.Properties["responseParameters"].(map[string]any)
	assert.Equal(t, "'*'", params["method.response.header.Access-Control-Allow-Origin"])
	find(t, cfg, aws.TypeMethodResponse, "options-v1-items")
	find(t, cfg, aws.TypeMethod, "options-root")
	// /items routes OPTIONS to a function, so it gets no mock.
	assert.Equal(t, 2, countType(cfg, aws.TypeMethodResponse))

	deployment := find(t, cfg, aws.TypeDeployment, "api")
	assert.Contains(t, deployment.DependsOn, "aws:APIGateway.Integration.post-func")
	assert.Contains(t, deployment.DependsOn, "aws:APIGateway.IntegrationResponse.options-root")
	assert.NotEmpty(t, deployment.Properties["triggers"])

	stage := find(t, cfg, aws.TypeStage, "api")
	assert.Equal(t, "ptr://aws:APIGateway.Deployment/api/id", stage.Properties["deploymentId"])
	assert.Equal(t, "ptr://aws:APIGateway.Stage/api/invokeUrl", cfg.Outputs[OutputAPIURL])
}

func TestBuild_RestDeploymentTriggers(t *testing.T) {
	triggers := func(t *testing.T, p *config.Project) any {
		t.Helper()
		cfg, err := Build(p)
		require.NoError(t, err)
		return find(t, cfg, aws.TypeDeployment, "api").Properties["triggers"]
	}

	tests := []struct {
		name    string
		mutate  func(p *config.Project)
		changed bool
	}{
		{name: "rebuild", mutate: func(p *config.Project) {}},
		{name: "site change", mutate: func(p *config.Project) { p.CDN.TTL = 60 }},
		{name: "route path", mutate: func(p *config.Project) { p.Functions[1].Route.Path = "/orders" }, changed: true},
		{name: "integration timeout", mutate: func(p *config.Project) { p.API.TimeoutMillis = 5000 }, changed: true},
		{name: "cors preflight removed", mutate: func(p *config.Project) { p.API.CORS = false }, changed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProject(t, config.StyleRest)
			p.API.CORS = true
			before := triggers(t, p)

			tt.mutate(p)
			after := triggers(t, p)
			if tt.changed {
				assert.NotEqual(t, before, after)
			} else {
				assert.Equal(t, before, after)
			}
		})
	}
}

func TestBuild_HTTPAPI(t *testing.T) {
	p := testProject(t, config.StyleHTTP)
	cfg, err := Build(p)
	require.NoError(t, err)

	api := find(t, cfg, aws.TypeHTTPApi, "api")
	assert.Equal(t, "HTTP", api.Properties["protocolType"])
	assert.NotContains(t, api.Properties, "corsConfiguration")

	integration := find(t, cfg, aws.TypeHTTPIntegration, "post-func")
	assert.Equal(t, "AWS_PROXY", integration.Properties["integrationType"])
	assert.Equal(t, "1.0", integration.Properties["payloadFormatVersion"])
	assert.Equal(t, 30000, integration.Properties["timeoutInMillis"])
	assert.Equal(t, "ptr://aws:Lambda.Function/post-func/arn", integration.Properties["integrationUri"])

	route := find(t, cfg, aws.TypeHTTPRoute, "post-func")
	assert.Equal(t, "POST /items", route.Properties["routeKey"])
	assert.Equal(t, "integrations/${ptr://aws:APIGatewayV2.Integration/post-func/id}", route.Properties["target"])

	stage := find(t, cfg, aws.TypeHTTPStage, "api")
	assert.Equal(t, true, stage.Properties["autoDeploy"])
	assert.Len(t, stage.DependsOn, 3)
	assert.Equal(t, "ptr://aws:APIGatewayV2.Stage/api/invokeUrl", cfg.Outputs[OutputAPIURL])
}

func TestBuild_UnknownStyle(t *testing.T) {
	_, err := Build(testProject(t, "graphql"))
	assert.ErrorContains(t, err, "unknown api style")
}

func TestBuild_NoRoutes(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	for i := range p.Functions {
		p.Functions[i].Route = nil
	}
	cfg, err := Build(p)
	require.NoError(t, err)
	assert.Zero(t, countType(cfg, aws.TypeManagedRestAPI))
	assert.Zero(t, countType(cfg, aws.TypePermission))
	assert.NotContains(t, cfg.Outputs, OutputAPIURL)
}

func TestBuild_Readme(t *testing.T) {
	p := testProject(t, config.StyleManaged)
	writeFile(t, filepath.Join(p.Dir, "README.md"), "# Demo\n")
	p.Readme = "README.md"

	cfg, err := Build(p)
	require.NoError(t, err)
	assert.Equal(t, "# Demo\n", cfg.Outputs[OutputReadme])
}

func TestHashDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), "a")

	first, err := HashDir(dir)
	require.NoError(t, err)
	again, err := HashDir(dir)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	writeFile(t, filepath.Join(dir, "index.html"), "b")
	changed, err := HashDir(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	_, err = HashDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBucketPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"demo", "demo-"},
		{"My_Site!", "my-site-"},
		{"---", "site-"},
		{strings.Repeat("a", 40), strings.Repeat("a", 30) + "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bucketPrefix(tt.in), tt.in)
	}
}

// Every style must plan and apply cleanly against the offline provider and
// resolve all declared outputs.
func TestBuild_ApplyOffline(t *testing.T) {
	for _, style := range []string{config.StyleManaged, config.StyleRest, config.StyleHTTP} {
		t.Run(style, func(t *testing.T) {
			p := testProject(t, style)
			p.API.CORS = true
			cfg, err := Build(p)
			require.NoError(t, err)

			eng := engine.NewEngine(provider.NewOfflineRegistry("us-west-2"))
			ctx := context.Background()
			st := &ir.State{Version: 1}

			plan, err := eng.CreatePlan(ctx, cfg, st)
			require.NoError(t, err)
			assert.Equal(t, len(cfg.Resources), plan.Summary.Create)

			st, err = eng.ApplyPlan(ctx, plan, st)
			require.NoError(t, err)
			assert.Len(t, st.Resources, len(cfg.Resources))

			origin := st.Outputs[OutputOriginURL].(string)
			assert.True(t, strings.HasPrefix(origin, "http://demo-site-"), origin)
			assert.True(t, strings.HasSuffix(origin, ".s3-website-us-west-2.amazonaws.com"), origin)
			assert.Regexp(t, `^https://d[0-9a-f]+\.cloudfront\.net$`, st.Outputs[OutputCDNURL])
			assert.Regexp(t, `^https://[0-9a-f]+\.execute-api\.us-west-2\.amazonaws\.com/prod$`, st.Outputs[OutputAPIURL])

			// A second plan against the recorded state changes nothing.
			again, err := eng.CreatePlan(ctx, cfg, st)
			require.NoError(t, err)
			assert.Empty(t, again.Changes)
		})
	}
}
