package engine

import (
	"testing"

	"github.com/picklr-io/sitestack/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePtrRef(t *testing.T) {
	addr, attr, ok := parsePtrRef("ptr://aws:S3.Bucket/site/websiteEndpoint")
	require.True(t, ok)
	assert.Equal(t, "aws:S3.Bucket.site", addr)
	assert.Equal(t, "websiteEndpoint", attr)

	for _, bad := range []string{"ptr://aws:S3.Bucket/site", "http://x/y/z", "ptr:///site/arn"} {
		_, _, ok := parsePtrRef(bad)
		assert.False(t, ok, bad)
	}
}

func TestResolveReferences(t *testing.T) {
	values := map[string]map[string]any{
		"aws:S3.Bucket.site":  {"websiteEndpoint": "b.s3-website-us-east-1.amazonaws.com", "port": float64(80)},
		"aws:IAM.Role.lambda": {"arn": "arn:aws:iam::123456789012:role/iamForLambda"},
	}
	lookup := func(addr, attr string) (any, bool) {
		v, ok := values[addr][attr]
		return v, ok
	}

	in := map[string]any{
		"role":    "ptr://aws:IAM.Role/lambda/arn",
		"url":     "http://${ptr://aws:S3.Bucket/site/websiteEndpoint}:${ptr://aws:S3.Bucket/site/port}/",
		"port":    "ptr://aws:S3.Bucket/site/port",
		"list":    []any{"ptr://aws:IAM.Role/lambda/arn", "plain"},
		"literal": 3,
	}
	out, err := resolveReferences(in, lookup)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "arn:aws:iam::123456789012:role/iamForLambda", m["role"])
	assert.Equal(t, "http://b.s3-website-us-east-1.amazonaws.com:80/", m["url"])
	assert.Equal(t, float64(80), m["port"])
	assert.Equal(t, []any{"arn:aws:iam::123456789012:role/iamForLambda", "plain"}, m["list"])
	assert.Equal(t, 3, m["literal"])

	_, err = resolveReferences(map[string]any{"x": "ptr://aws:S3.Bucket/other/arn"}, lookup)
	assert.ErrorContains(t, err, "unresolved reference ptr://aws:S3.Bucket/other/arn")

	_, err = resolveReferences("id-${ptr://aws:S3.Bucket/site/missing}", lookup)
	assert.Error(t, err)
}

func TestMarkUnknown(t *testing.T) {
	in := map[string]any{
		"restApiId": "ptr://aws:APIGateway.RestApi/api/id",
		"target":    "integrations/${ptr://aws:APIGatewayV2.Integration/get/id}",
		"other":     "ptr://aws:IAM.Role/lambda/arn",
	}
	out := markUnknown(in, map[string]bool{
		"aws:APIGateway.RestApi.api":       true,
		"aws:APIGatewayV2.Integration.get": true,
	}).(map[string]any)

	assert.Equal(t, provider.Unknown, out["restApiId"])
	assert.Equal(t, "integrations/"+provider.Unknown, out["target"])
	assert.Equal(t, "ptr://aws:IAM.Role/lambda/arn", out["other"])
}

func TestInputsHash_Stable(t *testing.T) {
	a := map[string]any{"x": 1, "y": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"y": map[string]any{"a": 1, "b": 2}, "x": 1}
	assert.Equal(t, InputsHash(a), InputsHash(b))
	assert.NotEqual(t, InputsHash(a), InputsHash(map[string]any{"x": 2}))
}
