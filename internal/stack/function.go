package stack

import (
	"encoding/json"
	"fmt"

	"github.com/picklr-io/sitestack/internal/archive"
	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/picklr-io/sitestack/providers/aws"
)

// BasicExecutionPolicy lets a function write its logs.
const BasicExecutionPolicy = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"

// AssumeRolePolicy is the trust policy that lets the function runtime assume the role.
func AssumeRolePolicy() string {
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []any{
			map[string]any{
				"Effect":    "Allow",
				"Principal": map[string]any{"Service": []string{"lambda.amazonaws.com"}},
				"Action":    []string{"sts:AssumeRole"},
			},
		},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

func (b *builder) role() {
	p := b.project
	b.add(aws.TypeRole, roleName, map[string]any{
		"name":             p.Role.Name,
		"assumeRolePolicy": AssumeRolePolicy(),
	})
	if p.Role.AttachesBasicExecution() {
		b.add(aws.TypePolicyAttachment, roleName, map[string]any{
			"role":      ir.Ref(aws.TypeRole, roleName, "name"),
			"policyArn": BasicExecutionPolicy,
		})
	}
}

func (b *builder) function(fn *config.Function) error {
	p := b.project

	pkg, err := archive.Build(p.Resolve(fn.Source), p.Resolve(fn.Archive))
	if err != nil {
		return fmt.Errorf("function %s: %w", fn.Name, err)
	}

	env := make(map[string]any, len(fn.Environment))
	for k, v := range fn.Environment {
		env[k] = v
	}

	var deps []string
	if p.Role.AttachesBasicExecution() {
		deps = append(deps, ir.Address(aws.TypePolicyAttachment, roleName))
	}

	if fn.LogRetentionDays > 0 {
		logs := b.add(aws.TypeLogGroup, fn.Name, map[string]any{
			"name":            "/aws/lambda/" + fn.Name,
			"retentionInDays": fn.LogRetentionDays,
		})
		deps = append(deps, logs.Address())
	}

	b.add(aws.TypeFunction, fn.Name, map[string]any{
		"functionName": fn.Name,
		"runtime":      fn.Runtime,
		"handler":      fn.Handler,
		"role":         ir.Ref(aws.TypeRole, roleName, "arn"),
		"archive":      pkg.Path,
		"codeSha256":   pkg.SHA256,
		"environment":  env,
	}, deps...)
	return nil
}

func functionRef(fn *config.Function, attr string) string {
	return ir.Ref(aws.TypeFunction, fn.Name, attr)
}

// permission lets API Gateway invoke fn from any stage and method of the API
// whose execution ARN is sourceARN.
func (b *builder) permission(fn *config.Function, executionARN string) {
	b.add(aws.TypePermission, fn.Name, map[string]any{
		"functionName": functionRef(fn, "functionName"),
		"statementId":  "AllowAPIGatewayInvoke",
		"action":       "lambda:InvokeFunction",
		"principal":    "apigateway.amazonaws.com",
		"sourceArn":    executionARN + "/*/*",
	})
}
