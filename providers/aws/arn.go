package aws

import "fmt"

// InvokeARN returns the API Gateway integration URI for a function ARN.
func InvokeARN(region, functionARN string) string {
	return fmt.Sprintf("arn:aws:apigateway:%s:lambda:path/2015-03-31/functions/%s/invocations", region, functionARN)
}

// ExecuteAPIARN returns the execution ARN used to scope invoke permissions.
func ExecuteAPIARN(region, account, apiID string) string {
	return fmt.Sprintf("arn:aws:execute-api:%s:%s:%s", region, account, apiID)
}

// StageURL returns the invoke URL of a REST or HTTP API stage.
func StageURL(apiID, region, stage string) string {
	base := fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com", apiID, region)
	if stage == "" || stage == "$default" {
		return base + "/"
	}
	return base + "/" + stage
}
