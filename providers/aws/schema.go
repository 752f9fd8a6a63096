package aws

// Resource types handled by this provider.
const (
	TypeBucket                  = "aws:S3.Bucket"
	TypeBucketOwnershipControls = "aws:S3.BucketOwnershipControls"
	TypeBucketPublicAccessBlock = "aws:S3.BucketPublicAccessBlock"
	TypeBucketFolder            = "aws:S3.BucketFolder"
	TypeDistribution            = "aws:CloudFront.Distribution"
	TypeRole                    = "aws:IAM.Role"
	TypePolicyAttachment        = "aws:IAM.PolicyAttachment"
	TypeFunction                = "aws:Lambda.Function"
	TypePermission              = "aws:Lambda.Permission"
	TypeLogGroup                = "aws:CloudWatch.LogGroup"
	TypeCertificateLookup       = "aws:ACM.CertificateLookup"
	TypeRecordSet               = "aws:Route53.RecordSet"
	TypeManagedRestAPI          = "aws:APIGateway.RestAPI"
	TypeRestApi                 = "aws:APIGateway.RestApi"
	TypeApiResource             = "aws:APIGateway.ApiResource"
	TypeMethod                  = "aws:APIGateway.Method"
	TypeIntegration             = "aws:APIGateway.Integration"
	TypeMethodResponse          = "aws:APIGateway.MethodResponse"
	TypeIntegrationResponse     = "aws:APIGateway.IntegrationResponse"
	TypeDeployment              = "aws:APIGateway.Deployment"
	TypeStage                   = "aws:APIGateway.Stage"
	TypeHTTPApi                 = "aws:APIGatewayV2.Api"
	TypeHTTPIntegration         = "aws:APIGatewayV2.Integration"
	TypeHTTPRoute               = "aws:APIGatewayV2.Route"
	TypeHTTPStage               = "aws:APIGatewayV2.Stage"
)

// CloudFrontZoneID is the hosted zone of every CloudFront distribution, used
// as the target zone of Route 53 alias records.
const CloudFrontZoneID = "Z2FDTNDATAQYW2"

// forceNew lists, per type, the attributes that cannot be changed in place.
var forceNew = map[string][]string{
	TypeBucket:                  {"bucket", "bucketPrefix"},
	TypeBucketOwnershipControls: {"bucket"},
	TypeBucketPublicAccessBlock: {"bucket"},
	TypeBucketFolder:            {"bucket", "prefix"},
	TypeDistribution:            {"callerReference"},
	TypeRole:                    {"name", "path"},
	TypePolicyAttachment:        {"role", "policyArn"},
	TypeFunction:                {"functionName"},
	TypePermission:              {"functionName", "statementId", "action", "principal", "sourceArn"},
	TypeLogGroup:                {"name"},
	TypeCertificateLookup:       {"domain"},
	TypeRecordSet:               {"hostedZoneId", "name", "type"},
	TypeManagedRestAPI:          {},
	TypeRestApi:                 {},
	TypeApiResource:             {"restApiId", "parentId", "pathPart"},
	TypeMethod:                  {"restApiId", "resourceId", "httpMethod"},
	TypeIntegration:             {"restApiId", "resourceId", "httpMethod"},
	TypeMethodResponse:          {"restApiId", "resourceId", "httpMethod", "statusCode"},
	TypeIntegrationResponse:     {"restApiId", "resourceId", "httpMethod", "statusCode"},
	TypeDeployment:              {"restApiId", "triggers", "description"},
	TypeStage:                   {"restApiId", "stageName"},
	TypeHTTPApi:                 {"protocolType"},
	TypeHTTPIntegration:         {"apiId"},
	TypeHTTPRoute:               {"apiId"},
	TypeHTTPStage:               {"apiId", "name"},
}

// ForceNew returns the attributes of typ that force a replacement.
func ForceNew(typ string) []string {
	return forceNew[typ]
}

// Supports reports whether typ is a resource type of this provider.
func Supports(typ string) bool {
	_, ok := forceNew[typ]
	return ok
}
