package handler

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
)

// Request is an API Gateway proxy event in either payload format. A 2.0
// event (HTTP APIs) is folded into the 1.0 shape the handlers read.
type Request struct {
	events.APIGatewayProxyRequest
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var head struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.Version != "2.0" {
		return json.Unmarshal(data, &r.APIGatewayProxyRequest)
	}

	var v2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(data, &v2); err != nil {
		return err
	}
	r.APIGatewayProxyRequest = fromHTTPRequest(v2)
	return nil
}

func fromHTTPRequest(v2 events.APIGatewayV2HTTPRequest) events.APIGatewayProxyRequest {
	rc := v2.RequestContext
	return events.APIGatewayProxyRequest{
		Resource:              v2.RouteKey,
		Path:                  v2.RawPath,
		HTTPMethod:            rc.HTTP.Method,
		Headers:               v2.Headers,
		QueryStringParameters: v2.QueryStringParameters,
		PathParameters:        v2.PathParameters,
		StageVariables:        v2.StageVariables,
		Body:                  v2.Body,
		IsBase64Encoded:       v2.IsBase64Encoded,
		RequestContext: events.APIGatewayProxyRequestContext{
			AccountID:        rc.AccountID,
			Stage:            rc.Stage,
			DomainName:       rc.DomainName,
			DomainPrefix:     rc.DomainPrefix,
			RequestID:        rc.RequestID,
			Protocol:         rc.HTTP.Protocol,
			ResourcePath:     rc.RouteKey,
			Path:             rc.HTTP.Path,
			HTTPMethod:       rc.HTTP.Method,
			RequestTime:      rc.Time,
			RequestTimeEpoch: rc.TimeEpoch,
			APIID:            rc.APIID,
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  rc.HTTP.SourceIP,
				UserAgent: rc.HTTP.UserAgent,
			},
		},
	}
}

// Invoke runs f on an event of either payload format.
func (f Func) Invoke(ctx context.Context, req Request) (events.APIGatewayProxyResponse, error) {
	return f(ctx, req.APIGatewayProxyRequest)
}
