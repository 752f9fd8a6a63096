package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

var corsHeaders = map[string]string{
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "OPTIONS,POST,GET",
}

type preflightResponse struct {
	RequestTime int64  `json:"requestTime"`
	Agent       string `json:"agent"`
	Message     string `json:"message"`
}

// Options answers CORS preflight requests.
func Options(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return Respond(http.StatusNoContent, corsHeaders, preflightResponse{
		RequestTime: req.RequestContext.RequestTimeEpoch,
		Agent:       req.RequestContext.Identity.UserAgent,
		Message:     "All good on the backend",
	})
}
