package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// Get ignores its input and returns a fixed greeting.
func Get(_ context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return Respond(http.StatusOK, nil, map[string]string{"message": greeting})
}
