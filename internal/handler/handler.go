// Package handler implements the API function handlers.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// EnvHandler names the environment variable Lambda sets to the configured
// entry point of the function.
const EnvHandler = "_HANDLER"

const greeting = "Hello from Lambdaland"

// Func is a request to response transform run by the Lambda runtime.
type Func func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

var handlers = map[string]Func{
	"get":     Get,
	"post":    Post,
	"options": Options,
}

// Names returns the registered handler names in sorted order.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the handler registered under name. Entry points of the form
// "file.name" resolve by their last segment.
func Lookup(name string) (Func, error) {
	key := strings.ToLower(name)
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	h, ok := handlers[key]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return h, nil
}

// FieldError reports a missing or malformed request field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// Respond encodes body as the JSON payload of a response with status.
func Respond(status int, headers map[string]string, body any) (events.APIGatewayProxyResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to encode response: %w", err)
	}
	h := jsonHeaders()
	for k, v := range headers {
		h[k] = v
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    h,
		Body:       string(payload),
	}, nil
}

// RespondError turns a FieldError into a 400 response. Any other error is
// returned unchanged so the invocation fails.
func RespondError(err error) (events.APIGatewayProxyResponse, error) {
	var ferr *FieldError
	if errors.As(err, &ferr) {
		return Respond(http.StatusBadRequest, nil, map[string]string{
			"message": ferr.Error(),
			"field":   ferr.Field,
		})
	}
	return events.APIGatewayProxyResponse{}, err
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}
