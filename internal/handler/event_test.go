package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const httpAPIOptionsEvent = `{
  "version": "2.0",
  "routeKey": "OPTIONS /items",
  "rawPath": "/prod/items",
  "headers": {"user-agent": "curl/8.4.0"},
  "requestContext": {
    "apiId": "a1b2c3",
    "stage": "prod",
    "routeKey": "OPTIONS /items",
    "time": "14/Nov/2023:22:13:20 +0000",
    "timeEpoch": 1700000000000,
    "http": {"method": "OPTIONS", "path": "/prod/items", "protocol": "HTTP/1.1", "sourceIp": "203.0.113.7", "userAgent": "curl/8.4.0"}
  },
  "isBase64Encoded": false
}`

const restAPIOptionsEvent = `{
  "resource": "/items",
  "path": "/items",
  "httpMethod": "OPTIONS",
  "requestContext": {
    "requestTimeEpoch": 1700000000000,
    "identity": {"userAgent": "curl/8.4.0"}
  }
}`

func TestRequest_UnmarshalPayloadFormats(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{"payload 1.0", restAPIOptionsEvent},
		{"payload 2.0", httpAPIOptionsEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(tt.event), &req))
			assert.Equal(t, "OPTIONS", req.HTTPMethod)
			assert.Equal(t, int64(1700000000000), req.RequestContext.RequestTimeEpoch)
			assert.Equal(t, "curl/8.4.0", req.RequestContext.Identity.UserAgent)

			resp, err := Func(Options).Invoke(context.Background(), req)
			require.NoError(t, err)
			body := decodeBody(t, resp)
			assert.Equal(t, float64(1700000000000), body["requestTime"])
			assert.Equal(t, "curl/8.4.0", body["agent"])
		})
	}
}

func TestRequest_HTTPAPIPost(t *testing.T) {
	event := `{
	  "version": "2.0",
	  "routeKey": "POST /items",
	  "rawPath": "/items",
	  "body": "{\"bodyId\":\"A1\",\"type\":\"debit\",\"amount\":12}",
	  "requestContext": {"http": {"method": "POST", "path": "/items"}}
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(event), &req))
	assert.Equal(t, "POST /items", req.Resource)
	assert.Equal(t, "/items", req.Path)

	resp, err := Func(Post).Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"bodyID":"A1","type":"debit","amount":12,"message":"Hello from Lambdaland"}`, resp.Body)
}

func TestRequest_Malformed(t *testing.T) {
	var req Request
	assert.Error(t, json.Unmarshal([]byte(`{"version":`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"version":"2.0","requestContext":"oops"}`), &req))
}
