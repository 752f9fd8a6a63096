package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, resp events.APIGatewayProxyResponse) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	return body
}

func TestGet_IgnoresInput(t *testing.T) {
	reqs := []events.APIGatewayProxyRequest{
		{},
		{QueryStringParameters: map[string]string{"bodyId": "A1"}},
		{Body: "not json", HTTPMethod: "POST"},
	}
	for _, req := range reqs {
		resp, err := Get(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.JSONEq(t, `{"message":"Hello from Lambdaland"}`, resp.Body)
		assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	}
}

func TestPost(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "string fields",
			body: `{"bodyId":"A1","type":"credit","amount":"100"}`,
			want: `{"bodyID":"A1","type":"credit","amount":"100","message":"Hello from Lambdaland"}`,
		},
		{
			name: "numeric fields echoed verbatim",
			body: `{"bodyId":5,"type":"TransactionType","amount":600}`,
			want: `{"bodyID":5,"type":"TransactionType","amount":600,"message":"Hello from Lambdaland"}`,
		},
		{
			name: "extra fields ignored",
			body: `{"bodyId":"A1","type":"debit","amount":"1","note":"x"}`,
			want: `{"bodyID":"A1","type":"debit","amount":"1","message":"Hello from Lambdaland"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Post(context.Background(), events.APIGatewayProxyRequest{Body: tt.body})
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
			assert.JSONEq(t, tt.want, resp.Body)
		})
	}
}

func TestPost_Base64Body(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte(`{"bodyId":"A1","type":"credit","amount":"100"}`))
	resp, err := Post(context.Background(), events.APIGatewayProxyRequest{Body: body, IsBase64Encoded: true})
	require.NoError(t, err)
	assert.Equal(t, "A1", decodeBody(t, resp)["bodyID"])
}

func TestPost_InvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing bodyId", `{"type":"credit","amount":"100"}`, "bodyId"},
		{"null amount", `{"bodyId":"A1","type":"credit","amount":null}`, "amount"},
		{"missing type", `{"bodyId":"A1","amount":"100"}`, "type"},
		{"empty body", ``, "body"},
		{"malformed body", `{"bodyId":`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Post(context.Background(), events.APIGatewayProxyRequest{Body: tt.body})
			require.NoError(t, err)
			assert.Equal(t, 400, resp.StatusCode)
			assert.Equal(t, tt.field, decodeBody(t, resp)["field"])
		})
	}
}

func TestDecodeTransaction_FieldError(t *testing.T) {
	_, err := decodeTransaction(events.APIGatewayProxyRequest{Body: `{"type":"credit","amount":"100"}`})
	var ferr *FieldError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "bodyId", ferr.Field)
}

func TestOptions(t *testing.T) {
	req := events.APIGatewayProxyRequest{
		HTTPMethod: "OPTIONS",
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestTimeEpoch: 1700000000000,
			Identity:         events.APIGatewayRequestIdentity{UserAgent: "curl/8.4.0"},
		},
	}
	resp, err := Options(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "OPTIONS,POST,GET",
	}, resp.Headers)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(1700000000000), body["requestTime"])
	assert.Equal(t, "curl/8.4.0", body["agent"])
	assert.Equal(t, "All good on the backend", body["message"])
}

func TestRespondError_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := RespondError(boom)
	assert.ErrorIs(t, err, boom)
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"get", "POST", "options_function.options", "bootstrap.get"} {
		h, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, h)
	}

	_, err := Lookup("delete")
	assert.ErrorContains(t, err, "get, options, post")
}
