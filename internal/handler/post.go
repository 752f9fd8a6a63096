package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/picklr-io/sitestack/internal/logging"
)

// Transaction is the request body accepted by Post. Values are kept as raw
// JSON so strings and numbers are echoed back exactly as sent.
type Transaction struct {
	BodyID json.RawMessage `json:"bodyId"`
	Type   json.RawMessage `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

type transactionResponse struct {
	BodyID  json.RawMessage `json:"bodyID"`
	Type    json.RawMessage `json:"type"`
	Amount  json.RawMessage `json:"amount"`
	Message string          `json:"message"`
}

// Post echoes the transaction fields of the request body.
func Post(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tx, err := decodeTransaction(req)
	if err != nil {
		return RespondError(err)
	}

	logging.Logger().InfoContext(ctx, "transaction received",
		"bodyID", string(tx.BodyID),
		"bodyType", string(tx.Type),
		"bodyAmount", string(tx.Amount),
	)

	return Respond(http.StatusOK, nil, transactionResponse{
		BodyID:  tx.BodyID,
		Type:    tx.Type,
		Amount:  tx.Amount,
		Message: greeting,
	})
}

func decodeTransaction(req events.APIGatewayProxyRequest) (*Transaction, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, &FieldError{Field: "body", Reason: "invalid base64 encoding"}
		}
		body = decoded
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &FieldError{Field: "body", Reason: "is empty"}
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, &FieldError{Field: "body", Reason: "is not a JSON object"}
	}

	fields := []struct {
		name  string
		value json.RawMessage
	}{
		{"bodyId", tx.BodyID},
		{"type", tx.Type},
		{"amount", tx.Amount},
	}
	for _, f := range fields {
		if len(f.value) == 0 || string(f.value) == "null" {
			return nil, &FieldError{Field: f.name, Reason: "is required"}
		}
	}
	return &tx, nil
}
