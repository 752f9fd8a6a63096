package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/picklr-io/sitestack/internal/handler"
	"github.com/spf13/cobra"
)

var invokeEvent string

var invokeCmd = &cobra.Command{
	Use:   "invoke <handler>",
	Short: "Run a function handler locally",
	Long: `Runs one of the built-in handlers (get, post or options) against an API
Gateway proxy event (payload format 1.0 or 2.0) and prints the response. The event is read from --event,
or from stdin when --event is "-". Without an event an empty request is used.

  echo '{"httpMethod":"POST","body":"{\"bodyId\":1}"}' | sitestack invoke post --event -`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeEvent, "event", "e", "", "File holding the request event as JSON, or - for stdin")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	switch invokeEvent {
	case "":
	case "-":
		raw, err = io.ReadAll(cmd.InOrStdin())
	default:
		raw, err = os.ReadFile(invokeEvent)
	}
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}

	resp, err := invokeHandler(cmd.Context(), args[0], raw)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), resp)
}

// invokeHandler decodes event and runs the named handler on it.
func invokeHandler(ctx context.Context, name string, event []byte) (events.APIGatewayProxyResponse, error) {
	h, err := handler.Lookup(name)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	var req handler.Request
	if len(event) > 0 {
		if err := json.Unmarshal(event, &req); err != nil {
			return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to decode event: %w", err)
		}
	}
	return h.Invoke(ctx, req)
}
