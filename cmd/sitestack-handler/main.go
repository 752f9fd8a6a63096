// Command sitestack-handler is the bootstrap binary deployed to Lambda. The
// function's configured entry point selects which handler it serves.
package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/picklr-io/sitestack/internal/handler"
	"github.com/picklr-io/sitestack/internal/logging"
)

func main() {
	logging.Setup(os.Stdout, "", true)

	h, err := handler.Lookup(os.Getenv(handler.EnvHandler))
	if err != nil {
		logging.Error("failed to select handler", "error", err)
		os.Exit(1)
	}
	lambda.Start(h.Invoke)
}
