// Command lambda serves click redirects behind API Gateway.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/sundayezeilo/shortly/internal/app"
)

func main() {
	ctx := context.Background()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer application.Shutdown()

	lambda.Start(application.Handlers.Clicks.HandleAPIGateway)
}
