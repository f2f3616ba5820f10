package clicks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/sundayezeilo/shortly/internal/httpx"
)

// HandleAPIGateway serves a click behind an API Gateway proxy integration
// with a {code} path parameter.
func (h *Handler) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx = httpx.WithRequestID(ctx, req.RequestContext.RequestID)
	logger := h.logger.With(
		"request_id", req.RequestContext.RequestID,
		"method", req.HTTPMethod,
		"path", req.Path,
	)

	rep := h.click(ctx, logger,
		req.PathParameters["code"],
		req.QueryStringParameters["userID"],
		gatewayWantsJSON(req),
	)

	resp := events.APIGatewayProxyResponse{
		StatusCode: rep.status,
		Headers: map[string]string{
			"Access-Control-Allow-Origin": "*",
		},
	}
	if rep.location != "" {
		resp.Headers["Location"] = rep.location
		return resp, nil
	}

	body, err := json.Marshal(rep.body)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	resp.Headers["Content-Type"] = "application/json"
	resp.Body = string(body)
	return resp, nil
}

func gatewayWantsJSON(req events.APIGatewayProxyRequest) bool {
	if req.QueryStringParameters["format"] == "json" {
		return true
	}
	for key, value := range req.Headers {
		if strings.EqualFold(key, "Accept") {
			return httpx.AcceptsJSON(value)
		}
	}
	return false
}
