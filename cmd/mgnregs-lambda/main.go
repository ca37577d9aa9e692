package main

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"mgnregs/internal/cli"
	apphttp "mgnregs/internal/http"
	"mgnregs/internal/log"
)

type handler struct {
	monthly *apphttp.MonthlyHandler
	logger  *log.Logger
}

func newHandler(service apphttp.Querier, logger *log.Logger) *handler {
	return &handler{
		monthly: apphttp.NewMonthlyHandler(service),
		logger:  logger.WithComponent(log.ComponentLambda),
	}
}

// handle serves an API Gateway proxy request. Errors are always expressed
// as JSON responses, never as invocation failures.
func (h *handler) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	reqLogger := h.logger.With(
		log.FieldRequestID, req.RequestContext.RequestID,
		log.FieldMethod, req.HTTPMethod,
		log.FieldPath, req.Path)
	ctx = log.WithContext(ctx, reqLogger)

	status, payload := h.monthly.Respond(ctx, queryValues(req))
	status, body := apphttp.NewJSONResponse().Status(status).Payload(payload).Build()

	level := reqLogger.Info
	if status >= http.StatusInternalServerError {
		level = reqLogger.Error
	} else if status >= http.StatusBadRequest {
		level = reqLogger.Warn
	}
	level("Request completed", log.FieldStatusCode, status)

	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":           "application/json; charset=utf-8",
			"Cache-Control":          "no-store",
			"X-Content-Type-Options": "nosniff",
		},
		Body: string(body),
	}, nil
}

// queryValues prefers the multi-value parameters, which keep repeats.
func queryValues(req events.APIGatewayProxyRequest) url.Values {
	values := url.Values{}
	if len(req.MultiValueQueryStringParameters) > 0 {
		for k, vs := range req.MultiValueQueryStringParameters {
			values[k] = append([]string(nil), vs...)
		}
		return values
	}
	for k, v := range req.QueryStringParameters {
		values.Set(k, v)
	}
	return values
}

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentLambda)
	result := cli.InitBackend(context.Background(), logger, cfg)
	defer result.Cleanup()

	lambda.Start(newHandler(result.Backend, logger).handle)
}
