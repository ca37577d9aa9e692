package http

import (
	"errors"
	"net/http"

	"mgnregs/internal/config"
	"mgnregs/internal/core"
	"mgnregs/internal/datagov"
	"mgnregs/internal/services"
)

const (
	codeMissingAPIKey       = "missing_api_key"
	codeUpstreamFailed      = "upstream_failed"
	codeUpstreamNonJSON     = "upstream_nonjson"
	codeUpstreamUnreachable = "upstream_unreachable"
	codeServerError         = "server_error"
	codeRateLimited         = "rate_limited"
)

type (
	recordsResponse struct {
		Records []core.Record `json:"records"`
	}

	validationError struct {
		Error string `json:"error"`
	}

	missingKeyError struct {
		Error string `json:"error"`
		Hint  string `json:"hint"`
	}

	upstreamFailedError struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
		Body   string `json:"body"`
	}

	upstreamNonJSONError struct {
		Error       string `json:"error"`
		ContentType string `json:"contentType"`
		Body        string `json:"body"`
	}

	messageError struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	rateLimitError struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
)

// errorResponse maps a pipeline error to its status code and body.
func errorResponse(err error) (int, any) {
	var (
		validation *core.ValidationError
		status     *datagov.StatusError
		format     *datagov.FormatError
		transport  *datagov.TransportError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validationError{Error: validation.Error()}
	case errors.Is(err, services.ErrMissingAPIKey):
		return http.StatusInternalServerError, missingKeyError{Error: codeMissingAPIKey, Hint: config.MissingAPIKeyHint}
	case errors.As(err, &status):
		return http.StatusBadGateway, upstreamFailedError{Error: codeUpstreamFailed, Status: status.Status, Body: status.Body}
	case errors.As(err, &format):
		return http.StatusBadGateway, upstreamNonJSONError{Error: codeUpstreamNonJSON, ContentType: format.ContentType, Body: format.Body}
	case errors.As(err, &transport):
		return http.StatusBadGateway, messageError{Error: codeUpstreamUnreachable, Message: transport.Err.Error()}
	default:
		return http.StatusInternalServerError, messageError{Error: codeServerError, Message: err.Error()}
	}
}
