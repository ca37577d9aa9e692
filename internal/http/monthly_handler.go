package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"mgnregs/internal/core"
	"mgnregs/internal/log"
	"mgnregs/internal/services"
)

// MonthlyPath is the route of the monthly query endpoint.
const MonthlyPath = "/api/mgnregs/chhattisgarh/monthly"

// Querier answers a monthly query.
type Querier interface {
	Query(ctx context.Context, q core.MonthlyQuery) (services.MonthlyResult, error)
}

// MonthlyHandler serves the monthly query endpoint. It accepts any method
// and reads its parameters from the query string.
type MonthlyHandler struct {
	service Querier
}

func NewMonthlyHandler(service Querier) *MonthlyHandler {
	return &MonthlyHandler{service: service}
}

func (h *MonthlyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, payload := h.Respond(r.Context(), r.URL.Query())
	if err := writeJSON(w, status, payload); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write response", log.FieldError, err)
	}
}

// Respond runs the query described by values and returns the status code
// and JSON body to send. It never panics.
func (h *MonthlyHandler) Respond(ctx context.Context, values url.Values) (status int, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Recovered panic in monthly handler", "panic", rec)
			status = http.StatusInternalServerError
			payload = messageError{Error: codeServerError, Message: fmt.Sprint(rec)}
		}
	}()

	res, err := h.service.Query(ctx, ParseMonthlyQuery(values))
	if err != nil {
		return errorResponse(err)
	}
	records := res.Records
	if records == nil {
		records = []core.Record{}
	}
	return http.StatusOK, recordsResponse{Records: records}
}
