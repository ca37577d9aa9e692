package http

import (
	"net/url"
	"strings"

	"mgnregs/internal/core"
)

// ParseMonthlyQuery reads district, month and year from query values. Only
// the first value of each parameter is used. The district is trimmed, so a
// blank district counts as missing; month and year are validated verbatim.
func ParseMonthlyQuery(values url.Values) core.MonthlyQuery {
	return core.MonthlyQuery{
		District: strings.TrimSpace(values.Get("district")),
		Month:    values.Get("month"),
		Year:     values.Get("year"),
	}
}
