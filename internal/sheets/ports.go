// Package sheets defines the outbound query-log ports.
package sheets

import (
	"context"

	"mgnregs/internal/core"
)

// QueryLogSink records a served query somewhere durable.
type QueryLogSink interface {
	RecordQuery(ctx context.Context, ev core.QueryEvent) error
}
