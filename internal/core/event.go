package core

import "time"

// Outcome classifies how a query ended. Values match the error codes
// returned to clients, plus "ok".
type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeMissingAPIKey       Outcome = "missing_api_key"
	OutcomeUpstreamFailed      Outcome = "upstream_failed"
	OutcomeUpstreamNonJSON     Outcome = "upstream_nonjson"
	OutcomeUpstreamUnreachable Outcome = "upstream_unreachable"
	OutcomeServerError         Outcome = "server_error"
)

// QueryEvent describes one served query. It is emitted after the response
// has been decided and is consumed by the query log.
type QueryEvent struct {
	ID                 string    `json:"id"`
	OccurredAt         time.Time `json:"occurred_at"`
	District           string    `json:"district"`
	NormalizedDistrict string    `json:"normalized_district"`
	Month              string    `json:"month"`
	Year               string    `json:"year"`
	MonthName          string    `json:"month_name"`
	FinYear            string    `json:"fin_year"`
	Outcome            Outcome   `json:"outcome"`
	RecordCount        int       `json:"record_count"`
	FallbackUsed       bool      `json:"fallback_used"`
	FallbackError      string    `json:"fallback_error,omitempty"`
	CacheHit           bool      `json:"cache_hit"`
	DurationMs         int64     `json:"duration_ms"`
}
