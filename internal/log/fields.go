package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldDistrict    = "district"
	FieldNormalized  = "normalized_district"
	FieldMonth       = "month"
	FieldYear        = "year"
	FieldFinYear     = "fin_year"
	FieldRecordCount = "record_count"
	FieldFallback    = "fallback"
	FieldCacheHit    = "cache_hit"
	FieldEventID     = "event_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentService   = "service"
	ComponentUpstream  = "datagov"
	ComponentCache     = "cache"
	ComponentAMQP      = "amqp"
	ComponentStorage   = "storage"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentRateLimit = "rate_limit"
	ComponentLambda    = "lambda"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpQuery    = "query"
	OpFetch    = "fetch"
	OpFallback = "fallback"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpRecord   = "record"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeUpstream      = "upstream_error"
	ErrorTypeFormat        = "format_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithQuery adds the raw and normalized query fields
func (f LogFields) WithQuery(district, normalized, month, year, finYear string) LogFields {
	f[FieldDistrict] = district
	f[FieldNormalized] = normalized
	f[FieldMonth] = month
	f[FieldYear] = year
	f[FieldFinYear] = finYear
	return f
}

// WithResult adds outcome fields of a served query
func (f LogFields) WithResult(count int, fallback, cacheHit bool, durationMs int64) LogFields {
	f[FieldRecordCount] = count
	f[FieldFallback] = fallback
	f[FieldCacheHit] = cacheHit
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
