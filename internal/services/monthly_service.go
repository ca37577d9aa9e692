// Package services orchestrates the monthly query pipeline.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mgnregs/internal/cache"
	"mgnregs/internal/core"
	"mgnregs/internal/datagov"
	"mgnregs/internal/log"
)

const (
	DefaultPrimaryLimit  = 100
	DefaultFallbackLimit = 5000
)

// ErrMissingAPIKey is returned when no upstream API key is configured at
// request time.
var ErrMissingAPIKey = errors.New("missing_api_key")

// Fetcher performs a single upstream query.
type Fetcher interface {
	Fetch(ctx context.Context, apiKey string, f core.Filter, limit int) ([]core.Record, error)
}

// EventPublisher receives a QueryEvent after every query that passed
// validation. Failures are logged and otherwise ignored.
type EventPublisher interface {
	PublishQueryEvent(ctx context.Context, ev core.QueryEvent) error
}

// KeyFunc returns the upstream API key, or "" when none is configured.
type KeyFunc func() string

// MonthlyResult is the outcome of a successful query.
type MonthlyResult struct {
	Records      []core.Record
	Filter       core.Filter
	FallbackUsed bool
	// FallbackErr is the swallowed error of a failed fallback fetch.
	FallbackErr error
	CacheHit    bool
}

// MonthlyServiceConfig wires the service's collaborators. Only Fetcher and
// APIKey are required.
type MonthlyServiceConfig struct {
	Fetcher       Fetcher
	APIKey        KeyFunc
	PrimaryLimit  int
	FallbackLimit int
	Cache         cache.Cache[MonthlyResult]
	Publisher     EventPublisher
	Logger        *log.Logger
}

// MonthlyService answers monthly MGNREGA queries for one state.
type MonthlyService struct {
	fetcher       Fetcher
	apiKey        KeyFunc
	primaryLimit  int
	fallbackLimit int
	cache         cache.Cache[MonthlyResult]
	publisher     EventPublisher
	logger        *log.Logger
	group         singleflight.Group
	now           func() time.Time
}

func NewMonthlyService(cfg MonthlyServiceConfig) *MonthlyService {
	if cfg.PrimaryLimit <= 0 {
		cfg.PrimaryLimit = DefaultPrimaryLimit
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = DefaultFallbackLimit
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func() string { return "" }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	return &MonthlyService{
		fetcher:       cfg.Fetcher,
		apiKey:        cfg.APIKey,
		primaryLimit:  cfg.PrimaryLimit,
		fallbackLimit: cfg.FallbackLimit,
		cache:         cfg.Cache,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger.WithComponent(log.ComponentService),
		now:           time.Now,
	}
}

// Query validates q, fetches the matching records and, when the filtered
// query is empty, retries once without the district filter and filters the
// rows locally. A failed retry is not an error: it yields no records.
func (s *MonthlyService) Query(ctx context.Context, q core.MonthlyQuery) (MonthlyResult, error) {
	start := s.now()

	filter, err := q.Translate()
	if err != nil {
		return MonthlyResult{}, err
	}

	apiKey := s.apiKey()
	if apiKey == "" {
		s.logger.WarnContext(ctx, "Upstream API key is not configured",
			log.FieldErrorType, log.ErrorTypeConfiguration)
		s.publish(ctx, q, MonthlyResult{Filter: filter}, ErrMissingAPIKey, start)
		return MonthlyResult{}, ErrMissingAPIKey
	}

	if s.cache != nil {
		if res, ok := s.cache.Get(filter.Key()); ok {
			res.CacheHit = true
			s.logResult(ctx, q, res, start)
			s.publish(ctx, q, res, nil, start)
			return res, nil
		}
	}

	v, err, shared := s.group.Do(filter.Key(), func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), apiKey, filter)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Monthly query failed", log.NewFields().
			WithQuery(q.District, filter.District, q.Month, q.Year, filter.FinYear).
			WithOperation(log.OpQuery).
			WithError(err).
			WithErrorType(errorType(err)).ToSlice()...)
		s.publish(ctx, q, MonthlyResult{Filter: filter}, err, start)
		return MonthlyResult{}, err
	}

	res := v.(MonthlyResult)
	if shared {
		s.logger.DebugContext(ctx, "Shared in-flight upstream result", "key", filter.Key())
	}
	if s.cache != nil && res.FallbackErr == nil {
		s.cache.Set(filter.Key(), res)
	}

	s.logResult(ctx, q, res, start)
	s.publish(ctx, q, res, nil, start)
	return res, nil
}

// CacheSize reports the number of cached results, or 0 without a cache.
func (s *MonthlyService) CacheSize() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Size()
}

// APIKeyConfigured reports whether a request made now would have a key.
func (s *MonthlyService) APIKeyConfigured() bool {
	return s.apiKey() != ""
}

func (s *MonthlyService) fetch(ctx context.Context, apiKey string, filter core.Filter) (MonthlyResult, error) {
	records, err := s.fetcher.Fetch(ctx, apiKey, filter, s.primaryLimit)
	if err != nil {
		return MonthlyResult{}, err
	}
	res := MonthlyResult{Filter: filter, Records: records}
	if len(records) > 0 {
		return res, nil
	}

	res.FallbackUsed = true
	broad := filter
	broad.Broad = true
	all, err := s.fetcher.Fetch(ctx, apiKey, broad, s.fallbackLimit)
	if err != nil {
		fields := log.NewFields().WithOperation(log.OpFallback).WithError(err).WithErrorType(errorType(err))
		fields[log.FieldNormalized] = filter.District
		fields[log.FieldFinYear] = filter.FinYear
		s.logger.WarnContext(ctx, "Fallback fetch failed, returning no records", fields.ToSlice()...)
		res.FallbackErr = err
		res.Records = []core.Record{}
		return res, nil
	}

	res.Records = core.FilterByDistrict(all, filter.District)
	s.logger.DebugContext(ctx, "Fallback filtered locally",
		"fetched", len(all),
		log.FieldRecordCount, len(res.Records),
		log.FieldNormalized, filter.District)
	return res, nil
}

func (s *MonthlyService) logResult(ctx context.Context, q core.MonthlyQuery, res MonthlyResult, start time.Time) {
	s.logger.InfoContext(ctx, "Monthly query served", log.NewFields().
		WithQuery(q.District, res.Filter.District, q.Month, q.Year, res.Filter.FinYear).
		WithResult(len(res.Records), res.FallbackUsed, res.CacheHit, s.now().Sub(start).Milliseconds()).
		ToSlice()...)
}

func (s *MonthlyService) publish(ctx context.Context, q core.MonthlyQuery, res MonthlyResult, err error, start time.Time) {
	if s.publisher == nil {
		return
	}
	ev := core.QueryEvent{
		ID:                 uuid.NewString(),
		OccurredAt:         s.now().UTC(),
		District:           q.District,
		NormalizedDistrict: res.Filter.District,
		Month:              q.Month,
		Year:               q.Year,
		MonthName:          res.Filter.MonthName,
		FinYear:            res.Filter.FinYear,
		Outcome:            OutcomeOf(err),
		RecordCount:        len(res.Records),
		FallbackUsed:       res.FallbackUsed,
		CacheHit:           res.CacheHit,
		DurationMs:         s.now().Sub(start).Milliseconds(),
	}
	if res.FallbackErr != nil {
		ev.FallbackError = res.FallbackErr.Error()
	}
	if perr := s.publisher.PublishQueryEvent(context.WithoutCancel(ctx), ev); perr != nil {
		s.logger.WarnContext(ctx, "Failed to publish query event",
			log.FieldEventID, ev.ID,
			log.FieldOperation, log.OpPublish,
			log.FieldError, perr)
	}
}

// OutcomeOf maps a pipeline error to its event outcome.
func OutcomeOf(err error) core.Outcome {
	var (
		statusErr    *datagov.StatusError
		formatErr    *datagov.FormatError
		transportErr *datagov.TransportError
	)
	switch {
	case err == nil:
		return core.OutcomeOK
	case errors.Is(err, ErrMissingAPIKey):
		return core.OutcomeMissingAPIKey
	case errors.As(err, &statusErr):
		return core.OutcomeUpstreamFailed
	case errors.As(err, &formatErr):
		return core.OutcomeUpstreamNonJSON
	case errors.As(err, &transportErr):
		return core.OutcomeUpstreamUnreachable
	default:
		return core.OutcomeServerError
	}
}

func errorType(err error) string {
	switch OutcomeOf(err) {
	case core.OutcomeUpstreamFailed:
		return log.ErrorTypeUpstream
	case core.OutcomeUpstreamNonJSON:
		return log.ErrorTypeFormat
	case core.OutcomeUpstreamUnreachable:
		return log.ErrorTypeNetwork
	default:
		return log.ErrorTypeInternal
	}
}
