// Package worker drains query events into the query log sinks.
package worker

import (
	"context"
	"errors"
	"fmt"

	"mgnregs/internal/core"
	"mgnregs/internal/log"
	"mgnregs/internal/sheets"
)

// Consumer delivers query events to a handler until ctx ends.
type Consumer interface {
	ConsumeQueryEvents(ctx context.Context, handler func(context.Context, core.QueryEvent) error) error
}

// QueryLogWorker writes each event to the primary store and, when set, to
// a mirror such as a spreadsheet.
type QueryLogWorker struct {
	store  sheets.QueryLogSink
	mirror sheets.QueryLogSink
	logger *log.Logger
}

func NewQueryLogWorker(store, mirror sheets.QueryLogSink, logger *log.Logger) *QueryLogWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &QueryLogWorker{
		store:  store,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleQueryEvent records ev. An error means the event should be
// redelivered, which only happens when the primary store fails: it ignores
// duplicates, while the append-only mirror would not. A mirror failure is
// logged and the event is acknowledged.
func (w *QueryLogWorker) HandleQueryEvent(ctx context.Context, ev core.QueryEvent) error {
	if w.store == nil {
		return errors.New("query log store not configured")
	}
	if err := w.store.RecordQuery(ctx, ev); err != nil {
		return fmt.Errorf("record query event: %w", err)
	}

	if w.mirror != nil {
		if err := w.mirror.RecordQuery(ctx, ev); err != nil {
			w.logger.WarnContext(ctx, "Failed to mirror query event, keeping store copy only",
				log.FieldEventID, ev.ID,
				log.FieldOperation, log.OpRecord,
				log.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Recorded query event",
		log.FieldEventID, ev.ID,
		log.FieldNormalized, ev.NormalizedDistrict,
		log.FieldFinYear, ev.FinYear,
		"outcome", ev.Outcome)
	return nil
}

// Run consumes events until ctx is cancelled. Cancellation is not an error.
func (w *QueryLogWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Query log worker started", log.FieldOperation, log.OpConsume)
	err := consumer.ConsumeQueryEvents(ctx, w.HandleQueryEvent)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		w.logger.InfoContext(ctx, "Query log worker stopped")
		return nil
	}
	return err
}
