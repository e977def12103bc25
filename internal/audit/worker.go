package audit

import (
	"context"
	"log/slog"
)

// Worker drains an inbox of events into a store. A failed append is logged
// and counted; the worker keeps going because events are notifications.
type Worker struct {
	store   Store
	inbox   <-chan Event
	logger  *slog.Logger
	metrics *Metrics
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger, metrics *Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger, metrics: metrics}
}

// Run consumes until the inbox is closed or ctx is cancelled. A closed
// inbox returns nil after every buffered event has been appended.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) persist(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.metrics.IncPersistFailures()
		w.logger.ErrorContext(ctx, "failed to persist event",
			"event_type", event.Type,
			"event_id", event.ID.String(),
			"error", err,
		)
		return
	}
	w.metrics.IncEmitted()
}
