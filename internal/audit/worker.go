package audit

import (
	"context"
	"log/slog"
)

// Sink receives mirrored audit entries, typically a Kafka topic for
// compliance pipelines. The store remains the source of truth; sink errors
// are logged, not propagated to request paths.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Worker drains the logger's mirror channel into a sink. It keeps the
// broker out of the request path and is safe to run once per process.
type Worker struct {
	sink   Sink
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.Error("audit mirror publish failed", "sequence_id", entry.SequenceID, "error", err)
			}
		}
	}
}
