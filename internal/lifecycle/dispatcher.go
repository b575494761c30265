package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/colorize-be/internal/domain"
)

// Dispatcher schedules the background transition of a submitted request.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) error
}

// Processor runs the background transition.
type Processor interface {
	Process(ctx context.Context, job domain.Job) error
}

// Publisher sends a JSON message to the work queue.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// QueueDispatcher hands jobs to the durable work queue. The image itself is
// not part of the message; the worker downloads the stored original.
type QueueDispatcher struct {
	publisher Publisher
}

func NewQueueDispatcher(publisher Publisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job domain.Job) error {
	if err := d.publisher.PublishJSON(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.RequestID, err)
	}
	return nil
}

// InlineDispatcher runs jobs on a goroutine inside the API process. The job
// outlives the HTTP request that submitted it.
type InlineDispatcher struct {
	processor Processor
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewInlineDispatcher(processor Processor, logger *slog.Logger) *InlineDispatcher {
	return &InlineDispatcher{processor: processor, logger: logger}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, job domain.Job) error {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.processor.Process(ctx, job); err != nil {
			d.logger.Error("Background colorization failed",
				slog.String("request_id", job.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
