package worker

import (
	"context"
	"log/slog"
	"time"
)

// processJob runs the lifecycle transition for one job under the job timeout.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage) error {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := w.processor.Process(ctx, msg.job); err != nil {
		return err
	}

	w.logger.Info("Job completed",
		slog.String("request_id", msg.job.RequestID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
