package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/durable"
	amqp "github.com/rabbitmq/amqp091-go"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	// jobs run to completion even after shutdown starts
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(jobCtx, i)
	}
}

// workerLoop processes jobs until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started", slog.String("worker_name", workerName))

	for msg := range w.jobsChan {
		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("request_id", msg.job.RequestID),
			slog.Uint64("delivery_tag", msg.delivery.DeliveryTag),
			slog.Bool("redelivered", msg.delivery.Redelivered),
		)

		err := w.processJob(ctx, msg)
		if err != nil {
			w.logger.Error("Job processing failed",
				slog.String("worker_name", workerName),
				slog.String("request_id", msg.job.RequestID),
				slog.String("error", err.Error()),
			)
		}
		w.settle(msg.delivery, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed", slog.String("worker_name", workerName))
}

// settle acks a processed delivery or nacks it, requeueing when retrying can help.
func (w *Worker) settle(delivery amqp.Delivery, err error) {
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
			return
		}
		w.metrics.IncJob("ack")
		return
	}

	requeue := shouldRequeueJob(err, delivery.Redelivered)
	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
		return
	}

	if requeue {
		w.metrics.IncJob("requeue")
	} else {
		w.metrics.IncJob("dead_letter")
	}
	w.logger.Info("Message NACKed",
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeueJob requeues infrastructure failures once. Permanent failures
// and second failures are dead-lettered.
func shouldRequeueJob(err error, redelivered bool) bool {
	if errors.Is(err, domain.ErrRequestNotFound) || errors.Is(err, domain.ErrInvalidJobMessage) {
		return false
	}
	if redelivered {
		return false
	}
	return errors.Is(err, durable.ErrStorageOperationFailed) || errors.Is(err, context.DeadlineExceeded)
}
