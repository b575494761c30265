package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.consumer.Qos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the pool. It
// closes jobsChan on return so the pool drains and exits. A delivery channel
// closed by the broker while ctx is live is returned as an error.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	defer close(w.jobsChan)

	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("RabbitMQ delivery channel closed by broker")
				return fmt.Errorf("delivery channel closed: %w", amqp.ErrClosed)
			}

			job, err := decodeJob(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting invalid job message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go straight to the dead-letter queue
				w.settle(delivery, err)
				continue
			}

			select {
			case w.jobsChan <- &jobMessage{job: job, delivery: delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("request_id", job.RequestID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return nil
			}
		}
	}
}

func decodeJob(body []byte) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return domain.Job{}, fmt.Errorf("%w: %v", domain.ErrInvalidJobMessage, err)
	}
	if _, err := uuid.Parse(job.RequestID); err != nil {
		return domain.Job{}, fmt.Errorf("%w: request_id %q is not a UUID", domain.ErrInvalidJobMessage, job.RequestID)
	}
	if job.UserID == "" || job.OriginalPath == "" {
		return domain.Job{}, fmt.Errorf("%w: user_id and original_path are required", domain.ErrInvalidJobMessage)
	}
	return job, nil
}
