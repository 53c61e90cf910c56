package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// ErrDeliveriesClosed reports that the broker closed the delivery stream
// while the dispatcher was still running.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// MessageSource covers the consume surface of the broker client
type MessageSource interface {
	GetChannel() *amqp.Channel
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Run starts the worker pool and consumes task messages until the context
// is canceled or the delivery channel closes
func (d *Dispatcher) Run(ctx context.Context, source MessageSource) error {
	deliveries, err := d.setupConsumer(source)
	if err != nil {
		return err
	}

	d.spawnWorkerPool(ctx)
	return d.consumeLoop(ctx, deliveries)
}

// setupConsumer configures QoS and starts consuming from the work queue
func (d *Dispatcher) setupConsumer(source MessageSource) (<-chan amqp.Delivery, error) {
	channel := source.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// prefetch_count bounds unacknowledged deliveries per consumer,
	// prefetch_size 0 means no byte limit, global false means per-consumer
	err := channel.Qos(
		d.config.PrefetchCount,
		0,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	d.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", d.config.PrefetchCount),
	)

	deliveries, err := source.Consume(d.config.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// consumeLoop decodes deliveries and feeds them to the worker pool. It
// returns nil on context cancellation and ErrDeliveriesClosed when the
// broker closes the stream first.
func (d *Dispatcher) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	d.logger.Info("Task consumer started",
		slog.String("worker_id", d.config.WorkerID),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Task consumer stopped - context canceled")
			return nil

		case del, ok := <-deliveries:
			if !ok {
				d.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			msg, err := task.Decode(del.Body)
			if err != nil {
				d.logger.Error("Failed to decode task message",
					slog.String("error", err.Error()),
					slog.String("body", string(del.Body)),
				)
				// Malformed messages can never succeed. NACK without
				// requeue so the broker dead-letters them.
				if nackErr := del.Nack(false, false); nackErr != nil {
					d.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case d.tasksChan <- &delivery{msg: msg, acker: del}:
				d.logger.Debug("Task dispatched to worker pool",
					slog.String("task_id", msg.TaskID),
					slog.String("task_type", string(msg.TaskType)),
					slog.Uint64("delivery_tag", del.DeliveryTag),
				)
			case <-ctx.Done():
				d.logger.Info("Task consumer stopped while dispatching task")
				// NACK the message so it can be reprocessed
				if nackErr := del.Nack(false, true); nackErr != nil {
					d.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return nil
			}
		}
	}
}
