package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/careerhub/ai-pipeline/internal/dispatcher/storage"
	"github.com/careerhub/ai-pipeline/internal/task"
)

// Acker covers the acknowledgment surface of an AMQP delivery
type Acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// TaskStore persists task lifecycle transitions
type TaskStore interface {
	ClaimTask(ctx context.Context, msg *task.Message, workerID string) error
	MarkCompleted(ctx context.Context, taskID string, result map[string]interface{}) error
	MarkRetrying(ctx context.Context, taskID string, nextAttempt int, errorMsg string) error
	MarkFailed(ctx context.Context, taskID string, errorMsg string) error
}

// WorkPublisher republishes tasks to the work queue for retry and chaining
type WorkPublisher interface {
	PublishToWorkQueue(ctx context.Context, body []byte) error
}

// ResultPublisher publishes task outcomes to the result queue
type ResultPublisher interface {
	PublishToResultQueue(ctx context.Context, body []byte) error
}

// Observer receives task processing signals for metrics export
type Observer interface {
	TaskReceived(taskType string)
	TaskDone(taskType, outcome string, duration time.Duration)
	InFlightAdd(delta float64)
}

type nopObserver struct{}

func (nopObserver) TaskReceived(string)                    {}
func (nopObserver) TaskDone(string, string, time.Duration) {}
func (nopObserver) InFlightAdd(float64)                    {}

// ResultMessage is the envelope published to the result queue after a task
// reaches a terminal state
type ResultMessage struct {
	TaskID      string                 `json:"task_id"`
	TaskType    task.Type              `json:"task_type"`
	Status      string                 `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Attempt     int                    `json:"attempt"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Config holds dispatcher configuration
type Config struct {
	WorkerID      string
	Concurrency   int
	MaxAttempts   int
	TaskTimeout   time.Duration
	PrefetchCount int
}

// delivery pairs a decoded task with its acknowledgment handle
type delivery struct {
	msg   *task.Message
	acker Acker
}

// Dispatcher consumes task messages, executes them on a bounded worker pool,
// and acknowledges each delivery according to the task outcome.
type Dispatcher struct {
	config    Config
	registry  *Registry
	store     TaskStore
	broker    Broker
	results   ResultPublisher
	observer  Observer
	logger    *slog.Logger
	tasksChan chan *delivery
	wg        sync.WaitGroup
	stopChan  chan struct{}
}

// Broker combines the consume and publish surfaces the dispatcher needs
// from the message broker client
type Broker interface {
	WorkPublisher
	ResultPublisher
}

// NewDispatcher creates a dispatcher. Observer may be nil.
func NewDispatcher(cfg Config, registry *Registry, store TaskStore, broker Broker, observer Observer, logger *slog.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &Dispatcher{
		config:    cfg,
		registry:  registry,
		store:     store,
		broker:    broker,
		results:   broker,
		observer:  observer,
		logger:    logger,
		tasksChan: make(chan *delivery),
		stopChan:  make(chan struct{}),
	}
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (d *Dispatcher) spawnWorkerPool(ctx context.Context) {
	d.logger.Info("Spawning worker pool",
		slog.Int("concurrency", d.config.Concurrency),
		slog.String("worker_id", d.config.WorkerID),
	)

	for i := 0; i < d.config.Concurrency; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (d *Dispatcher) workerLoop(ctx context.Context, workerNum int) {
	defer d.wg.Done()

	workerName := fmt.Sprintf("%s-%d", d.config.WorkerID, workerNum)
	d.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-d.stopChan:
			d.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			d.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case del, ok := <-d.tasksChan:
			if !ok {
				d.logger.Info("Worker goroutine stopping - task channel closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			d.logger.Info("Worker received task",
				slog.String("worker_name", workerName),
				slog.String("task_id", del.msg.TaskID),
				slog.String("task_type", string(del.msg.TaskType)),
				slog.Int("attempt", del.msg.Attempt),
			)

			d.handleDelivery(ctx, del.msg, del.acker)
		}
	}
}

// Stop closes the worker pool and waits for in-flight tasks to finish
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping dispatcher...")
	close(d.stopChan)
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

// handleDelivery runs one task end to end: claim, execute, persist the
// outcome, and acknowledge the delivery accordingly.
func (d *Dispatcher) handleDelivery(ctx context.Context, msg *task.Message, acker Acker) {
	started := time.Now()
	d.observer.TaskReceived(string(msg.TaskType))
	d.observer.InFlightAdd(1)
	defer d.observer.InFlightAdd(-1)

	if err := d.store.ClaimTask(ctx, msg, d.config.WorkerID); err != nil {
		if errors.Is(err, storage.ErrTaskAlreadyCompleted) {
			// Duplicate redelivery of a finished task. Drop it.
			d.ack(msg, acker)
			d.observer.TaskDone(string(msg.TaskType), "duplicate", time.Since(started))
			return
		}
		d.logger.Error("Failed to claim task",
			slog.String("task_id", msg.TaskID),
			slog.String("error", err.Error()),
		)
		// Database errors are transient. Route through the retry path so
		// the task is not lost and not retried forever.
		outcome := task.RetryFailure(fmt.Errorf("claim failed: %w", err))
		d.applyOutcome(ctx, msg, acker, outcome, started)
		return
	}

	outcome := d.execute(ctx, msg)
	d.applyOutcome(ctx, msg, acker, outcome, started)
}

// execute runs the task handler and converts every failure mode, including
// panics and timeouts, into a task outcome.
func (d *Dispatcher) execute(ctx context.Context, msg *task.Message) (outcome task.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Task handler panicked",
				slog.String("task_id", msg.TaskID),
				slog.String("task_type", string(msg.TaskType)),
				slog.Any("panic", r),
			)
			outcome = task.RetryFailure(fmt.Errorf("handler panicked: %v", r))
		}
	}()

	if err := msg.Validate(); err != nil {
		// Malformed tasks never become valid on retry
		return task.FatalFailure(err)
	}

	handler, err := d.registry.Lookup(msg.TaskType)
	if err != nil {
		return task.FatalFailure(err)
	}

	taskCtx := ctx
	if d.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, d.config.TaskTimeout)
		defer cancel()
	}

	result, err := handler(taskCtx, msg)
	if err != nil {
		// A handler error observed after the deadline fired is a timeout,
		// whatever the handler reported
		if taskCtx.Err() != nil {
			return task.RetryFailure(fmt.Errorf("task timed out: %w", err))
		}
		return task.OutcomeFromError(err)
	}

	return task.Succeed(result)
}

// applyOutcome maps the outcome to an acknowledgment action and performs
// the matching status update, republish, and result publication.
func (d *Dispatcher) applyOutcome(ctx context.Context, msg *task.Message, acker Acker, outcome task.Outcome, started time.Time) {
	action := task.ActionFor(outcome, msg.Attempt, d.config.MaxAttempts)

	switch action {
	case task.ActionAck:
		if err := d.store.MarkCompleted(ctx, msg.TaskID, outcome.Result); err != nil {
			d.logger.Error("Failed to mark task completed",
				slog.String("task_id", msg.TaskID),
				slog.String("error", err.Error()),
			)
		}
		d.publishResult(ctx, msg, storage.StatusCompleted, outcome.Result, "")
		d.ack(msg, acker)
		d.observer.TaskDone(string(msg.TaskType), "succeeded", time.Since(started))

		d.logger.Info("Task completed successfully",
			slog.String("task_id", msg.TaskID),
			slog.String("task_type", string(msg.TaskType)),
			slog.Duration("duration", time.Since(started)),
		)

	case task.ActionRequeue:
		retry := msg.NextAttempt()
		if err := d.store.MarkRetrying(ctx, msg.TaskID, retry.Attempt, reasonText(outcome)); err != nil {
			d.logger.Error("Failed to mark task retrying",
				slog.String("task_id", msg.TaskID),
				slog.String("error", err.Error()),
			)
		}

		body, err := retry.Encode()
		if err == nil {
			err = d.broker.PublishToWorkQueue(ctx, body)
		}
		if err != nil {
			// Republish failed. NACK with requeue so the broker redelivers
			// the original message; the attempt counter stays put, which
			// only delays dead-lettering, never loses the task.
			d.logger.Error("Failed to republish task for retry, requeueing original delivery",
				slog.String("task_id", msg.TaskID),
				slog.String("error", err.Error()),
			)
			d.nack(msg, acker, true)
		} else {
			d.ack(msg, acker)
		}
		d.observer.TaskDone(string(msg.TaskType), "retried", time.Since(started))

		d.logger.Warn("Task failed transiently, retry scheduled",
			slog.String("task_id", msg.TaskID),
			slog.String("task_type", string(msg.TaskType)),
			slog.Int("next_attempt", retry.Attempt),
			slog.Int("max_attempts", d.config.MaxAttempts),
			slog.String("reason", reasonText(outcome)),
		)

	case task.ActionDeadLetter:
		if err := d.store.MarkFailed(ctx, msg.TaskID, reasonText(outcome)); err != nil {
			d.logger.Error("Failed to mark task failed",
				slog.String("task_id", msg.TaskID),
				slog.String("error", err.Error()),
			)
		}
		d.publishResult(ctx, msg, storage.StatusFailed, nil, reasonText(outcome))
		d.nack(msg, acker, false)
		d.observer.TaskDone(string(msg.TaskType), "dead_lettered", time.Since(started))

		payloadJSON, _ := json.Marshal(msg.Payload)
		d.logger.Error("Task dead-lettered",
			slog.String("task_id", msg.TaskID),
			slog.String("task_type", string(msg.TaskType)),
			slog.Int("attempt", msg.Attempt),
			slog.Int("max_attempts", d.config.MaxAttempts),
			slog.String("reason", reasonText(outcome)),
			slog.String("payload", string(payloadJSON)),
			slog.Time("enqueued_at", msg.EnqueuedAt),
		)
	}
}

// publishResult sends a terminal outcome to the result queue. Publication is
// best effort; the task state of record lives in the database.
func (d *Dispatcher) publishResult(ctx context.Context, msg *task.Message, status string, result map[string]interface{}, errorMsg string) {
	envelope := ResultMessage{
		TaskID:      msg.TaskID,
		TaskType:    msg.TaskType,
		Status:      status,
		Result:      result,
		Error:       errorMsg,
		Attempt:     msg.Attempt,
		CompletedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Error("Failed to marshal result message",
			slog.String("task_id", msg.TaskID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := d.results.PublishToResultQueue(ctx, body); err != nil {
		d.logger.Error("Failed to publish task result",
			slog.String("task_id", msg.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

// reasonText renders the outcome reason for storage and logging
func reasonText(outcome task.Outcome) string {
	if outcome.Reason == nil {
		return ""
	}
	return outcome.Reason.Error()
}

func (d *Dispatcher) ack(msg *task.Message, acker Acker) {
	if err := acker.Ack(false); err != nil {
		d.logger.Error("Failed to ACK message",
			slog.String("task_id", msg.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) nack(msg *task.Message, acker Acker, requeue bool) {
	if err := acker.Nack(false, requeue); err != nil {
		d.logger.Error("Failed to NACK message",
			slog.String("task_id", msg.TaskID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
	}
}
