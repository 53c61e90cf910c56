package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerhub/ai-pipeline/internal/dispatcher/storage"
	"github.com/careerhub/ai-pipeline/internal/task"
)

type fakeAcker struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeAcker) Ack(multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcker) Nack(multiple, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

type fakeStore struct {
	claimErr  error
	claimed   []string
	completed []string
	retrying  []string
	failed    []string
	lastError string
}

func (f *fakeStore) ClaimTask(ctx context.Context, msg *task.Message, workerID string) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimed = append(f.claimed, msg.TaskID)
	return nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, taskID string, result map[string]interface{}) error {
	f.completed = append(f.completed, taskID)
	return nil
}

func (f *fakeStore) MarkRetrying(ctx context.Context, taskID string, nextAttempt int, errorMsg string) error {
	f.retrying = append(f.retrying, taskID)
	f.lastError = errorMsg
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, taskID string, errorMsg string) error {
	f.failed = append(f.failed, taskID)
	f.lastError = errorMsg
	return nil
}

type fakeBroker struct {
	workErr     error
	workBodies  [][]byte
	resultBodys [][]byte
}

func (f *fakeBroker) PublishToWorkQueue(ctx context.Context, body []byte) error {
	if f.workErr != nil {
		return f.workErr
	}
	f.workBodies = append(f.workBodies, body)
	return nil
}

func (f *fakeBroker) PublishToResultQueue(ctx context.Context, body []byte) error {
	f.resultBodys = append(f.resultBodys, body)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, registry *Registry, store TaskStore, broker Broker, maxAttempts int) *Dispatcher {
	t.Helper()
	return NewDispatcher(Config{
		WorkerID:      "worker-test",
		Concurrency:   1,
		MaxAttempts:   maxAttempts,
		TaskTimeout:   time.Second,
		PrefetchCount: 1,
	}, registry, store, broker, nil, testLogger())
}

func notificationMessage() *task.Message {
	return task.New(task.TypeNotification, map[string]interface{}{
		"message":   "hello",
		"recipient": "user-1",
	})
}

func TestHandleDelivery_Success(t *testing.T) {
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		return map[string]interface{}{"delivered": true}, nil
	})

	store := &fakeStore{}
	broker := &fakeBroker{}
	d := newTestDispatcher(t, registry, store, broker, 3)

	msg := notificationMessage()
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
	assert.Equal(t, []string{msg.TaskID}, store.claimed)
	assert.Equal(t, []string{msg.TaskID}, store.completed)
	assert.Empty(t, store.retrying)
	assert.Empty(t, store.failed)

	require.Len(t, broker.resultBodys, 1)
	var result ResultMessage
	require.NoError(t, json.Unmarshal(broker.resultBodys[0], &result))
	assert.Equal(t, msg.TaskID, result.TaskID)
	assert.Equal(t, storage.StatusCompleted, result.Status)
	assert.Equal(t, true, result.Result["delivered"])
}

func TestHandleDelivery_RetryBound(t *testing.T) {
	// A task that always fails transiently is attempted exactly maxAttempts
	// times, then dead-lettered.
	const maxAttempts = 3

	invocations := 0
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		invocations++
		return nil, task.NewTransientError(errors.New("downstream unavailable"))
	})

	store := &fakeStore{}
	broker := &fakeBroker{}
	d := newTestDispatcher(t, registry, store, broker, maxAttempts)

	msg := notificationMessage()
	ackers := []*fakeAcker{}

	for {
		acker := &fakeAcker{}
		ackers = append(ackers, acker)
		d.handleDelivery(context.Background(), msg, acker)

		if acker.nacked {
			break
		}

		// Requeue path republishes with the attempt incremented and acks
		// the original delivery.
		require.True(t, acker.acked)
		require.NotEmpty(t, broker.workBodies)

		republished, err := task.Decode(broker.workBodies[len(broker.workBodies)-1])
		require.NoError(t, err)
		assert.Equal(t, msg.TaskID, republished.TaskID)
		assert.Equal(t, msg.Attempt+1, republished.Attempt)
		msg = republished
	}

	assert.Equal(t, maxAttempts, invocations)
	assert.Equal(t, maxAttempts-1, len(broker.workBodies))

	last := ackers[len(ackers)-1]
	assert.True(t, last.nacked)
	assert.False(t, last.requeued)
	assert.False(t, last.acked)

	assert.Len(t, store.failed, 1)
	assert.Contains(t, store.lastError, "downstream unavailable")

	// Terminal failure is published to the result queue
	require.NotEmpty(t, broker.resultBodys)
	var result ResultMessage
	require.NoError(t, json.Unmarshal(broker.resultBodys[len(broker.resultBodys)-1], &result))
	assert.Equal(t, storage.StatusFailed, result.Status)
}

func TestHandleDelivery_UnknownTypeDeadLettersImmediately(t *testing.T) {
	invoked := false
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		invoked = true
		return nil, nil
	})

	store := &fakeStore{}
	broker := &fakeBroker{}
	d := newTestDispatcher(t, registry, store, broker, 3)

	msg := task.New(task.Type("bogus_type"), map[string]interface{}{})
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	assert.False(t, invoked)
	assert.True(t, acker.nacked)
	assert.False(t, acker.requeued)
	assert.Empty(t, broker.workBodies)
	assert.Len(t, store.failed, 1)
	assert.Contains(t, store.lastError, "bogus_type")
}

func TestHandleDelivery_ValidationFailureIsFatal(t *testing.T) {
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		return nil, nil
	})

	store := &fakeStore{}
	broker := &fakeBroker{}
	d := newTestDispatcher(t, registry, store, broker, 3)

	// recipient is required for notification tasks
	msg := task.New(task.TypeNotification, map[string]interface{}{"message": "hi"})
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	assert.True(t, acker.nacked)
	assert.False(t, acker.requeued)
	assert.Empty(t, broker.workBodies)
	assert.Len(t, store.failed, 1)
}

func TestHandleDelivery_PanicIsRetried(t *testing.T) {
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		panic("nil map write")
	})

	store := &fakeStore{}
	broker := &fakeBroker{}
	d := newTestDispatcher(t, registry, store, broker, 3)

	msg := notificationMessage()
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	// First attempt with budget remaining: republished, original acked
	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
	require.Len(t, broker.workBodies, 1)
	assert.Len(t, store.retrying, 1)
	assert.Contains(t, store.lastError, "panicked")
}

func TestHandleDelivery_TimeoutIsRetried(t *testing.T) {
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	store := &fakeStore{}
	broker := &fakeBroker{}
	d := NewDispatcher(Config{
		WorkerID:      "worker-test",
		Concurrency:   1,
		MaxAttempts:   3,
		TaskTimeout:   10 * time.Millisecond,
		PrefetchCount: 1,
	}, registry, store, broker, nil, testLogger())

	msg := notificationMessage()
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	assert.True(t, acker.acked)
	require.Len(t, broker.workBodies, 1)
	assert.Len(t, store.retrying, 1)
	assert.Contains(t, store.lastError, "timed out")
}

func TestHandleDelivery_DuplicateIsAcked(t *testing.T) {
	invoked := false
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		invoked = true
		return nil, nil
	})

	store := &fakeStore{claimErr: storage.ErrTaskAlreadyCompleted}
	broker := &fakeBroker{}
	d := newTestDispatcher(t, registry, store, broker, 3)

	msg := notificationMessage()
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	assert.False(t, invoked)
	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
	assert.Empty(t, broker.resultBodys)
}

func TestHandleDelivery_RepublishFailureRequeuesOriginal(t *testing.T) {
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		return nil, task.NewTransientError(errors.New("flaky"))
	})

	store := &fakeStore{}
	broker := &fakeBroker{workErr: fmt.Errorf("broker down")}
	d := newTestDispatcher(t, registry, store, broker, 3)

	msg := notificationMessage()
	acker := &fakeAcker{}
	d.handleDelivery(context.Background(), msg, acker)

	// Falling back to broker-level requeue keeps the task alive
	assert.False(t, acker.acked)
	assert.True(t, acker.nacked)
	assert.True(t, acker.requeued)
}

func TestConsumeLoop_ClosedDeliveriesReturnsError(t *testing.T) {
	d := newTestDispatcher(t, NewRegistry(), &fakeStore{}, &fakeBroker{}, 3)

	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	err := d.consumeLoop(context.Background(), deliveries)
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
}

func TestConsumeLoop_ContextCancelIsCleanStop(t *testing.T) {
	d := newTestDispatcher(t, NewRegistry(), &fakeStore{}, &fakeBroker{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.consumeLoop(ctx, make(chan amqp.Delivery))
	assert.NoError(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(task.TypeNotification, func(ctx context.Context, msg *task.Message) (map[string]interface{}, error) {
		return nil, nil
	})

	handler, err := registry.Lookup(task.TypeNotification)
	require.NoError(t, err)
	assert.NotNil(t, handler)

	_, err = registry.Lookup(task.Type("nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrUnknownTaskType)
}
